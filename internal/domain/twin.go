package domain

import "time"

// Twin represents a tenant-scoped knowledge base backing a single persona.
type Twin struct {
	ID        string
	OwnerRef  string
	Name      string
	CreatedAt time.Time
}

// TwinRef identifies a twin for retrieval. OwnerRef may be empty, in which
// case it is resolved from the metadata store when a namespace needs it.
type TwinRef struct {
	ID       string
	OwnerRef string
}

// Validate checks that the reference carries a twin ID.
func (r TwinRef) Validate() error {
	if r.ID == "" {
		return ErrMissingTwinID
	}
	return nil
}
