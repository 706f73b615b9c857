package service

import "context"

// RetrievalLogEntry captures one retrieval request for evaluation and
// observability. Config-gap conditions (NO_GROUP_CONTEXT) are recorded as
// stage failures so dashboards can tell them apart from genuinely empty
// results.
type RetrievalLogEntry struct {
	TwinID        string
	Query         string
	DualRead      bool
	VerifiedHit   bool
	ResultCount   int
	Confidence    float64
	Degraded      bool
	StageFailures []StageFailure
	DurationMs    int
}

// RetrievalLogRepository persists retrieval logs.
type RetrievalLogRepository interface {
	CreateRetrievalLog(ctx context.Context, entry RetrievalLogEntry) (string, error)
}
