package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echoself-ai/echoself/internal/domain"
)

// TwinRepository reads twin metadata. The retrieval engine only needs the
// owner reference for namespace derivation; twin lifecycle management lives
// in the surrounding platform.
type TwinRepository struct {
	pool *pgxpool.Pool
}

func NewTwinRepository(pool *pgxpool.Pool) *TwinRepository {
	return &TwinRepository{pool: pool}
}

func (r *TwinRepository) GetByID(ctx context.Context, id string) (*domain.Twin, error) {
	var twin domain.Twin
	var ownerRef *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_ref, name, created_at FROM twins WHERE id = $1`,
		id,
	).Scan(&twin.ID, &ownerRef, &twin.Name, &twin.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTwinNotFound
		}
		return nil, err
	}
	if ownerRef != nil {
		twin.OwnerRef = *ownerRef
	}
	return &twin, nil
}

// GetOwnerRef returns the owner reference for a twin. A twin without an
// owner reference resolves as not found so the caller falls back to the
// legacy namespace instead of deriving a malformed current one.
func (r *TwinRepository) GetOwnerRef(ctx context.Context, twinID string) (string, error) {
	var ownerRef *string
	err := r.pool.QueryRow(ctx,
		`SELECT owner_ref FROM twins WHERE id = $1`,
		twinID,
	).Scan(&ownerRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrTwinNotFound
		}
		return "", err
	}
	if ownerRef == nil || *ownerRef == "" {
		return "", domain.ErrTwinNotFound
	}
	return *ownerRef, nil
}
