package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echoself-ai/echoself/internal/service"
)

// RetrievalLogRepository stores retrieval logs for evaluation and
// degradation dashboards.
type RetrievalLogRepository struct {
	pool *pgxpool.Pool
}

func NewRetrievalLogRepository(pool *pgxpool.Pool) *RetrievalLogRepository {
	return &RetrievalLogRepository{pool: pool}
}

func (r *RetrievalLogRepository) CreateRetrievalLog(ctx context.Context, entry service.RetrievalLogEntry) (string, error) {
	failuresJSON, _ := json.Marshal(entry.StageFailures)

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO retrieval_logs (twin_id, query, dual_read, verified_hit, result_count, confidence, degraded, stage_failures, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		entry.TwinID,
		entry.Query,
		entry.DualRead,
		entry.VerifiedHit,
		entry.ResultCount,
		entry.Confidence,
		entry.Degraded,
		failuresJSON,
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
