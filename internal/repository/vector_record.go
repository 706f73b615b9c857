package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/echoself-ai/echoself/internal/service"
)

// VectorRecordRepository runs namespace-scoped similarity queries against
// the vector index. Records are written by the ingestion subsystem; this
// engine only reads. A namespace with no records (including one that never
// existed) yields an empty result, not an error.
type VectorRecordRepository struct {
	pool *pgxpool.Pool
}

func NewVectorRecordRepository(pool *pgxpool.Pool) *VectorRecordRepository {
	return &VectorRecordRepository{pool: pool}
}

// SearchNamespace returns the topK records in a namespace by cosine
// similarity to the query vector, best first.
func (r *VectorRecordRepository) SearchNamespace(ctx context.Context, namespace string, vector []float32, topK int) ([]*service.VectorMatch, error) {
	if topK <= 0 {
		topK = 20
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, source_id, text_chunk, group_ids, 1 - (embedding <=> $2) AS score
		 FROM vector_records
		 WHERE namespace = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		namespace, pgvector.NewVector(vector), topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*service.VectorMatch, 0, topK)
	for rows.Next() {
		var match service.VectorMatch
		var groupIDs []string
		if err := rows.Scan(&match.ID, &match.SourceID, &match.Text, &groupIDs, &match.Score); err != nil {
			return nil, err
		}
		match.GroupIDs = groupIDs
		matches = append(matches, &match)
	}

	return matches, rows.Err()
}
