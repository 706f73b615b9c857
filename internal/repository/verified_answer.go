package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/echoself-ai/echoself/internal/domain"
)

// VerifiedAnswerRepository reads owner-approved Q&A pairs. Rows are written
// by the approval workflow; this engine never mutates them. Superseded
// versions are excluded from every read path so history stays auditable
// without ever being served.
type VerifiedAnswerRepository struct {
	pool *pgxpool.Pool
}

func NewVerifiedAnswerRepository(pool *pgxpool.Pool) *VerifiedAnswerRepository {
	return &VerifiedAnswerRepository{pool: pool}
}

const verifiedAnswerColumns = `id, twin_id, question_text, question_embedding, answer_text, confidence, COALESCE(superseded_by::text, ''), created_at`

// FindByNormalizedQuestion matches the canonical question text exactly.
func (r *VerifiedAnswerRepository) FindByNormalizedQuestion(ctx context.Context, twinID, normalized string) (*domain.VerifiedAnswer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+verifiedAnswerColumns+`
		 FROM verified_answers
		 WHERE twin_id = $1 AND question_norm = $2 AND superseded_by IS NULL
		 ORDER BY created_at DESC
		 LIMIT 1`,
		twinID, normalized,
	)

	answer, err := scanVerifiedAnswer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVerifiedAnswerNotFound
		}
		return nil, err
	}
	return answer, nil
}

// FindNearestQuestion returns the verified answer whose stored question
// embedding is closest to the query embedding, along with the cosine
// similarity. The caller applies the acceptance threshold.
func (r *VerifiedAnswerRepository) FindNearestQuestion(ctx context.Context, twinID string, embedding []float32) (*domain.VerifiedAnswer, float32, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+verifiedAnswerColumns+`, 1 - (question_embedding <=> $2) AS similarity
		 FROM verified_answers
		 WHERE twin_id = $1 AND question_embedding IS NOT NULL AND superseded_by IS NULL
		 ORDER BY question_embedding <=> $2
		 LIMIT 1`,
		twinID, pgvector.NewVector(embedding),
	)

	var answer domain.VerifiedAnswer
	var questionEmbedding pgvector.Vector
	var similarity float32
	err := row.Scan(
		&answer.ID,
		&answer.TwinID,
		&answer.QuestionText,
		&questionEmbedding,
		&answer.AnswerText,
		&answer.Confidence,
		&answer.SupersededBy,
		&answer.CreatedAt,
		&similarity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, domain.ErrVerifiedAnswerNotFound
		}
		return nil, 0, err
	}
	answer.QuestionEmbedding = questionEmbedding.Slice()

	return &answer, similarity, nil
}

func scanVerifiedAnswer(row pgx.Row) (*domain.VerifiedAnswer, error) {
	var answer domain.VerifiedAnswer
	// question_embedding is nullable: exact-match rows may predate embedding
	// backfill.
	var questionEmbedding *pgvector.Vector
	err := row.Scan(
		&answer.ID,
		&answer.TwinID,
		&answer.QuestionText,
		&questionEmbedding,
		&answer.AnswerText,
		&answer.Confidence,
		&answer.SupersededBy,
		&answer.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if questionEmbedding != nil {
		answer.QuestionEmbedding = questionEmbedding.Slice()
	}
	return &answer, nil
}
