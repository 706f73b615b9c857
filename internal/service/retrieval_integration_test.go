//go:build integration

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoself-ai/echoself/internal/domain"
	"github.com/echoself-ai/echoself/internal/repository"
	"github.com/echoself-ai/echoself/internal/testutil"
)

const embeddingDim = 3072

// axisEmbedder maps known texts to fixed basis vectors so similarity is
// deterministic without a live provider.
type axisEmbedder struct {
	axes map[string]int
}

func (e *axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	axis, ok := e.axes[text]
	if !ok {
		return nil, errors.New("no embedding fixture for text: " + text)
	}
	v := make([]float32, embeddingDim)
	v[axis] = 1
	return v, nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("generation disabled in integration tests")
}

func basisVector(axis int) pgvector.Vector {
	v := make([]float32, embeddingDim)
	v[axis] = 1
	return pgvector.NewVector(v)
}

func seedTwin(ctx context.Context, t *testing.T, pool *pgxpool.Pool, twinID, ownerRef string) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO twins (id, owner_ref, name) VALUES ($1, $2, 'Integration Twin')`,
		twinID, ownerRef)
	require.NoError(t, err)
}

func TestRetrievalServiceIntegration(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	twinRepo := repository.NewTwinRepository(pool)
	verifiedRepo := repository.NewVerifiedAnswerRepository(pool)
	vectorRepo := repository.NewVectorRecordRepository(pool)
	logRepo := repository.NewRetrievalLogRepository(pool)

	newService := func(embedder Embedder) *RetrievalService {
		cfg := DefaultRetrievalConfig()
		return NewRetrievalService(
			NewNamespaceResolver(twinRepo, time.Minute),
			NewVerifiedAnswerMatcher(verifiedRepo, cfg.VerifiedSimilarity, cfg.VerifiedTimeout),
			NewQueryExpander(failingGenerator{}),
			embedder,
			vectorRepo,
			nil,
			logRepo,
			cfg,
		)
	}

	t.Run("verified answer short-circuits against real storage", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		twinID := "twin-" + uuid.NewString()[:8]
		seedTwin(ctx, t, pool, twinID, "acme")

		_, err := pool.Exec(ctx,
			`INSERT INTO verified_answers (twin_id, question_text, question_norm, question_embedding, answer_text, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			twinID,
			"What's your minimum check size?",
			domain.NormalizeQuestion("What's your minimum check size?"),
			basisVector(0),
			"Our minimum check size is $250k.",
			0.99)
		require.NoError(t, err)

		// Records that would match if vector search ran.
		_, err = pool.Exec(ctx,
			`INSERT INTO vector_records (id, namespace, embedding, text_chunk, source_id, group_ids)
			 VALUES ($1, $2, $3, 'stale pitch deck text', 'doc-1', '{}')`,
			uuid.NewString(), "owner-acme.twin-"+twinID, basisVector(0))
		require.NoError(t, err)

		svc := newService(&axisEmbedder{axes: map[string]int{"what is your min check size": 0}})

		result, err := svc.Retrieve(ctx, RetrieveInput{
			Twin:    domain.TwinRef{ID: twinID},
			Query:   "what is your min check size",
			Options: RetrieveOptions{DualRead: true},
		})

		require.NoError(t, err)
		require.NotNil(t, result.VerifiedAnswer)
		assert.Equal(t, "Our minimum check size is $250k.", result.VerifiedAnswer.AnswerText)
		assert.Empty(t, result.Contexts)
	})

	t.Run("dual read fans out over current and legacy namespaces", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		twinID := "twin-" + uuid.NewString()[:8]
		seedTwin(ctx, t, pool, twinID, "acme")

		// One record in the migrated namespace, one left behind in the
		// legacy one.
		_, err := pool.Exec(ctx,
			`INSERT INTO vector_records (id, namespace, embedding, text_chunk, source_id, group_ids)
			 VALUES ($1, $2, $3, 'migrated evidence', 'doc-current', '{}')`,
			uuid.NewString(), "owner-acme.twin-"+twinID, basisVector(3))
		require.NoError(t, err)
		_, err = pool.Exec(ctx,
			`INSERT INTO vector_records (id, namespace, embedding, text_chunk, source_id, group_ids)
			 VALUES ($1, $2, $3, 'legacy evidence', 'doc-legacy', '{}')`,
			uuid.NewString(), twinID, basisVector(3))
		require.NoError(t, err)

		svc := newService(&axisEmbedder{axes: map[string]int{"thesis question": 3}})

		result, err := svc.Retrieve(ctx, RetrieveInput{
			Twin:            domain.TwinRef{ID: twinID},
			Query:           "thesis question",
			RequesterGroups: []string{"investors"},
			Options:         RetrieveOptions{DualRead: true},
		})

		require.NoError(t, err)
		require.Len(t, result.Contexts, 2)
		sources := []string{result.Contexts[0].SourceID, result.Contexts[1].SourceID}
		assert.Contains(t, sources, "doc-current")
		assert.Contains(t, sources, "doc-legacy")
	})

	t.Run("group filtering applies to stored group ids", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		twinID := "twin-" + uuid.NewString()[:8]
		seedTwin(ctx, t, pool, twinID, "acme")

		_, err := pool.Exec(ctx,
			`INSERT INTO vector_records (id, namespace, embedding, text_chunk, source_id, group_ids)
			 VALUES ($1, $2, $3, 'public evidence', 'doc-public', '{}')`,
			uuid.NewString(), "owner-acme.twin-"+twinID, basisVector(5))
		require.NoError(t, err)
		_, err = pool.Exec(ctx,
			`INSERT INTO vector_records (id, namespace, embedding, text_chunk, source_id, group_ids)
			 VALUES ($1, $2, $3, 'lp-only evidence', 'doc-lp', $4)`,
			uuid.NewString(), "owner-acme.twin-"+twinID, basisVector(5), []string{"lps"})
		require.NoError(t, err)

		svc := newService(&axisEmbedder{axes: map[string]int{"performance question": 5}})

		result, err := svc.Retrieve(ctx, RetrieveInput{
			Twin:            domain.TwinRef{ID: twinID},
			Query:           "performance question",
			RequesterGroups: []string{"founders"},
			Options:         RetrieveOptions{DualRead: true},
		})

		require.NoError(t, err)
		require.Len(t, result.Contexts, 1)
		assert.Equal(t, "doc-public", result.Contexts[0].SourceID)
	})

	t.Run("retrieval is logged", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		twinID := "twin-" + uuid.NewString()[:8]
		seedTwin(ctx, t, pool, twinID, "acme")

		svc := newService(&axisEmbedder{axes: map[string]int{"unanswerable": 7}})

		result, err := svc.Retrieve(ctx, RetrieveInput{
			Twin:            domain.TwinRef{ID: twinID},
			Query:           "unanswerable",
			RequesterGroups: []string{"investors"},
			Options:         RetrieveOptions{DualRead: true},
		})
		require.NoError(t, err)
		assert.Empty(t, result.Contexts)
		assert.Zero(t, result.Confidence)

		var count int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT count(*) FROM retrieval_logs WHERE twin_id = $1`, twinID).Scan(&count))
		assert.Equal(t, 1, count)
	})
}
