//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echoself-ai/echoself/internal/api/handlers"
	"github.com/echoself-ai/echoself/internal/repository"
	"github.com/echoself-ai/echoself/internal/server"
	"github.com/echoself-ai/echoself/internal/service"
	"github.com/echoself-ai/echoself/internal/testutil"
)

const (
	testServiceToken = "e2e-service-token"
	embeddingDim     = 3072
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	Pool       *pgxpool.Pool
	Server     *httptest.Server
	HTTPClient *http.Client
	Embedder   *FixtureEmbedder
}

// FixtureEmbedder maps known texts to basis vectors so E2E similarity is
// deterministic without a live embedding provider.
type FixtureEmbedder struct {
	Axes map[string]int
}

func (e *FixtureEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	axis, ok := e.Axes[text]
	if !ok {
		return nil, errors.New("no embedding fixture for text: " + text)
	}
	v := make([]float32, embeddingDim)
	v[axis] = 1
	return v, nil
}

type noopGenerator struct{}

func (noopGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("generation disabled in e2e")
}

// SetupE2EEnv creates a full E2E environment: a pgvector container, migrated
// schema, and the retrieval server bound to an ephemeral port.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	twinRepo := repository.NewTwinRepository(pool)
	verifiedRepo := repository.NewVerifiedAnswerRepository(pool)
	vectorRepo := repository.NewVectorRecordRepository(pool)
	logRepo := repository.NewRetrievalLogRepository(pool)

	embedder := &FixtureEmbedder{Axes: map[string]int{}}

	cfg := service.DefaultRetrievalConfig()
	resolver := service.NewNamespaceResolver(twinRepo, time.Minute)
	retrievalSvc := service.NewRetrievalService(
		resolver,
		service.NewVerifiedAnswerMatcher(verifiedRepo, cfg.VerifiedSimilarity, cfg.VerifiedTimeout),
		service.NewQueryExpander(noopGenerator{}),
		embedder,
		vectorRepo,
		nil,
		logRepo,
		cfg,
	)

	router := server.NewRouter(server.RouterConfig{
		ServiceToken:     testServiceToken,
		RetrieveHandler:  handlers.NewRetrieveHandler(retrievalSvc, handlers.RetrieveDefaults{DualRead: true, EnableRerank: true}),
		NamespaceHandler: handlers.NewNamespaceHandler(resolver),
	})

	srv := httptest.NewServer(router)

	return &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		Pool:       pool,
		Server:     srv,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Embedder:   embedder,
	}
}

// Cleanup tears down the server, pool and container.
func (env *E2ETestEnv) Cleanup() {
	env.Server.Close()
	env.Pool.Close()
	if err := env.PostgresC.Terminate(env.Ctx); err != nil {
		env.T.Logf("failed to terminate postgres container: %v", err)
	}
}

// APIResponse is the standard response envelope.
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func (env *E2ETestEnv) do(method, path string, body interface{}, token string) (*APIResponse, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(env.Ctx, method, env.Server.URL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var parsed APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return &parsed, resp.StatusCode, nil
}

// Post sends an authenticated POST and returns the parsed envelope.
func (env *E2ETestEnv) Post(path string, body interface{}, token string) (*APIResponse, int, error) {
	return env.do(http.MethodPost, path, body, token)
}

// Get sends an authenticated GET and returns the parsed envelope.
func (env *E2ETestEnv) Get(path, token string) (*APIResponse, int, error) {
	return env.do(http.MethodGet, path, nil, token)
}

// Delete sends an authenticated DELETE and returns the parsed envelope.
func (env *E2ETestEnv) Delete(path, token string) (*APIResponse, int, error) {
	return env.do(http.MethodDelete, path, nil, token)
}
