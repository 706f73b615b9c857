package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/echoself-ai/echoself/internal/domain"
	"github.com/echoself-ai/echoself/internal/telemetry"
)

// Embedder converts text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator runs a small generative call, used only for query expansion.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reranker scores candidate texts against a query with a cross-encoder model.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// VectorSearcher runs a namespace-scoped similarity query. Unknown namespaces
// return an empty result, not an error.
type VectorSearcher interface {
	SearchNamespace(ctx context.Context, namespace string, vector []float32, topK int) ([]*VectorMatch, error)
}

// VerifiedAnswerStore reads owner-approved Q&A pairs.
type VerifiedAnswerStore interface {
	FindByNormalizedQuestion(ctx context.Context, twinID, normalized string) (*domain.VerifiedAnswer, error)
	FindNearestQuestion(ctx context.Context, twinID string, embedding []float32) (*domain.VerifiedAnswer, float32, error)
}

// TwinStore resolves twin metadata needed for namespace derivation.
type TwinStore interface {
	GetOwnerRef(ctx context.Context, twinID string) (string, error)
}

// VectorMatch is one similarity hit from a single namespace query.
type VectorMatch struct {
	ID       string
	SourceID string
	Text     string
	Score    float32
	GroupIDs []string
}

// RetrievedContext is one ranked evidence candidate. Request-scoped; never
// persisted and never shared across requests.
type RetrievedContext struct {
	Text        string
	SourceID    string
	RawScore    float32
	RerankScore float64
	HasRerank   bool
	FusedScore  float64
	FusedRank   int
	Namespace   string
	GroupIDs    []string
}

// RetrievalResult is the engine's answer to one query. An empty context set
// with zero confidence means "no grounding found": callers escalate instead
// of fabricating an answer.
type RetrievalResult struct {
	Contexts       []*RetrievedContext
	Confidence     float64
	VerifiedAnswer *domain.VerifiedAnswer
	Degraded       bool
}

// RetrieveOptions are the per-request knobs exposed to the orchestrator.
type RetrieveOptions struct {
	DualRead     bool
	TopK         int
	MaxResults   int
	EnableRerank bool
}

// RetrieveInput is one retrieval request.
type RetrieveInput struct {
	Twin            domain.TwinRef
	Query           string
	RequesterGroups []string
	// OwnerRequest marks owner-initiated traffic: a missing group context
	// then proceeds unfiltered instead of failing closed.
	OwnerRequest bool
	Options      RetrieveOptions
}

// RetrievalConfig carries stage budgets and thresholds.
type RetrievalConfig struct {
	TopK               int
	MaxResults         int
	MaxContextTokens   int
	ConfidenceFloor    float64
	VerifiedSimilarity float64
	RerankScoreFloor   float64
	VerifiedTimeout    time.Duration
	FanoutTimeout      time.Duration
	RerankTimeout      time.Duration
}

// DefaultRetrievalConfig returns the production defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:               20,
		MaxResults:         5,
		MaxContextTokens:   2000,
		VerifiedSimilarity: 0.92,
		RerankScoreFloor:   0.001,
		VerifiedTimeout:    2 * time.Second,
		FanoutTimeout:      5 * time.Second,
		RerankTimeout:      3 * time.Second,
	}
}

// RetrievalService runs the full pipeline: verified-answer check, query
// expansion, namespace-scoped fan-out, RRF fusion, optional rerank,
// permission filtering and context assembly.
type RetrievalService struct {
	resolver  *NamespaceResolver
	verified  *VerifiedAnswerMatcher
	expander  *QueryExpander
	embedder  Embedder
	searcher  VectorSearcher
	reranker  Reranker
	assembler *ContextAssembler
	logs      RetrievalLogRepository
	cfg       RetrievalConfig
}

// NewRetrievalService wires the pipeline. reranker and logs may be nil; the
// corresponding stages are then skipped.
func NewRetrievalService(
	resolver *NamespaceResolver,
	verified *VerifiedAnswerMatcher,
	expander *QueryExpander,
	embedder Embedder,
	searcher VectorSearcher,
	reranker Reranker,
	logs RetrievalLogRepository,
	cfg RetrievalConfig,
) *RetrievalService {
	return &RetrievalService{
		resolver:  resolver,
		verified:  verified,
		expander:  expander,
		embedder:  embedder,
		searcher:  searcher,
		reranker:  reranker,
		assembler: NewContextAssembler(cfg.MaxContextTokens, cfg.ConfidenceFloor),
		logs:      logs,
		cfg:       cfg,
	}
}

// Retrieve resolves a query against a twin's knowledge base.
//
// A verified answer, when matched, is the sole and final answer source: no
// vector search runs afterwards. Otherwise the pipeline proceeds with
// whatever stages succeed, degrading rather than failing, except for the raw
// query embedding whose failure is fatal (no vectors, no search).
func (s *RetrievalService) Retrieve(ctx context.Context, input RetrieveInput) (*RetrievalResult, error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		TwinID:    input.Twin.ID,
		Operation: "retrieve",
	})
	defer span.End()

	if err := input.Twin.Validate(); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	opts := s.normalizeOptions(input.Options)

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	// The verified check and query expansion have no data dependency, so
	// they run concurrently. The verified result decides whether expansion
	// output is ever used.
	verifiedCh := make(chan *verifiedOutcome, 1)
	expandCh := make(chan *ExpandedQuery, 1)

	expandCtx, cancelExpand := context.WithCancel(ctx)
	defer cancelExpand()

	go func() {
		verifiedCh <- s.verified.Match(ctx, input.Twin.ID, query, queryVector)
	}()
	go func() {
		expandCh <- s.expander.Expand(expandCtx, query)
	}()

	verified := <-verifiedCh
	if verified.answer != nil {
		cancelExpand()
		result := &RetrievalResult{
			VerifiedAnswer: verified.answer,
			Confidence:     clampConfidence(float64(verified.answer.Confidence)),
			Contexts:       []*RetrievedContext{},
			Degraded:       verified.degraded,
		}
		s.record(ctx, input, query, result, nil, time.Since(start))
		return result, nil
	}

	degraded := verified.degraded
	var stageFailures []StageFailure
	if verified.failure != nil {
		stageFailures = append(stageFailures, *verified.failure)
	}

	expanded := <-expandCh
	if expanded.Degraded {
		degraded = true
		stageFailures = append(stageFailures, StageFailure{Stage: "expand", Class: domain.ErrCodeProviderUnavailable})
	}

	queryVectors := [][]float32{queryVector}
	if termsText := expanded.TermsText(); termsText != "" {
		termsVector, embedErr := s.embedder.Embed(ctx, termsText)
		if embedErr != nil {
			log.Printf("retrieval: terms embedding failed for twin %s: %v", input.Twin.ID, embedErr)
			degraded = true
			stageFailures = append(stageFailures, StageFailure{Stage: "embed_terms", Class: classifyError(embedErr)})
		} else {
			queryVectors = append(queryVectors, termsVector)
		}
	}
	if expanded.HypotheticalAnswer != "" {
		hypVector, embedErr := s.embedder.Embed(ctx, expanded.EmbeddingText())
		if embedErr != nil {
			// The raw query vector is already in hand, so a failed
			// hypothetical embedding only costs recall.
			log.Printf("retrieval: hypothetical embedding failed for twin %s: %v", input.Twin.ID, embedErr)
			degraded = true
			stageFailures = append(stageFailures, StageFailure{Stage: "embed_hypothetical", Class: classifyError(embedErr)})
		} else {
			queryVectors = append(queryVectors, hypVector)
		}
	}

	namespaces, nsDegraded := s.resolver.Resolve(ctx, input.Twin, opts.DualRead)
	if nsDegraded {
		degraded = true
		stageFailures = append(stageFailures, StageFailure{Stage: "resolve", Class: domain.ErrCodeNoNamespace})
	}
	if len(namespaces) == 0 {
		result := &RetrievalResult{Contexts: []*RetrievedContext{}, Confidence: 0, Degraded: true}
		s.record(ctx, input, query, result, stageFailures, time.Since(start))
		return result, nil
	}

	fanout := s.fanOut(ctx, namespaces, queryVectors, opts.TopK)
	if fanout.degraded {
		degraded = true
		stageFailures = append(stageFailures, fanout.failures...)
	}

	contexts := fuseRankedLists(fanout.lists, rrfK)

	if opts.EnableRerank && s.reranker != nil && len(contexts) > 0 {
		reranked, rerankFailure := s.rerankContexts(ctx, query, contexts)
		contexts = reranked
		if rerankFailure != nil {
			degraded = true
			stageFailures = append(stageFailures, *rerankFailure)
		}
	}

	filtered, permFailure := filterByGroups(contexts, input.RequesterGroups, input.OwnerRequest, input.Twin.ID)
	if permFailure != nil {
		stageFailures = append(stageFailures, *permFailure)
	}

	result := s.assembler.Assemble(filtered, opts.MaxResults)
	result.Degraded = degraded

	s.record(ctx, input, query, result, stageFailures, time.Since(start))
	return result, nil
}

func (s *RetrievalService) normalizeOptions(opts RetrieveOptions) RetrieveOptions {
	if opts.TopK <= 0 {
		opts.TopK = s.cfg.TopK
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = s.cfg.MaxResults
	}
	return opts
}

func (s *RetrievalService) record(ctx context.Context, input RetrieveInput, query string, result *RetrievalResult, failures []StageFailure, elapsed time.Duration) {
	if s.logs == nil {
		return
	}

	entry := RetrievalLogEntry{
		TwinID:        input.Twin.ID,
		Query:         query,
		DualRead:      input.Options.DualRead,
		VerifiedHit:   result.VerifiedAnswer != nil,
		ResultCount:   len(result.Contexts),
		Confidence:    result.Confidence,
		Degraded:      result.Degraded,
		StageFailures: failures,
		DurationMs:    int(elapsed.Milliseconds()),
	}

	// Observability only: a failed insert must not fail the request.
	if _, err := s.logs.CreateRetrievalLog(ctx, entry); err != nil {
		log.Printf("retrieval: failed to record retrieval log for twin %s: %v", input.Twin.ID, err)
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
