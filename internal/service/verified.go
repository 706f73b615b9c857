package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/echoself-ai/echoself/internal/domain"
)

// VerifiedAnswerMatcher checks owner-approved Q&A pairs before any vector
// search runs. A hit is authoritative: once an owner has approved an answer,
// that question must never again produce stale or generated output.
type VerifiedAnswerMatcher struct {
	store     VerifiedAnswerStore
	threshold float64
	timeout   time.Duration
}

type verifiedOutcome struct {
	answer   *domain.VerifiedAnswer
	degraded bool
	failure  *StageFailure
}

func NewVerifiedAnswerMatcher(store VerifiedAnswerStore, threshold float64, timeout time.Duration) *VerifiedAnswerMatcher {
	if threshold <= 0 {
		threshold = 0.92
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &VerifiedAnswerMatcher{store: store, threshold: threshold, timeout: timeout}
}

// Match runs the two-stage check: normalized exact text match, then cosine
// similarity against stored question embeddings with a high fixed threshold.
// The stage has its own deadline; on timeout or store failure it reports "no
// match" so the pipeline proceeds instead of blocking.
func (m *VerifiedAnswerMatcher) Match(ctx context.Context, twinID, query string, queryEmbedding []float32) *verifiedOutcome {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	normalized := domain.NormalizeQuestion(query)
	if normalized != "" {
		answer, err := m.store.FindByNormalizedQuestion(ctx, twinID, normalized)
		if err == nil && answer != nil {
			return &verifiedOutcome{answer: answer}
		}
		if err != nil && !errors.Is(err, domain.ErrVerifiedAnswerNotFound) {
			return m.degradedOutcome(twinID, "verified_exact", err)
		}
	}

	answer, similarity, err := m.store.FindNearestQuestion(ctx, twinID, queryEmbedding)
	if err != nil {
		if errors.Is(err, domain.ErrVerifiedAnswerNotFound) {
			return &verifiedOutcome{}
		}
		return m.degradedOutcome(twinID, "verified_similarity", err)
	}

	if float64(similarity) >= m.threshold {
		return &verifiedOutcome{answer: answer}
	}
	return &verifiedOutcome{}
}

func (m *VerifiedAnswerMatcher) degradedOutcome(twinID, stage string, err error) *verifiedOutcome {
	class := classifyError(err)
	log.Printf("verified: %s check failed for twin %s (class=%s, proceeding without match): %v", stage, twinID, class, err)
	return &verifiedOutcome{
		degraded: true,
		failure:  &StageFailure{Stage: stage, Class: class},
	}
}
