package service

import (
	"context"
	"log"
	"math"
	"sort"

	"github.com/echoself-ai/echoself/internal/domain"
)

// rerankContexts re-scores the fused candidate set with the cross-encoder
// service. The stage is best-effort on two levels: a failed or slow call
// keeps the fused order, and a batch where every score lands below the
// sanity floor is treated as model misbehavior and reverted rather than
// trusted — degenerate scores would otherwise silently bury all evidence.
func (s *RetrievalService) rerankContexts(ctx context.Context, query string, contexts []*RetrievedContext) ([]*RetrievedContext, *StageFailure) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RerankTimeout)
	defer cancel()

	documents := make([]string, len(contexts))
	for i, c := range contexts {
		documents[i] = c.Text
	}

	scores, err := s.reranker.Rerank(ctx, query, documents)
	if err != nil {
		class := classifyError(err)
		log.Printf("rerank: call failed (class=%s, keeping fused order): %v", class, err)
		return contexts, &StageFailure{Stage: "rerank", Class: class}
	}
	if len(scores) != len(contexts) {
		log.Printf("rerank: score count mismatch (%d scores for %d candidates, keeping fused order)", len(scores), len(contexts))
		return contexts, &StageFailure{Stage: "rerank", Class: domain.ErrCodeProviderUnavailable}
	}

	// Cross-encoder logits can be entirely negative, so the maximum must
	// start below any real score.
	maxScore := math.Inf(-1)
	for _, score := range scores {
		if score > maxScore {
			maxScore = score
		}
	}
	if maxScore < s.cfg.RerankScoreFloor {
		log.Printf("rerank: degenerate batch (max score %.6f below floor %.6f), reverting to fused order", maxScore, s.cfg.RerankScoreFloor)
		return contexts, &StageFailure{Stage: "rerank", Class: domain.ErrCodeProviderUnavailable}
	}

	reranked := make([]*RetrievedContext, len(contexts))
	for i, c := range contexts {
		c.RerankScore = scores[i]
		c.HasRerank = true
		reranked[i] = c
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankScore > reranked[j].RerankScore
	})

	return reranked, nil
}
