package service

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/echoself-ai/echoself/internal/domain"
)

// rankedList is the ordered result of one (namespace, query vector) search.
type rankedList struct {
	namespace string
	matches   []*VectorMatch
}

// StageFailure classifies one non-fatal pipeline failure for logging and the
// retrieval log. A timeout and a connection error look identical to the
// caller but need distinct treatment in dashboards.
type StageFailure struct {
	Stage     string `json:"stage"`
	Namespace string `json:"namespace,omitempty"`
	Class     string `json:"class"`
}

type fanOutResult struct {
	lists    []rankedList
	degraded bool
	failures []StageFailure
}

// fanOut issues one similarity query per (namespace, query vector) pair
// concurrently under a single stage deadline. Queries that miss the deadline
// or fail are dropped and logged with their namespace and failure class; the
// stage never fails the request.
func (s *RetrievalService) fanOut(ctx context.Context, namespaces []string, vectors [][]float32, topK int) *fanOutResult {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FanoutTimeout)
	defer cancel()

	type slot struct {
		namespace string
		vector    []float32
	}
	slots := make([]slot, 0, len(namespaces)*len(vectors))
	for _, ns := range namespaces {
		for _, vec := range vectors {
			slots = append(slots, slot{namespace: ns, vector: vec})
		}
	}

	out := &fanOutResult{lists: make([]rankedList, len(slots))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, sl := range slots {
		g.Go(func() error {
			matches, err := s.searcher.SearchNamespace(gctx, sl.namespace, sl.vector, topK)
			if err != nil {
				class := classifyError(err)
				log.Printf("fanout: namespace %s query failed (class=%s): %v", sl.namespace, class, err)
				mu.Lock()
				out.degraded = true
				out.failures = append(out.failures, StageFailure{Stage: "fanout", Namespace: sl.namespace, Class: class})
				mu.Unlock()
				// Partial results beat no results; swallow after classifying.
				return nil
			}
			out.lists[i] = rankedList{namespace: sl.namespace, matches: matches}
			return nil
		})
	}
	_ = g.Wait()

	// Drop empty slots so fusion only sees lists that answered.
	lists := out.lists[:0]
	for _, l := range out.lists {
		if len(l.matches) > 0 {
			lists = append(lists, l)
		}
	}
	out.lists = lists

	return out
}

// classifyError maps an error to the retrieval failure taxonomy.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrCodeProviderTimeout
	case errors.Is(err, context.Canceled):
		return domain.ErrCodeProviderTimeout
	case errors.Is(err, domain.ErrDimensionMismatch):
		return domain.ErrCodeDimensionMismatch
	case errors.Is(err, domain.ErrTwinNotFound):
		return domain.ErrCodeNotFound
	default:
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			return domainErr.Code
		}
		return domain.ErrCodeProviderUnavailable
	}
}
