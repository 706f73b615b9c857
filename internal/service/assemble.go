package service

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "cl100k_base"

// ContextAssembler produces the final bounded context set: deduplicated by
// source, truncated to a result count and a token budget, with an overall
// confidence score.
type ContextAssembler struct {
	maxTokens       int
	confidenceFloor float64

	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
}

func NewContextAssembler(maxTokens int, confidenceFloor float64) *ContextAssembler {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &ContextAssembler{maxTokens: maxTokens, confidenceFloor: confidenceFloor}
}

// Assemble finalizes the ordered candidate set. Candidates sharing a source
// keep only the best-ranked occurrence. An empty input yields an empty
// result with zero confidence, which callers must treat as "no grounding
// found" rather than an answer.
func (a *ContextAssembler) Assemble(contexts []*RetrievedContext, maxResults int) *RetrievalResult {
	if maxResults <= 0 {
		maxResults = 5
	}

	seen := make(map[string]struct{}, len(contexts))
	deduped := make([]*RetrievedContext, 0, len(contexts))
	for _, c := range contexts {
		if c == nil || c.Text == "" {
			continue
		}
		if _, ok := seen[c.SourceID]; ok {
			// Input arrives ranked, so the first occurrence per source
			// is already the best one.
			continue
		}
		seen[c.SourceID] = struct{}{}
		deduped = append(deduped, c)
	}

	budget := a.maxTokens
	final := make([]*RetrievedContext, 0, maxResults)
	for _, c := range deduped {
		if len(final) >= maxResults {
			break
		}
		cost := a.countTokens(c.Text)
		if cost > budget && len(final) > 0 {
			break
		}
		final = append(final, c)
		budget -= cost
	}

	if len(final) == 0 {
		return &RetrievalResult{Contexts: []*RetrievedContext{}, Confidence: 0}
	}

	confidence := clampConfidence(topScore(final[0]))
	if confidence < a.confidenceFloor {
		// Below the floor the evidence is noise: serve nothing so the
		// caller escalates instead of answering from weak grounding.
		return &RetrievalResult{Contexts: []*RetrievedContext{}, Confidence: 0}
	}

	return &RetrievalResult{
		Contexts:   final,
		Confidence: confidence,
	}
}

func topScore(c *RetrievedContext) float64 {
	if c.HasRerank {
		return c.RerankScore
	}
	return c.FusedScore
}

func (a *ContextAssembler) countTokens(text string) int {
	a.encodingOnce.Do(func() {
		encoding, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			log.Printf("assemble: failed to load %s encoding, using character approximation: %v", tokenEncoding, err)
			return
		}
		a.encoding = encoding
	})

	if a.encoding == nil {
		// Rough average of 4 characters per token for English text.
		return (len(text) + 3) / 4
	}
	return len(a.encoding.Encode(text, nil, nil))
}
