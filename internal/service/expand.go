package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

const expandTimeout = 4 * time.Second

const expandPromptTemplate = `You improve search recall for a question-answering system.
Given the user question below, respond with JSON only, no prose:
{"terms": ["up to 6 synonyms or related search terms"], "hypothetical_answer": "a plausible 2-3 sentence answer to the question"}

Question: %s`

// ExpandedQuery is the output of query expansion: extra search terms plus a
// hypothetical answer whose embedding is queried alongside the raw query
// (hypothetical-document-embedding: a drafted answer lands closer to real
// answer chunks than a terse question does).
type ExpandedQuery struct {
	Original           string
	RewrittenTerms     []string
	HypotheticalAnswer string
	Degraded           bool
}

// EmbeddingText returns the text to embed for the hypothetical-answer query.
func (e *ExpandedQuery) EmbeddingText() string {
	return e.HypotheticalAnswer
}

// TermsText returns the recall-widening text to embed alongside the raw
// query: the original question plus the rewritten terms. Empty when
// expansion produced no terms.
func (e *ExpandedQuery) TermsText() string {
	if len(e.RewrittenTerms) == 0 {
		return ""
	}
	return e.Original + " " + strings.Join(e.RewrittenTerms, " ")
}

// QueryExpander rewrites queries via one small generative call. It never
// fails a request: any provider problem falls back to the raw query.
type QueryExpander struct {
	generator Generator
}

func NewQueryExpander(generator Generator) *QueryExpander {
	return &QueryExpander{generator: generator}
}

type expansionPayload struct {
	Terms              []string `json:"terms"`
	HypotheticalAnswer string   `json:"hypothetical_answer"`
}

// Expand generates rewritten terms and a hypothetical answer for the query.
func (e *QueryExpander) Expand(ctx context.Context, query string) *ExpandedQuery {
	fallback := &ExpandedQuery{Original: query}
	if e.generator == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, expandTimeout)
	defer cancel()

	raw, err := e.generator.Generate(ctx, fmt.Sprintf(expandPromptTemplate, query))
	if err != nil {
		// Cancellation means a verified answer already won the race; only
		// real provider failures are worth a log line.
		if !errors.Is(err, context.Canceled) {
			log.Printf("expand: generation failed (falling back to raw query): %v", err)
		}
		fallback.Degraded = true
		return fallback
	}

	payload, err := parseExpansion(raw)
	if err != nil {
		log.Printf("expand: unparseable expansion output (falling back to raw query): %v", err)
		fallback.Degraded = true
		return fallback
	}

	terms := make([]string, 0, len(payload.Terms))
	for _, t := range payload.Terms {
		t = strings.TrimSpace(t)
		if t != "" && !strings.EqualFold(t, query) {
			terms = append(terms, t)
		}
	}

	return &ExpandedQuery{
		Original:           query,
		RewrittenTerms:     terms,
		HypotheticalAnswer: strings.TrimSpace(payload.HypotheticalAnswer),
	}
}

// parseExpansion tolerates models that wrap JSON in markdown fences.
func parseExpansion(raw string) (*expansionPayload, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload expansionPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
