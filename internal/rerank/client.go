// Package rerank provides an HTTP client for cross-encoder rerank services
// (Cohere-compatible /rerank APIs, HuggingFace TEI, or a local model server).
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// ErrEmptyResponse is returned when the service answers with no results.
var ErrEmptyResponse = errors.New("rerank service returned no results")

// Config configures the rerank client.
type Config struct {
	// Endpoint is the rerank service URL, e.g. https://api.cohere.com/v2/rerank
	// or a local TEI instance.
	Endpoint string
	// APIKey for authentication (optional for local deployments).
	APIKey string
	// Model name passed through to the service.
	Model string
	// Timeout bounds a single rerank call. The pipeline applies its own
	// stage deadline on top via context.
	Timeout time.Duration
}

// Client calls an external cross-encoder rerank service.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores documents against the query and returns one score per input
// document, aligned to the input order. Documents the service omits keep a
// zero score.
func (c *Client) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.cfg.Model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank service returned status %d: %s", resp.StatusCode, string(payload))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, ErrEmptyResponse
	}

	scores := make([]float64, len(documents))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			continue
		}
		scores[r.Index] = r.RelevanceScore
	}

	return scores, nil
}
