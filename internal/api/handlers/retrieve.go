package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/echoself-ai/echoself/internal/api"
	"github.com/echoself-ai/echoself/internal/domain"
	"github.com/echoself-ai/echoself/internal/service"
)

// RetrievalService is the engine surface consumed by this handler.
type RetrievalService interface {
	Retrieve(ctx context.Context, input service.RetrieveInput) (*service.RetrievalResult, error)
}

// RetrieveDefaults are the environment-provided option fallbacks applied
// when a request leaves dual_read or enable_rerank unset.
type RetrieveDefaults struct {
	DualRead     bool
	EnableRerank bool
}

type RetrieveHandler struct {
	svc      RetrievalService
	defaults RetrieveDefaults
}

func NewRetrieveHandler(svc RetrievalService, defaults RetrieveDefaults) *RetrieveHandler {
	return &RetrieveHandler{svc: svc, defaults: defaults}
}

type RetrieveRequest struct {
	TwinID       string   `json:"twin_id"`
	OwnerRef     string   `json:"owner_ref,omitempty"`
	Query        string   `json:"query"`
	GroupIDs     []string `json:"group_ids,omitempty"`
	OwnerRequest bool     `json:"owner_request,omitempty"`

	DualRead     *bool `json:"dual_read,omitempty"`
	TopK         int   `json:"top_k,omitempty"`
	MaxResults   int   `json:"max_results,omitempty"`
	EnableRerank *bool `json:"enable_rerank,omitempty"`
}

type ContextResponse struct {
	Text        string  `json:"text"`
	SourceID    string  `json:"source_id"`
	Namespace   string  `json:"namespace"`
	RawScore    float32 `json:"raw_score"`
	FusedScore  float64 `json:"fused_score"`
	FusedRank   int     `json:"fused_rank"`
	RerankScore float64 `json:"rerank_score,omitempty"`
}

type VerifiedAnswerResponse struct {
	ID         string  `json:"id"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float32 `json:"confidence"`
}

type RetrieveResponse struct {
	Contexts       []*ContextResponse      `json:"contexts"`
	Confidence     float64                 `json:"confidence"`
	VerifiedAnswer *VerifiedAnswerResponse `json:"verified_answer,omitempty"`
	Degraded       bool                    `json:"degraded"`
}

// Retrieve handles POST /v1/retrieve for the answer orchestrator.
func (h *RetrieveHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.TwinID) == "" {
		api.HandleError(w, domain.ErrMissingTwinID)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		api.HandleError(w, domain.ErrEmptyQuery)
		return
	}

	opts := service.RetrieveOptions{
		DualRead:     h.defaults.DualRead,
		TopK:         req.TopK,
		MaxResults:   req.MaxResults,
		EnableRerank: h.defaults.EnableRerank,
	}
	if req.DualRead != nil {
		opts.DualRead = *req.DualRead
	}
	if req.EnableRerank != nil {
		opts.EnableRerank = *req.EnableRerank
	}

	result, err := h.svc.Retrieve(r.Context(), service.RetrieveInput{
		Twin:            domain.TwinRef{ID: req.TwinID, OwnerRef: req.OwnerRef},
		Query:           req.Query,
		RequesterGroups: req.GroupIDs,
		OwnerRequest:    req.OwnerRequest,
		Options:         opts,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toRetrieveResponse(result))
}

func toRetrieveResponse(result *service.RetrievalResult) *RetrieveResponse {
	resp := &RetrieveResponse{
		Contexts:   make([]*ContextResponse, 0, len(result.Contexts)),
		Confidence: result.Confidence,
		Degraded:   result.Degraded,
	}

	for _, c := range result.Contexts {
		entry := &ContextResponse{
			Text:       c.Text,
			SourceID:   c.SourceID,
			Namespace:  c.Namespace,
			RawScore:   c.RawScore,
			FusedScore: c.FusedScore,
			FusedRank:  c.FusedRank,
		}
		if c.HasRerank {
			entry.RerankScore = c.RerankScore
		}
		resp.Contexts = append(resp.Contexts, entry)
	}

	if result.VerifiedAnswer != nil {
		resp.VerifiedAnswer = &VerifiedAnswerResponse{
			ID:         result.VerifiedAnswer.ID,
			Question:   result.VerifiedAnswer.QuestionText,
			Answer:     result.VerifiedAnswer.AnswerText,
			Confidence: result.VerifiedAnswer.Confidence,
		}
	}

	return resp
}
