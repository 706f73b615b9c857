package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echoself-ai/echoself/internal/api"
	"github.com/echoself-ai/echoself/internal/domain"
	"github.com/echoself-ai/echoself/internal/service"
)

// NamespaceHandler exposes the resolver for debugging and cache management.
type NamespaceHandler struct {
	resolver *service.NamespaceResolver
}

func NewNamespaceHandler(resolver *service.NamespaceResolver) *NamespaceHandler {
	return &NamespaceHandler{resolver: resolver}
}

type NamespacesResponse struct {
	TwinID     string   `json:"twin_id"`
	Namespaces []string `json:"namespaces"`
	Degraded   bool     `json:"degraded"`
}

// Resolve handles GET /v1/twins/{id}/namespaces.
func (h *NamespaceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	twinID := chi.URLParam(r, "id")
	if twinID == "" {
		api.HandleError(w, domain.ErrMissingTwinID)
		return
	}

	dualRead := r.URL.Query().Get("dual_read") != "false"

	namespaces, degraded := h.resolver.Resolve(r.Context(), domain.TwinRef{ID: twinID}, dualRead)
	api.Success(w, http.StatusOK, NamespacesResponse{
		TwinID:     twinID,
		Namespaces: namespaces,
		Degraded:   degraded,
	})
}

// InvalidateCache handles DELETE /v1/twins/{id}/namespaces/cache.
func (h *NamespaceHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	twinID := chi.URLParam(r, "id")
	if twinID == "" {
		api.HandleError(w, domain.ErrMissingTwinID)
		return
	}

	h.resolver.Invalidate(twinID)
	api.Success(w, http.StatusOK, map[string]string{"status": "invalidated"})
}
