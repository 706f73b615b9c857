package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echoself-ai/echoself/internal/api"
	"github.com/echoself-ai/echoself/internal/api/handlers"
	"github.com/echoself-ai/echoself/internal/api/middleware"
)

type RouterConfig struct {
	ServiceToken     string
	RetrieveHandler  *handlers.RetrieveHandler
	NamespaceHandler *handlers.NamespaceHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ServiceTokenAuth(cfg.ServiceToken))

		r.Post("/v1/retrieve", cfg.RetrieveHandler.Retrieve)

		r.Route("/v1/twins/{id}/namespaces", func(r chi.Router) {
			r.Get("/", cfg.NamespaceHandler.Resolve)
			r.Delete("/cache", cfg.NamespaceHandler.InvalidateCache)
		})
	})

	return r
}
