package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/echoself-ai/echoself/internal/api"
)

// ServiceTokenAuth authenticates the answer orchestrator via a shared bearer
// token. An empty configured token disables the check (local development).
// Full API-key management lives in the surrounding platform, not here.
func ServiceTokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || presented == "" {
				api.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				api.Error(w, http.StatusUnauthorized, "invalid service token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
