package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// devOrigins apply when no origins are configured.
var devOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// CORS applies the browser origin policy. Origins may use one wildcard,
// e.g. "https://*.gigmarket.app". Headers the web client reads from
// responses are exposed explicitly.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = devOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders: []string{
			requestIDHeader, "X-GM-Token", "Idempotent-Replayed", "Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           600,
	})
}
