package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/brindes-backend/pkg/config"
)

// CORS admits the configured frontend origins. Credentials are never
// combined with a wildcard origin.
func CORS(app config.AppConfig) func(http.Handler) http.Handler {
	wildcard := slices.Contains(app.CORSAllowedOrigins, "*")
	return cors.New(cors.Options{
		AllowedOrigins:   app.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, idempotencyReplayHeader},
		AllowCredentials: !wildcard,
		MaxAge:           600,
	}).Handler
}
