package middleware

import (
	"net/http"
	"slices"

	"github.com/rs/cors"
)

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string
	// AllowCredentials must be true for browsers to send the refresh cookie.
	AllowCredentials bool
	MaxAgeSeconds    int
	Debug            bool
}

// CORS builds an rs/cors handler. A wildcard origin cannot be combined with
// credentials, so "*" is dropped from the list when credentials are allowed.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	origins := cfg.AllowedOrigins
	if cfg.AllowCredentials {
		origins = slices.DeleteFunc(slices.Clone(origins), func(o string) bool { return o == "*" })
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", CorrelationHeader},
		ExposedHeaders:   []string{CorrelationHeader},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAgeSeconds,
		Debug:            cfg.Debug,
	})
	return c.Handler
}
