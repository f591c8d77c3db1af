package middleware

import (
	"log/slog"
	"net/http"

	"github.com/tempuro/auth-service/pkg/logger"
)

// RequestLogger stores a logger enriched with correlation_id, trace_id and
// span_id in the request context for logger.FromContext.
//
// Mount it after RequestLogging and Tracing so those values already exist.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountLogger re-derives the request logger once BearerAuth has run, so
// log lines from authenticated routes carry the subject.
func AccountLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if subject := SubjectFromContext(ctx); subject != "" {
				ctx = logger.WithSubject(ctx, subject)
				ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
