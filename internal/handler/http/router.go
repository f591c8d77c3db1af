package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tempuro/auth-service/pkg/health"
	"github.com/tempuro/auth-service/pkg/middleware"
)

// RouterConfig holds the collaborators and settings of the HTTP router.
type RouterConfig struct {
	ServiceName string
	Sessions    SessionService
	Tokens      AccessTokenValidator
	Health      *health.Handler
	Tracer      trace.Tracer
	Propagator  propagation.TextMapPropagator
	CORS        middleware.CORSConfig
	Cookie      CookieConfig
	Logger      *slog.Logger

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP.
	TrustProxyHeaders bool

	// RateLimit throttles the unauthenticated auth endpoints per client. Nil
	// disables it.
	RateLimit *middleware.RateLimitConfig
}

// NewRouter creates a chi router with all auth service routes registered.
// A nil Tracer or Propagator disables trace export but keeps W3C propagation.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if cfg.Propagator == nil {
		cfg.Propagator = propagation.TraceContext{}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.ClientIP(cfg.TrustProxyHeaders))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing(cfg.Tracer, cfg.Propagator))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(cfg.Sessions, cfg.Cookie, cfg.Logger)
	r.Route("/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Group(func(r chi.Router) {
			if cfg.RateLimit != nil {
				r.Use(middleware.RateLimit(*cfg.RateLimit, cfg.Logger))
			}

			r.Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Authenticated session management
		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(bearerValidator(cfg.Tokens)))
			r.Use(middleware.AccountLogger(cfg.Logger))

			r.Post("/logout-all", authHandler.LogoutAll)
			r.Get("/sessions", authHandler.Sessions)
		})
	})

	return r
}
