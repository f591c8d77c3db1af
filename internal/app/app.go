package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/tempuro/auth-service/internal/auth"
	"github.com/tempuro/auth-service/internal/config"
	"github.com/tempuro/auth-service/internal/event"
	handler "github.com/tempuro/auth-service/internal/handler/http"
	"github.com/tempuro/auth-service/internal/housekeeping"
	"github.com/tempuro/auth-service/internal/lockout"
	"github.com/tempuro/auth-service/internal/repository/postgres"
	"github.com/tempuro/auth-service/internal/service"
	"github.com/tempuro/auth-service/migrations"
	"github.com/tempuro/auth-service/pkg/breaker"
	"github.com/tempuro/auth-service/pkg/database"
	"github.com/tempuro/auth-service/pkg/health"
	pkgkafka "github.com/tempuro/auth-service/pkg/kafka"
	"github.com/tempuro/auth-service/pkg/tracing"
)

const serviceVersion = "0.1.0"

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	sweeper        *housekeeping.Sweeper
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
// On failure every resource opened so far is released.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, cfg.Tracing(serviceVersion))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	propagator := otel.GetTextMapPropagator()

	// Initialize PostgreSQL connection pool.
	a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err = database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, cfg.ServiceName); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	// Run database migrations.
	if err = database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQuery > 0 {
		database.SetSlowQueryLogging(cfg.SlowQuery, logger)
	}

	// Redis backs the login-attempt tracker only.
	var tracker service.LoginAttemptTracker
	if cfg.LockoutEnabled {
		a.redis, err = database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
		tracker = lockout.NewTracker(a.redis, cfg.Lockout(), logger)
	}

	// Kafka events are best effort and guarded by a circuit breaker.
	var events service.EventPublisher = event.Discard{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
		}, propagator, logger)
		events = event.NewProducer(a.producer, breaker.New(cfg.EventBreaker(), logger), logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	verifier, err := service.NewCredentialVerifier(tracker, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("create credential verifier: %w", err)
	}
	sessions := service.NewSessionService(
		postgres.NewTransactor(a.pool),
		verifier,
		service.NewAccountDirectory(cfg.DefaultRoleID),
		jwtManager,
		events,
		tracing.Tracer("github.com/tempuro/auth-service/internal/service"),
		logger,
		cfg.BcryptCost,
	)

	a.sweeper = housekeeping.NewSweeper(sessions, housekeeping.Config{
		Interval:  cfg.SweepInterval,
		Retention: cfg.SweepRetention,
	}, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})
	if a.redis != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return a.producer.Ping(ctx)
		})
	}

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName: cfg.ServiceName,
		Sessions:    sessions,
		Tokens:      jwtManager,
		Health:      healthHandler,
		Tracer:      tracing.Tracer("github.com/tempuro/auth-service/internal/handler/http"),
		Propagator:  propagator,
		CORS:        cfg.CORS(),
		Cookie:      handler.CookieConfig{Secure: cfg.RefreshCookieSecure},
		Logger:      logger,

		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimit:         cfg.RateLimit(),
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

// Run starts the sweeper and the HTTP server and blocks until the context is
// canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.sweeper.Start(ctx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Sweeper
// 3. Tracer (flush spans of drained requests)
// 4. Kafka producer, Redis client, PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.sweeper.Stop()

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release flushes the tracer and closes the backing clients. Nil resources
// are skipped, so it also cleans up after a partial NewApp.
func (a *App) release() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}
