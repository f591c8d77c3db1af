package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tempuro/auth-service/internal/lockout"
	"github.com/tempuro/auth-service/pkg/breaker"
	pkgconfig "github.com/tempuro/auth-service/pkg/config"
	"github.com/tempuro/auth-service/pkg/database"
	"github.com/tempuro/auth-service/pkg/middleware"
	"github.com/tempuro/auth-service/pkg/tracing"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the auth service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"auth-service"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort            int           `env:"AUTH_HTTP_PORT" envDefault:"8080"`
	HTTPReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	HTTPWriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	HTTPIdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	RefreshCookieSecure bool          `env:"REFRESH_COOKIE_SECURE" envDefault:"true"`

	// PostgreSQL
	PostgresHost     string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string        `env:"POSTGRES_USER" envDefault:"auth"`
	PostgresPass     string        `env:"POSTGRES_PASSWORD" envDefault:"auth_secret"`
	PostgresDB       string        `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32         `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	PostgresMinConns int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	SlowQuery        time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"auth-service"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"720h"`

	// Accounts
	BcryptCost    int   `env:"BCRYPT_COST" envDefault:"12"`
	DefaultRoleID int64 `env:"DEFAULT_ROLE_ID" envDefault:"2"`

	// Lockout
	LockoutEnabled   bool          `env:"LOCKOUT_ENABLED" envDefault:"true"`
	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutWindow    time.Duration `env:"LOCKOUT_WINDOW" envDefault:"15m"`

	// Housekeeping
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	SweepRetention time.Duration `env:"SWEEP_RETENTION" envDefault:"24h"`

	// Tracing
	TracingEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	TracingEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Rate limiting of the public auth endpoints
	RateLimitEnabled  bool    `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS      float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst    int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
	TrustProxyHeaders bool    `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

// Load reads an optional env file (ENV_FILE, default .env) and then the
// process environment, and validates the result.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := pkgconfig.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}

	// Outside development, require an explicitly set, strong JWT secret.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment))
		} else if len(c.JWTSecret) < 32 {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret)))
		}
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}

	for name, d := range map[string]time.Duration{
		"JWT_ACCESS_TOKEN_EXPIRY":  c.JWTAccessExpiry,
		"JWT_REFRESH_TOKEN_EXPIRY": c.JWTRefreshExpiry,
		"SWEEP_INTERVAL":           c.SweepInterval,
		"LOCKOUT_WINDOW":           c.LockoutWindow,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.SweepRetention < 0 {
		errs = append(errs, fmt.Errorf("SWEEP_RETENTION must not be negative, got %s", c.SweepRetention))
	}

	if c.LockoutEnabled && c.LockoutThreshold < 1 {
		errs = append(errs, fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1, got %d", c.LockoutThreshold))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}
	if c.DefaultRoleID < 1 {
		errs = append(errs, fmt.Errorf("DEFAULT_ROLE_ID must be positive, got %d", c.DefaultRoleID))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst < 1) {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive, got %g and %d", c.RateLimitRPS, c.RateLimitBurst))
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %g", c.TracingSampleRate))
	}

	return errors.Join(errs...)
}

// Postgres returns the pool settings.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        c.PostgresMinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Redis returns the client settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:         c.RedisHost,
		Port:         c.RedisPort,
		Password:     c.RedisPassword,
		DB:           c.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Lockout returns the login-attempt tracker settings.
func (c *Config) Lockout() lockout.Config {
	return lockout.Config{
		Enabled:   c.LockoutEnabled,
		Threshold: c.LockoutThreshold,
		Window:    c.LockoutWindow,
	}
}

// Tracing returns the tracer provider settings.
func (c *Config) Tracing(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    c.ServiceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.TracingEndpoint,
		SampleRate:     c.TracingSampleRate,
		Enabled:        c.TracingEnabled,
	}
}

// CORS returns the cross-origin settings. Credentials are always allowed so
// browsers send the refresh cookie.
func (c *Config) CORS() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins:   c.CORSAllowedOrigins,
		AllowCredentials: true,
		MaxAgeSeconds:    3600,
		Debug:            c.Environment == "development" && c.LogLevel == "debug",
	}
}

// RateLimit returns the per-client limiter settings, or nil when disabled.
func (c *Config) RateLimit() *middleware.RateLimitConfig {
	if !c.RateLimitEnabled {
		return nil
	}
	return &middleware.RateLimitConfig{
		RPS:               c.RateLimitRPS,
		Burst:             c.RateLimitBurst,
		TrustForwardedFor: c.TrustProxyHeaders,
	}
}

// EventBreaker returns the circuit breaker settings guarding Kafka.
func (c *Config) EventBreaker() breaker.Config {
	return breaker.DefaultConfig("kafka-events")
}
