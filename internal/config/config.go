// Package config provides environment-based configuration loading for the
// gateway process and its sidecar binaries (worker, scheduler).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds general application identity settings.
type AppConfig struct {
	// Env selects the runtime profile: development, staging, production, test.
	Env string `envconfig:"APP_ENV" default:"development"`
	// ServiceName identifies this process in logs, traces and metrics.
	ServiceName string `envconfig:"APP_SERVICE_NAME" default:"edge-gateway"`
	// ListenAddr is the bind address for the public-facing listener.
	ListenAddr string `envconfig:"GATEWAY_LISTEN_ADDR" default:":8080"`
	// InternalListenAddr is the bind address for health/metrics/admin routes.
	InternalListenAddr string `envconfig:"GATEWAY_INTERNAL_LISTEN_ADDR" default:"127.0.0.1:8081"`
	// RequestTimeout is the per-request deadline applied to every inbound request.
	RequestTimeout time.Duration `envconfig:"GATEWAY_REQUEST_TIMEOUT_MS" default:"30000ms"`
	// ShutdownTimeout bounds how long graceful shutdown waits for in-flight requests.
	ShutdownTimeout time.Duration `envconfig:"GATEWAY_SHUTDOWN_TIMEOUT" default:"30s"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	// Format is "json" (production) or "console" (development).
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// ObservabilityConfig controls the OTEL tracer provider. Leaving
// ExporterEndpoint empty disables tracing entirely.
type ObservabilityConfig struct {
	ExporterEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName      string `envconfig:"OTEL_SERVICE_NAME" default:"edge-gateway"`
}

// RedisConfig configures the connection to the shared cache store used for
// sessions, permission caching, distributed rate limiting and online
// presence tracking.
type RedisConfig struct {
	Host         string        `envconfig:"CACHE_STORE_HOST" default:"localhost"`
	Port         int           `envconfig:"CACHE_STORE_PORT" default:"6379"`
	Password     string        `envconfig:"CACHE_STORE_PASSWORD"`
	DB           int           `envconfig:"CACHE_STORE_DB" default:"0"`
	PoolSize     int           `envconfig:"CACHE_STORE_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CACHE_STORE_MIN_IDLE_CONNS" default:"5"`
	DialTimeout  time.Duration `envconfig:"CACHE_STORE_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CACHE_STORE_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"CACHE_STORE_WRITE_TIMEOUT" default:"3s"`
	// Timeout is the overall cache-store operation deadline (cache_store.timeout_ms).
	Timeout time.Duration `envconfig:"CACHE_STORE_TIMEOUT_MS" default:"5000ms"`
}

// AsynqConfig configures the asynq worker server used for the CCU scan and
// policy refresh jobs.
type AsynqConfig struct {
	Concurrency     int           `envconfig:"ASYNQ_CONCURRENCY" default:"10"`
	ShutdownTimeout time.Duration `envconfig:"ASYNQ_SHUTDOWN_TIMEOUT" default:"30s"`
}

// RateLimitConfig holds the per-tier token bucket capacities, expressed as
// tokens refilled per minute (rate_limit.<tier>_capacity).
type RateLimitConfig struct {
	AnonymousCapacity     int `envconfig:"RATE_LIMIT_ANONYMOUS_CAPACITY" default:"100"`
	AuthenticatedCapacity int `envconfig:"RATE_LIMIT_AUTHENTICATED_CAPACITY" default:"1000"`
	PremiumCapacity       int `envconfig:"RATE_LIMIT_PREMIUM_CAPACITY" default:"10000"`
}

// SessionConfig controls the in-process L1 session cache that fronts Redis.
type SessionConfig struct {
	L1Max int           `envconfig:"SESSION_L1_MAX" default:"100000"`
	L1TTL time.Duration `envconfig:"SESSION_L1_TTL_MS" default:"60000ms"`
	// RefreshTTL bounds the SESSION_ID cookie's max-age.
	RefreshTTL time.Duration `envconfig:"SESSION_REFRESH_TTL" default:"24h"`
}

// CCUConfig controls the online-presence heartbeat scan.
type CCUConfig struct {
	OnlineTTLMinutes int `envconfig:"CCU_ONLINE_TTL_MINUTES" default:"2"`
}

// PolicyConfig controls how often the policy set is reloaded from its source.
type PolicyConfig struct {
	RefreshIntervalSeconds int `envconfig:"POLICY_REFRESH_INTERVAL_S" default:"60"`
}

// OIDCConfig configures the OIDC authenticator and the /oauth2, /login
// PKCE endpoints.
type OIDCConfig struct {
	Enabled      bool     `envconfig:"OIDC_ENABLED" default:"false"`
	IssuerURL    string   `envconfig:"OIDC_ISSUER_URL"`
	ClientID     string   `envconfig:"OIDC_CLIENT_ID"`
	ClientSecret string   `envconfig:"OIDC_CLIENT_SECRET"`
	RedirectURL  string   `envconfig:"OIDC_REDIRECT_URL"`
	Audience     []string `envconfig:"OIDC_AUDIENCE"`
	RolesClaim   string   `envconfig:"OIDC_ROLES_CLAIM" default:"realm_access.roles"`
	// PostLoginRedirectURL is where a successful PKCE callback sends the browser.
	PostLoginRedirectURL string `envconfig:"OIDC_POST_LOGIN_REDIRECT_URL" default:"/"`
}

// IdentityConfig locates the identity service's internal permission RPC.
type IdentityConfig struct {
	BaseURL string `envconfig:"IDENTITY_SERVICE_URL" default:"http://identity-service"`
}

// UpstreamConfig holds per-upstream transport timeouts and pool sizing.
// Upstream names are not modeled here (they are data, loaded from the
// route descriptor table) — this struct supplies the defaults applied
// when a route omits an override.
type UpstreamConfig struct {
	ConnectTimeout time.Duration `envconfig:"UPSTREAM_CONNECT_TIMEOUT_MS" default:"2000ms"`
	ReadTimeout    time.Duration `envconfig:"UPSTREAM_READ_TIMEOUT_MS" default:"10000ms"`
	WriteTimeout   time.Duration `envconfig:"UPSTREAM_WRITE_TIMEOUT_MS" default:"10000ms"`
	MaxConnections int           `envconfig:"UPSTREAM_MAX_CONNECTIONS" default:"100"`
}

// BreakerConfig holds the default circuit breaker thresholds applied to
// every upstream unless a route-specific override is supplied.
type BreakerConfig struct {
	FailureRatePct    int           `envconfig:"BREAKER_FAILURE_RATE_PCT" default:"50"`
	SlowCallMs        time.Duration `envconfig:"BREAKER_SLOW_CALL_MS" default:"2000ms"`
	WaitDuration      time.Duration `envconfig:"BREAKER_WAIT_DURATION_S" default:"10s"`
	PermittedHalfOpen int           `envconfig:"BREAKER_PERMITTED_HALF_OPEN" default:"10"`
	WindowSize        int           `envconfig:"BREAKER_WINDOW_SIZE" default:"100"`
	MinimumThroughput int           `envconfig:"BREAKER_MINIMUM_THROUGHPUT" default:"10"`
}

// RetryConfig holds the default retry policy applied to upstream calls.
type RetryConfig struct {
	MaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	Interval    time.Duration `envconfig:"RETRY_INTERVAL_MS" default:"100ms"`
	Multiplier  float64       `envconfig:"RETRY_MULTIPLIER" default:"2.0"`
}

// BulkheadConfig bounds the concurrent in-flight calls to a single upstream.
type BulkheadConfig struct {
	MaxConcurrent int `envconfig:"BULKHEAD_MAX_CONCURRENT" default:"10"`
	MaxWaiting    int `envconfig:"BULKHEAD_MAX_WAITING" default:"100"`
}

// Config aggregates every configuration surface the gateway and its
// sidecar binaries (worker, scheduler) read from the environment.
type Config struct {
	App           AppConfig
	Log           LogConfig
	Observability ObservabilityConfig
	Redis         RedisConfig
	Asynq         AsynqConfig
	RateLimit     RateLimitConfig
	Session       SessionConfig
	CCU           CCUConfig
	Policy        PolicyConfig
	OIDC          OIDCConfig
	Identity      IdentityConfig
	Upstream      UpstreamConfig
	Breaker       BreakerConfig
	Retry         RetryConfig
	Bulkhead      BulkheadConfig

	// CSRFHeader is checked to be non-empty by Validate but is not read by
	// the CSRF filter, which accepts any one of X-XSRF-TOKEN,
	// X-Requested-With and X-CSRF-TOKEN.
	CSRFHeader string `envconfig:"CSRF_HEADER" default:"X-CSRF-Token"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	const op = "config.Load"

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate checks invariants that envconfig's struct tags cannot express
// and normalizes a handful of string fields.
func (c *Config) Validate() error {
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	switch c.App.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("invalid APP_ENV: must be one of development, staging, production, test")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: must be one of debug, info, warn, error")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'console'")
	}

	if strings.TrimSpace(c.App.ListenAddr) == "" {
		return fmt.Errorf("invalid GATEWAY_LISTEN_ADDR: must not be empty")
	}
	if c.App.RequestTimeout <= 0 {
		return fmt.Errorf("invalid GATEWAY_REQUEST_TIMEOUT_MS: must be greater than 0")
	}
	if c.App.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid GATEWAY_SHUTDOWN_TIMEOUT: must be greater than 0")
	}

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid CACHE_STORE_PORT: must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Redis.Host) == "" {
		return fmt.Errorf("invalid CACHE_STORE_HOST: must not be empty")
	}

	if c.RateLimit.AnonymousCapacity < 1 || c.RateLimit.AuthenticatedCapacity < 1 || c.RateLimit.PremiumCapacity < 1 {
		return fmt.Errorf("invalid rate_limit capacities: must all be greater than 0")
	}

	if c.Session.L1Max < 1 {
		return fmt.Errorf("invalid SESSION_L1_MAX: must be greater than 0")
	}
	if c.Session.L1TTL <= 0 {
		return fmt.Errorf("invalid SESSION_L1_TTL_MS: must be greater than 0")
	}

	if c.CCU.OnlineTTLMinutes < 1 {
		return fmt.Errorf("invalid CCU_ONLINE_TTL_MINUTES: must be greater than 0")
	}

	if c.Policy.RefreshIntervalSeconds < 1 {
		return fmt.Errorf("invalid POLICY_REFRESH_INTERVAL_S: must be greater than 0")
	}

	if c.OIDC.Enabled {
		if strings.TrimSpace(c.OIDC.IssuerURL) == "" {
			return fmt.Errorf("OIDC_ENABLED is true but OIDC_ISSUER_URL is empty")
		}
		if strings.TrimSpace(c.OIDC.ClientID) == "" {
			return fmt.Errorf("OIDC_ENABLED is true but OIDC_CLIENT_ID is empty")
		}
	}

	if c.App.Env == "production" && !c.OIDC.Enabled {
		return fmt.Errorf("APP_ENV=production requires OIDC_ENABLED=true")
	}

	if strings.TrimSpace(c.CSRFHeader) == "" {
		return fmt.Errorf("invalid CSRF_HEADER: must not be empty")
	}

	return nil
}

// Redacted returns a copy of the config with secrets masked, safe to log.
func (c *Config) Redacted() string {
	safe := *c
	if safe.Redis.Password != "" {
		safe.Redis.Password = "[REDACTED]"
	}
	if safe.OIDC.ClientSecret != "" {
		safe.OIDC.ClientSecret = "[REDACTED]"
	}
	return fmt.Sprintf("%+v", safe)
}

// IsDevelopment returns true if running in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction returns true if running in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
