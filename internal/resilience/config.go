package resilience

import (
	"fmt"
	"time"

	"github.com/iruldev/edge-gateway/internal/config"
)

// Default values for resilience configuration.
const (
	// Circuit Breaker defaults. Permitted half-open probes (K) and the
	// open-state wait duration mirror the gateway's breaker.wait_duration_s /
	// breaker.permitted_half_open knobs; the window/rate knobs drive the
	// sliding-window trip rule.
	DefaultCBMaxRequests           = 10
	DefaultCBInterval              = 10 * time.Second
	DefaultCBTimeout               = 10 * time.Second
	DefaultCBWindowSize            = 100
	DefaultCBMinimumSamples        = 10
	DefaultCBFailureRateThreshold  = 0.5
	DefaultCBSlowCallDuration      = 2 * time.Second
	DefaultCBSlowCallRateThreshold = 0.5

	// Retry defaults
	DefaultRetryMaxAttempts  = 3
	DefaultRetryInitialDelay = 100 * time.Millisecond
	DefaultRetryMaxDelay     = 5 * time.Second
	DefaultRetryMultiplier   = 2.0

	// Timeout defaults. Upstream/Identity mirror the two resilience-wrapped
	// call paths the gateway issues (router proxy client, identity-service
	// RPC from the Permission Resolver).
	DefaultTimeoutDefault  = 30 * time.Second
	DefaultTimeoutUpstream = 10 * time.Second
	DefaultTimeoutIdentity = 10 * time.Second

	// Bulkhead defaults
	DefaultBulkheadMaxConcurrent = 10
	DefaultBulkheadMaxWaiting    = 100

	// Shutdown defaults
	DefaultShutdownDrainPeriod = 30 * time.Second
	DefaultShutdownGracePeriod = 5 * time.Second
)

// ResilienceConfig holds all resilience-related configuration.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	Timeout        TimeoutConfig
	Bulkhead       BulkheadConfig
	Shutdown       ShutdownConfig
}

// CircuitBreakerConfig holds configuration for the circuit breaker's
// sliding-window trip rule.
type CircuitBreakerConfig struct {
	// MaxRequests is the number of probe requests allowed in the half-open state (K).
	MaxRequests int
	// Interval is the cyclic period gobreaker uses to clear its own internal
	// counters; the trip decision itself is driven by WindowSize below, not
	// by gobreaker's counters.
	Interval time.Duration
	// Timeout is the period to wait before transitioning from open to half-open.
	Timeout time.Duration
	// WindowSize is the number of most-recent call outcomes retained (N).
	WindowSize int
	// MinimumSamples is the minimum number of outcomes in the window before
	// the failure/slow-call rate is judged at all.
	MinimumSamples int
	// FailureRateThreshold trips the circuit when the fraction of failed
	// calls in the window reaches or exceeds it (e.g. 0.5 for 50%).
	FailureRateThreshold float64
	// SlowCallDuration is the per-call duration above which a call counts
	// as "slow" for SlowCallRateThreshold.
	SlowCallDuration time.Duration
	// SlowCallRateThreshold trips the circuit when the fraction of slow
	// calls in the window reaches or exceeds it.
	SlowCallRateThreshold float64
	// FailurePredicate classifies which errors count against the window.
	// If nil, DefaultFailurePredicate is used.
	FailurePredicate FailurePredicate
}

// RetryConfig holds configuration for retry with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts.
	MaxAttempts int
	// InitialDelay is the initial delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
	// Multiplier is the factor by which the delay increases after each retry.
	Multiplier float64
}

// TimeoutConfig holds configuration for operation timeouts.
type TimeoutConfig struct {
	// Default is the overall per-request deadline.
	Default time.Duration
	// Upstream is the timeout applied to calls made through the router's
	// upstream proxy client.
	Upstream time.Duration
	// Identity is the timeout applied to the identity-service RPC the
	// Permission Resolver issues.
	Identity time.Duration
}

// BulkheadConfig holds configuration for bulkhead pattern.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of concurrent executions.
	MaxConcurrent int
	// MaxWaiting is the maximum number of operations waiting for execution.
	MaxWaiting int
}

// ShutdownConfig holds configuration for graceful shutdown.
type ShutdownConfig struct {
	// DrainPeriod is the maximum time to wait for in-flight requests to complete.
	// After this period, remaining requests will be forcefully terminated.
	DrainPeriod time.Duration
	// GracePeriod is additional time after drain for cleanup operations.
	GracePeriod time.Duration
}

// DefaultResilienceConfig returns a new ResilienceConfig with sensible defaults.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:           DefaultCBMaxRequests,
			Interval:              DefaultCBInterval,
			Timeout:               DefaultCBTimeout,
			WindowSize:            DefaultCBWindowSize,
			MinimumSamples:        DefaultCBMinimumSamples,
			FailureRateThreshold:  DefaultCBFailureRateThreshold,
			SlowCallDuration:      DefaultCBSlowCallDuration,
			SlowCallRateThreshold: DefaultCBSlowCallRateThreshold,
		},
		Retry: RetryConfig{
			MaxAttempts:  DefaultRetryMaxAttempts,
			InitialDelay: DefaultRetryInitialDelay,
			MaxDelay:     DefaultRetryMaxDelay,
			Multiplier:   DefaultRetryMultiplier,
		},
		Timeout: TimeoutConfig{
			Default:  DefaultTimeoutDefault,
			Upstream: DefaultTimeoutUpstream,
			Identity: DefaultTimeoutIdentity,
		},
		Bulkhead: BulkheadConfig{
			MaxConcurrent: DefaultBulkheadMaxConcurrent,
			MaxWaiting:    DefaultBulkheadMaxWaiting,
		},
		Shutdown: ShutdownConfig{
			DrainPeriod: DefaultShutdownDrainPeriod,
			GracePeriod: DefaultShutdownGracePeriod,
		},
	}
}

// NewResilienceConfig creates a ResilienceConfig from the main application
// Config, translating the gateway-wide breaker and retry settings
// (failure_rate_pct, permitted_half_open, ...) into the primitives this
// package understands.
func NewResilienceConfig(cfg *config.Config) ResilienceConfig {
	return ResilienceConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:    cfg.Breaker.PermittedHalfOpen,
			Interval:       cfg.Breaker.WaitDuration,
			Timeout:        cfg.Breaker.WaitDuration,
			WindowSize:     cfg.Breaker.WindowSize,
			MinimumSamples: cfg.Breaker.MinimumThroughput,
			// The failure-rate and slow-call-rate thresholds share one knob.
			FailureRateThreshold:  float64(cfg.Breaker.FailureRatePct) / 100.0,
			SlowCallDuration:      cfg.Breaker.SlowCallMs,
			SlowCallRateThreshold: float64(cfg.Breaker.FailureRatePct) / 100.0,
		},
		Retry: RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.Interval,
			MaxDelay:     time.Duration(float64(cfg.Retry.Interval) * cfg.Retry.Multiplier * float64(cfg.Retry.MaxAttempts)),
			Multiplier:   cfg.Retry.Multiplier,
		},
		Timeout: TimeoutConfig{
			Default:  cfg.App.RequestTimeout,
			Upstream: cfg.Upstream.ReadTimeout,
			Identity: cfg.Upstream.ReadTimeout,
		},
		Bulkhead: BulkheadConfig{
			MaxConcurrent: cfg.Bulkhead.MaxConcurrent,
			MaxWaiting:    cfg.Bulkhead.MaxWaiting,
		},
		Shutdown: ShutdownConfig{
			DrainPeriod: cfg.App.ShutdownTimeout,
			GracePeriod: DefaultShutdownGracePeriod,
		},
	}
}

// Validate checks if the configuration is valid.
// It returns an error with a clear message if any field is invalid.
func (c *ResilienceConfig) Validate() error {
	if err := c.CircuitBreaker.validate(); err != nil {
		return fmt.Errorf("circuit breaker config: %w", err)
	}
	if err := c.Retry.validate(); err != nil {
		return fmt.Errorf("retry config: %w", err)
	}
	if err := c.Timeout.validate(); err != nil {
		return fmt.Errorf("timeout config: %w", err)
	}
	if err := c.Bulkhead.validate(); err != nil {
		return fmt.Errorf("bulkhead config: %w", err)
	}
	if err := c.Shutdown.validate(); err != nil {
		return fmt.Errorf("shutdown config: %w", err)
	}
	return nil
}

func (c *CircuitBreakerConfig) validate() error {
	if c.MaxRequests < 1 {
		return fmt.Errorf("max_requests must be greater than 0, got %d", c.MaxRequests)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be greater than 0, got %s", c.Interval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0, got %s", c.Timeout)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("window_size must be greater than 0, got %d", c.WindowSize)
	}
	if c.MinimumSamples < 1 {
		return fmt.Errorf("minimum_samples must be greater than 0, got %d", c.MinimumSamples)
	}
	if c.MinimumSamples > c.WindowSize {
		return fmt.Errorf("minimum_samples must not exceed window_size, got minimum_samples=%d, window_size=%d", c.MinimumSamples, c.WindowSize)
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		return fmt.Errorf("failure_rate_threshold must be in (0, 1], got %v", c.FailureRateThreshold)
	}
	if c.SlowCallDuration <= 0 {
		return fmt.Errorf("slow_call_duration must be greater than 0, got %s", c.SlowCallDuration)
	}
	if c.SlowCallRateThreshold <= 0 || c.SlowCallRateThreshold > 1 {
		return fmt.Errorf("slow_call_rate_threshold must be in (0, 1], got %v", c.SlowCallRateThreshold)
	}
	return nil
}

func (c *RetryConfig) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be greater than 0, got %d", c.MaxAttempts)
	}
	if c.InitialDelay <= 0 {
		return fmt.Errorf("initial_delay must be greater than 0, got %s", c.InitialDelay)
	}
	if c.MaxDelay <= 0 {
		return fmt.Errorf("max_delay must be greater than 0, got %s", c.MaxDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay must be greater than or equal to initial_delay, got max_delay=%s, initial_delay=%s", c.MaxDelay, c.InitialDelay)
	}
	if c.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be greater than or equal to 1.0, got %v", c.Multiplier)
	}
	return nil
}

func (c *TimeoutConfig) validate() error {
	if c.Default <= 0 {
		return fmt.Errorf("default timeout must be greater than 0, got %s", c.Default)
	}
	if c.Upstream <= 0 {
		return fmt.Errorf("upstream timeout must be greater than 0, got %s", c.Upstream)
	}
	if c.Identity <= 0 {
		return fmt.Errorf("identity timeout must be greater than 0, got %s", c.Identity)
	}
	return nil
}

func (c *BulkheadConfig) validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be greater than 0, got %d", c.MaxConcurrent)
	}
	if c.MaxWaiting < 0 {
		return fmt.Errorf("max_waiting must be non-negative, got %d", c.MaxWaiting)
	}
	return nil
}

func (c *ShutdownConfig) validate() error {
	if c.DrainPeriod <= 0 {
		return fmt.Errorf("drain_period must be greater than 0, got %s", c.DrainPeriod)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period must be non-negative, got %s", c.GracePeriod)
	}
	return nil
}
