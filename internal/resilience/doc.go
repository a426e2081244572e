// Package resilience provides centralized resilience configuration and error types.
//
// This package is part of the infrastructure layer and provides:
//   - ResilienceConfig: Centralized configuration for all resilience patterns
//   - Resilience error types: Structured errors with stable codes (RES-xxx)
//
// # Configuration
//
// NewResilienceConfig maps these environment variables (read by the config
// package) onto the package's configuration:
//
//	# Circuit Breaker
//	BREAKER_FAILURE_RATE_PCT=50       # Failure and slow-call rate thresholds
//	BREAKER_SLOW_CALL_MS=2000ms       # Duration above which a call is slow
//	BREAKER_WAIT_DURATION_S=10s       # Open-state wait before half-open
//	BREAKER_PERMITTED_HALF_OPEN=10    # Probe requests allowed in half-open state
//	BREAKER_WINDOW_SIZE=100           # Sliding window size
//	BREAKER_MINIMUM_THROUGHPUT=10     # Samples required before judging
//
//	# Retry
//	RETRY_MAX_ATTEMPTS=3              # Maximum attempts
//	RETRY_INTERVAL_MS=100ms           # Initial backoff delay
//	RETRY_MULTIPLIER=2.0              # Exponential multiplier
//
//	# Timeout
//	GATEWAY_REQUEST_TIMEOUT_MS=30000ms  # Default per-request deadline
//	UPSTREAM_READ_TIMEOUT_MS=10000ms    # Upstream and identity call timeout
//
//	# Bulkhead
//	BULKHEAD_MAX_CONCURRENT=10        # Concurrent executions
//	BULKHEAD_MAX_WAITING=100          # Operations allowed to wait
//
// # Error Codes
//
// | Code     | Name               | Description                              |
// |----------|--------------------| -----------------------------------------|
// | RES-001  | CircuitOpen        | Circuit breaker is open, requests rejected|
// | RES-002  | BulkheadFull       | Bulkhead capacity reached, request rejected|
// | RES-003  | TimeoutExceeded    | Operation timeout exceeded               |
// | RES-004  | MaxRetriesExceeded | Maximum retry attempts exhausted         |
//
// # Usage
//
// Configuration is loaded via the main config package and validated at startup:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err) // Fail fast on invalid config
//	}
//	resilienceCfg := resilience.NewResilienceConfig(cfg)
//	if err := resilienceCfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package resilience
