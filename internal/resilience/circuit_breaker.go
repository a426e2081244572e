package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	domainerrors "github.com/iruldev/edge-gateway/internal/domain/errors"
)

// State represents the circuit breaker state.
type State string

const (
	// StateClosed indicates the circuit breaker is closed and requests are allowed.
	StateClosed State = "closed"
	// StateOpen indicates the circuit breaker is open and requests are rejected.
	StateOpen State = "open"
	// StateHalfOpen indicates the circuit breaker is half-open and limited requests are allowed.
	StateHalfOpen State = "half-open"
)

// stateToInt converts State to an integer for metrics.
func stateToInt(s State) int {
	switch s {
	case StateClosed:
		return 0
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// goStateToState converts gobreaker.State to our State type.
func goStateToState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// FailurePredicate decides whether an error returned by a wrapped call
// should count against the breaker's sliding window. Errors that describe
// a bad request rather than a downstream failure (validation errors, bad
// request errors) are excluded so a caller hammering an upstream with
// malformed input cannot trip the breaker for well-behaved traffic.
type FailurePredicate func(err error) bool

// DefaultFailurePredicate counts every non-nil error as a failure except
// ones identified as caller-side validation/bad-request errors.
func DefaultFailurePredicate(err error) bool {
	if err == nil {
		return false
	}
	if de := domainerrors.IsDomainError(err); de != nil {
		switch de.Code {
		case domainerrors.CodeValidationError, domainerrors.CodeBadRequest:
			return false
		}
	}
	return true
}

// callOutcome is a single sample recorded in the sliding window.
type callOutcome struct {
	failed bool
	slow   bool
}

// slidingWindow is a fixed-capacity ring buffer of the last N call outcomes.
// It backs the breaker's trip decision: a count-based window (not a cumulative
// counter) so that scattered, non-consecutive failures are weighed the same
// as a consecutive run of them.
type slidingWindow struct {
	mu      sync.Mutex
	samples []callOutcome
	next    int
	count   int
}

func newSlidingWindow(size int) *slidingWindow {
	if size < 1 {
		size = 1
	}
	return &slidingWindow{samples: make([]callOutcome, size)}
}

func (w *slidingWindow) record(failed, slow bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = callOutcome{failed: failed, slow: slow}
	w.next = (w.next + 1) % len(w.samples)
	if w.count < len(w.samples) {
		w.count++
	}
}

// rates returns the number of samples currently held and the failure/slow
// fractions among them.
func (w *slidingWindow) rates() (samples int, failureRate, slowRate float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return 0, 0, 0
	}
	var failed, slow int
	for i := 0; i < w.count; i++ {
		o := w.samples[i]
		if o.failed {
			failed++
		}
		if o.slow {
			slow++
		}
	}
	return w.count, float64(failed) / float64(w.count), float64(slow) / float64(w.count)
}

func (w *slidingWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next = 0
	w.count = 0
}

// slowCallError is an internal marker gobreaker sees in place of a nil
// error for calls that succeeded but ran past the slow-call duration.
// gobreaker's ReadyToTrip is only consulted on its failure path, so a
// successful-but-slow call must still look like a failure to gobreaker
// for the slow-call-rate trip to have a chance to fire; Execute strips
// the marker back off before returning to the caller.
type slowCallError struct{}

func (e *slowCallError) Error() string { return "call exceeded slow-call duration" }

// CircuitBreaker provides circuit breaker pattern functionality.
// It protects against cascading failures by temporarily blocking
// requests to failing services.
type CircuitBreaker interface {
	// Execute runs the given function with circuit breaker protection.
	// It returns ErrCircuitOpen (RES-001) if the circuit is open.
	Execute(ctx context.Context, fn func() (any, error)) (any, error)

	// State returns the current state of the circuit breaker.
	State() State

	// Name returns the name of this circuit breaker.
	Name() string
}

// circuitBreaker wraps gobreaker.CircuitBreaker with metrics and logging.
// gobreaker's own Counts are a cumulative counter reset on Interval, not a
// true sliding window, and have no notion of a "slow" call, so the trip
// decision is delegated entirely to an in-process window maintained
// alongside it; ReadyToTrip ignores the gobreaker.Counts it is handed.
type circuitBreaker struct {
	name             string
	breaker          *gobreaker.CircuitBreaker
	window           *slidingWindow
	slowCallDuration time.Duration
	predicate        FailurePredicate
	metrics          *CircuitBreakerMetrics
	logger           *slog.Logger
}

// CircuitBreakerOption configures a circuit breaker.
type CircuitBreakerOption func(*circuitBreakerOptions)

type circuitBreakerOptions struct {
	metrics   *CircuitBreakerMetrics
	logger    *slog.Logger
	predicate FailurePredicate
}

// WithMetrics sets the metrics for the circuit breaker.
func WithMetrics(m *CircuitBreakerMetrics) CircuitBreakerOption {
	return func(o *circuitBreakerOptions) {
		o.metrics = m
	}
}

// WithLogger sets the logger for the circuit breaker.
func WithLogger(l *slog.Logger) CircuitBreakerOption {
	return func(o *circuitBreakerOptions) {
		o.logger = l
	}
}

// WithFailurePredicate overrides which errors count against the breaker's
// sliding window. If unset, DefaultFailurePredicate is used.
func WithFailurePredicate(p FailurePredicate) CircuitBreakerOption {
	return func(o *circuitBreakerOptions) {
		if p != nil {
			o.predicate = p
		}
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given name and
// configuration. The circuit trips to open when, over the last
// cfg.WindowSize calls (once at least cfg.MinimumSamples have been
// observed), the failure rate or the slow-call rate reaches the configured
// thresholds.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, opts ...CircuitBreakerOption) CircuitBreaker {
	options := &circuitBreakerOptions{
		metrics:   nil,
		logger:    slog.Default(),
		predicate: DefaultFailurePredicate,
	}

	for _, opt := range opts {
		opt(options)
	}

	if cfg.FailurePredicate != nil {
		options.predicate = cfg.FailurePredicate
	}

	windowSize := cfg.WindowSize
	if windowSize < 1 {
		windowSize = DefaultCBWindowSize
	}

	cb := &circuitBreaker{
		name:             name,
		window:           newSlidingWindow(windowSize),
		slowCallDuration: cfg.SlowCallDuration,
		predicate:        options.predicate,
		metrics:          options.metrics,
		logger:           options.logger,
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.MaxRequests),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(_ gobreaker.Counts) bool {
			samples, failureRate, slowRate := cb.window.rates()
			if samples < cfg.MinimumSamples {
				return false
			}
			return failureRate >= cfg.FailureRateThreshold || slowRate >= cfg.SlowCallRateThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var sc *slowCallError
			if errors.As(err, &sc) {
				return false
			}
			return !cb.predicate(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cb.onStateChange(name, from, to)
		},
	}

	cb.breaker = gobreaker.NewCircuitBreaker(settings)

	// Initialize metrics with closed state
	if cb.metrics != nil {
		cb.metrics.SetState(name, stateToInt(StateClosed))
	}

	return cb
}

// Execute runs the given function with circuit breaker protection.
// If the circuit is open, it returns ErrCircuitOpen immediately without
// calling fn (no transport I/O is issued). The context is passed through
// for cancellation support.
func (cb *circuitBreaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	start := time.Now()

	result, err := cb.breaker.Execute(func() (any, error) {
		// Check context cancellation before executing. This is a caller-side
		// abort, not a downstream failure, so it is not recorded in the window.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		callStart := time.Now()
		res, callErr := fn()
		failed := cb.predicate(callErr)
		slow := time.Since(callStart) > cb.slowCallDuration
		cb.window.record(failed, slow)

		// A successful-but-slow call must still reach gobreaker's failure
		// path so ReadyToTrip gets a chance to observe the slow-call rate;
		// the marker is stripped back off below before returning to fn's caller.
		if callErr == nil && slow {
			return res, &slowCallError{}
		}
		return res, callErr
	})

	var sc *slowCallError
	if errors.As(err, &sc) {
		err = nil
	}

	duration := time.Since(start).Seconds()

	// Handle circuit open error
	if errors.Is(err, gobreaker.ErrOpenState) {
		if cb.metrics != nil {
			cb.metrics.RecordOperationDuration(cb.name, "rejected", duration)
		}
		return nil, NewCircuitOpenError(err)
	}

	// Handle too many requests error (circuit is half-open and max requests exceeded)
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		if cb.metrics != nil {
			cb.metrics.RecordOperationDuration(cb.name, "rejected", duration)
		}
		return nil, NewCircuitOpenError(err)
	}

	// Record metrics for success/failure
	if cb.metrics != nil {
		if err != nil {
			cb.metrics.RecordOperationDuration(cb.name, "failure", duration)
		} else {
			cb.metrics.RecordOperationDuration(cb.name, "success", duration)
		}
	}

	return result, err
}

// State returns the current state of the circuit breaker.
func (cb *circuitBreaker) State() State {
	return goStateToState(cb.breaker.State())
}

// Name returns the name of this circuit breaker.
func (cb *circuitBreaker) Name() string {
	return cb.name
}

// onStateChange is called when the circuit breaker state changes.
func (cb *circuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	fromState := goStateToState(from)
	toState := goStateToState(to)

	// A fresh window for the new state avoids a stale sample from the
	// previous closed/half-open period tripping the breaker again the
	// instant it reopens for business.
	cb.window.reset()

	// Update metrics
	if cb.metrics != nil {
		cb.metrics.SetState(name, stateToInt(toState))
		cb.metrics.RecordTransition(name, string(fromState), string(toState))
	}

	// Log state change
	// Use INFO level for significant transitions (closed→open, any→closed)
	// Use DEBUG level for half-open transitions
	logLevel := slog.LevelDebug
	if to == gobreaker.StateOpen || to == gobreaker.StateClosed {
		logLevel = slog.LevelInfo
	}

	cb.logger.Log(context.Background(), logLevel, "circuit breaker state changed",
		"name", name,
		"previous_state", string(fromState),
		"new_state", string(toState),
		"timestamp", time.Now().Format(time.RFC3339),
	)
}

// DefaultCircuitBreakerConfig returns a CircuitBreakerConfig with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:           DefaultCBMaxRequests,
		Interval:              DefaultCBInterval,
		Timeout:               DefaultCBTimeout,
		WindowSize:            DefaultCBWindowSize,
		MinimumSamples:        DefaultCBMinimumSamples,
		FailureRateThreshold:  DefaultCBFailureRateThreshold,
		SlowCallDuration:      DefaultCBSlowCallDuration,
		SlowCallRateThreshold: DefaultCBSlowCallRateThreshold,
	}
}
