package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CircuitBreakerMetrics provides Prometheus metrics for circuit breaker monitoring.
type CircuitBreakerMetrics struct {
	// state tracks the current state of each circuit breaker using {name, state} labels.
	// Each state (closed, open, half-open) is a separate time series with value 1 (active) or 0 (inactive).
	state *prometheus.GaugeVec

	// transitions counts state transitions.
	transitions *prometheus.CounterVec

	// operationDuration measures the duration of operations executed through the circuit breaker.
	operationDuration *prometheus.HistogramVec
}

// NewCircuitBreakerMetrics creates and registers circuit breaker metrics with the given registry.
// If registry is nil, a new registry is created.
func NewCircuitBreakerMetrics(registry *prometheus.Registry) *CircuitBreakerMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current state of the circuit breaker (1=active, 0=inactive for each state label)",
		},
		[]string{"name", "state"},
	)

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "circuit_breaker_operation_duration_seconds",
			Help: "Duration of operations executed through the circuit breaker",
			Buckets: []float64{
				0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		[]string{"name", "result"},
	)

	// Register metrics with registry.
	// Errors are intentionally ignored as they indicate metrics are already registered,
	// which is expected when creating multiple circuit breakers in the same process.
	_ = registry.Register(state)
	_ = registry.Register(transitions)
	_ = registry.Register(operationDuration)

	return &CircuitBreakerMetrics{
		state:             state,
		transitions:       transitions,
		operationDuration: operationDuration,
	}
}

// SetState updates the state gauge for a circuit breaker.
// Sets the active state to 1 and all other states to 0.
// state: 0=closed, 1=open, 2=half-open
func (m *CircuitBreakerMetrics) SetState(name string, state int) {
	// Set all states to 0 first
	m.state.WithLabelValues(name, "closed").Set(0)
	m.state.WithLabelValues(name, "open").Set(0)
	m.state.WithLabelValues(name, "half-open").Set(0)

	// Set the active state to 1
	switch state {
	case 0:
		m.state.WithLabelValues(name, "closed").Set(1)
	case 1:
		m.state.WithLabelValues(name, "open").Set(1)
	case 2:
		m.state.WithLabelValues(name, "half-open").Set(1)
	}
}

// RecordTransition increments the transition counter for a circuit breaker.
func (m *CircuitBreakerMetrics) RecordTransition(name, from, to string) {
	m.transitions.WithLabelValues(name, from, to).Inc()
}

// RecordOperationDuration records the duration of an operation and its result.
// result should be one of: "success", "failure", "rejected"
func (m *CircuitBreakerMetrics) RecordOperationDuration(name, result string, durationSeconds float64) {
	m.operationDuration.WithLabelValues(name, result).Observe(durationSeconds)
}

// Reset resets all metrics. Useful for testing.
func (m *CircuitBreakerMetrics) Reset() {
	m.state.Reset()
	m.transitions.Reset()
	m.operationDuration.Reset()
}

// NoopCircuitBreakerMetrics returns a no-op metrics implementation for testing.
func NoopCircuitBreakerMetrics() *CircuitBreakerMetrics {
	return NewCircuitBreakerMetrics(prometheus.NewRegistry())
}

// BulkheadMetrics provides Prometheus metrics for bulkhead monitoring.
type BulkheadMetrics struct {
	// operations counts executions by outcome: success, rejected, error.
	operations *prometheus.CounterVec

	// active tracks the current number of in-flight operations per bulkhead.
	active *prometheus.GaugeVec

	// waiting tracks the current number of operations queued for a slot.
	waiting *prometheus.GaugeVec

	// waitDuration measures time spent waiting for a slot.
	waitDuration *prometheus.HistogramVec
}

// NewBulkheadMetrics creates and registers bulkhead metrics with the given registry.
// If registry is nil, a new registry is created.
func NewBulkheadMetrics(registry *prometheus.Registry) *BulkheadMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkhead_operations_total",
			Help: "Total number of operations executed through the bulkhead",
		},
		[]string{"name", "result"},
	)

	active := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulkhead_active",
			Help: "Current number of in-flight operations in the bulkhead",
		},
		[]string{"name"},
	)

	waiting := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulkhead_waiting",
			Help: "Current number of operations waiting for a bulkhead slot",
		},
		[]string{"name"},
	)

	waitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bulkhead_wait_duration_seconds",
			Help: "Time spent waiting for a bulkhead slot",
			Buckets: []float64{
				0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0,
			},
		},
		[]string{"name"},
	)

	// Errors are intentionally ignored as they indicate metrics are already
	// registered, which is expected when creating multiple bulkheads in the
	// same process.
	_ = registry.Register(operations)
	_ = registry.Register(active)
	_ = registry.Register(waiting)
	_ = registry.Register(waitDuration)

	return &BulkheadMetrics{
		operations:   operations,
		active:       active,
		waiting:      waiting,
		waitDuration: waitDuration,
	}
}

// RecordOperation increments the operation counter for a bulkhead.
// result should be one of: "success", "rejected", "error"
func (m *BulkheadMetrics) RecordOperation(name, result string) {
	m.operations.WithLabelValues(name, result).Inc()
}

// SetActive updates the active-operations gauge for a bulkhead.
func (m *BulkheadMetrics) SetActive(name string, active int) {
	m.active.WithLabelValues(name).Set(float64(active))
}

// SetWaiting updates the waiting-operations gauge for a bulkhead.
func (m *BulkheadMetrics) SetWaiting(name string, waiting int) {
	m.waiting.WithLabelValues(name).Set(float64(waiting))
}

// RecordWaitDuration records time spent waiting for a slot.
func (m *BulkheadMetrics) RecordWaitDuration(name string, durationSeconds float64) {
	m.waitDuration.WithLabelValues(name).Observe(durationSeconds)
}

// Reset resets all metrics. Useful for testing.
func (m *BulkheadMetrics) Reset() {
	m.operations.Reset()
	m.active.Reset()
	m.waiting.Reset()
	m.waitDuration.Reset()
}

// NoopBulkheadMetrics returns a no-op metrics implementation for testing.
func NoopBulkheadMetrics() *BulkheadMetrics {
	return NewBulkheadMetrics(prometheus.NewRegistry())
}

// RetryMetrics provides Prometheus metrics for retry monitoring.
type RetryMetrics struct {
	// operationTotal counts retried operations by outcome: success, failure, exhausted.
	operationTotal *prometheus.CounterVec

	// attemptTotal counts attempts by the attempt number they ended on.
	attemptTotal *prometheus.CounterVec

	// durationSeconds measures total operation duration including backoff sleeps.
	durationSeconds *prometheus.HistogramVec
}

// NewRetryMetrics creates and registers retry metrics with the given registry.
// If registry is nil, a new registry is created.
func NewRetryMetrics(registry *prometheus.Registry) *RetryMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_operations_total",
			Help: "Total number of operations executed through the retrier",
		},
		[]string{"name", "result"},
	)

	attemptTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total attempts grouped by the attempt number the operation ended on",
		},
		[]string{"name", "result", "attempt"},
	)

	durationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "retry_operation_duration_seconds",
			Help: "Total duration of retried operations including backoff",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		[]string{"name", "result"},
	)

	_ = registry.Register(operationTotal)
	_ = registry.Register(attemptTotal)
	_ = registry.Register(durationSeconds)

	return &RetryMetrics{
		operationTotal:  operationTotal,
		attemptTotal:    attemptTotal,
		durationSeconds: durationSeconds,
	}
}

// RecordOperation records a completed operation, the attempt it ended on and
// its total duration.
// result should be one of: "success", "failure", "exhausted"
func (m *RetryMetrics) RecordOperation(name, result string, attempt int, durationSeconds float64) {
	m.operationTotal.WithLabelValues(name, result).Inc()
	m.attemptTotal.WithLabelValues(name, result, itoa(attempt)).Inc()
	m.durationSeconds.WithLabelValues(name, result).Observe(durationSeconds)
}

// Reset resets all metrics. Useful for testing.
func (m *RetryMetrics) Reset() {
	m.operationTotal.Reset()
	m.attemptTotal.Reset()
	m.durationSeconds.Reset()
}

// NoopRetryMetrics returns a no-op metrics implementation for testing.
func NoopRetryMetrics() *RetryMetrics {
	return NewRetryMetrics(prometheus.NewRegistry())
}

// itoa formats a small integer label without pulling strconv into the hot
// path allocation profile for the common single-digit case.
func itoa(n int) string {
	if n >= 0 && n < 10 {
		return string(rune('0' + n))
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// TimeoutMetrics provides Prometheus metrics for timeout monitoring.
type TimeoutMetrics struct {
	// operations counts executions by outcome: success, timeout, error.
	operations *prometheus.CounterVec

	// duration measures operation duration up to the deadline.
	duration *prometheus.HistogramVec
}

// NewTimeoutMetrics creates and registers timeout metrics with the given registry.
// If registry is nil, a new registry is created.
func NewTimeoutMetrics(registry *prometheus.Registry) *TimeoutMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeout_operations_total",
			Help: "Total number of operations executed under a timeout",
		},
		[]string{"name", "result"},
	)

	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "timeout_operation_duration_seconds",
			Help: "Duration of operations executed under a timeout",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0,
			},
		},
		[]string{"name", "result"},
	)

	_ = registry.Register(operations)
	_ = registry.Register(duration)

	return &TimeoutMetrics{
		operations: operations,
		duration:   duration,
	}
}

// RecordOperation records a completed operation and its duration.
// result should be one of: "success", "timeout", "error"
func (m *TimeoutMetrics) RecordOperation(name, result string, durationSeconds float64) {
	m.operations.WithLabelValues(name, result).Inc()
	m.duration.WithLabelValues(name, result).Observe(durationSeconds)
}

// Reset resets all metrics. Useful for testing.
func (m *TimeoutMetrics) Reset() {
	m.operations.Reset()
	m.duration.Reset()
}

// NoopTimeoutMetrics returns a no-op metrics implementation for testing.
func NoopTimeoutMetrics() *TimeoutMetrics {
	return NewTimeoutMetrics(prometheus.NewRegistry())
}

// ShutdownMetrics provides Prometheus metrics for shutdown coordination.
type ShutdownMetrics struct {
	// activeRequests tracks in-flight requests seen by the coordinator.
	activeRequests prometheus.Gauge

	// shutdownInProgress is 1 while a shutdown is draining.
	shutdownInProgress prometheus.Gauge

	// rejections counts requests rejected because shutdown had started.
	rejections prometheus.Counter

	// shutdownDuration measures how long the drain took, by outcome.
	shutdownDuration *prometheus.HistogramVec
}

// NewShutdownMetrics creates and registers shutdown metrics with the given registry.
// If registry is nil, a new registry is created.
func NewShutdownMetrics(registry *prometheus.Registry) *ShutdownMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	activeRequests := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shutdown_active_requests",
		Help: "Current number of in-flight requests tracked by the shutdown coordinator",
	})

	shutdownInProgress := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shutdown_in_progress",
		Help: "1 while a graceful shutdown is draining, 0 otherwise",
	})

	rejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shutdown_rejected_requests_total",
		Help: "Total requests rejected because shutdown had already started",
	})

	shutdownDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "shutdown_drain_duration_seconds",
			Help: "How long the shutdown drain took",
			Buckets: []float64{
				0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0,
			},
		},
		[]string{"result"},
	)

	_ = registry.Register(activeRequests)
	_ = registry.Register(shutdownInProgress)
	_ = registry.Register(rejections)
	_ = registry.Register(shutdownDuration)

	return &ShutdownMetrics{
		activeRequests:     activeRequests,
		shutdownInProgress: shutdownInProgress,
		rejections:         rejections,
		shutdownDuration:   shutdownDuration,
	}
}

// SetActiveRequests updates the in-flight request gauge.
func (m *ShutdownMetrics) SetActiveRequests(n int64) {
	m.activeRequests.Set(float64(n))
}

// SetShutdownInProgress flags whether a drain is underway.
func (m *ShutdownMetrics) SetShutdownInProgress(inProgress bool) {
	if inProgress {
		m.shutdownInProgress.Set(1)
	} else {
		m.shutdownInProgress.Set(0)
	}
}

// RecordRejection counts a request rejected during shutdown.
func (m *ShutdownMetrics) RecordRejection() {
	m.rejections.Inc()
}

// RecordShutdownDuration records how long the drain took.
// result should be one of: "success", "timeout"
func (m *ShutdownMetrics) RecordShutdownDuration(d time.Duration, result string) {
	m.shutdownDuration.WithLabelValues(result).Observe(d.Seconds())
}
