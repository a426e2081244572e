package filters

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iruldev/edge-gateway/internal/cache"
)

// metricsRecorder groups the Prometheus collectors the Metrics filter
// updates on every request.
var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "Total requests processed by the gateway filter chain.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "Gateway request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	registerOnce sync.Once
)

// RegisterMetrics registers the filter chain's collectors with reg. Call
// once at startup before serving traffic.
func RegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(httpRequestsTotal, httpRequestDuration)
	})
}

// statusCapturingWriter records the status code written by the handler so
// Metrics can classify the completed request.
type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Metrics is the order −90 filter: it records request-start time, RPS,
// duration and error class on completion, and writes the dashboard counter
// family to the cache store in one pipelined batch per request. It never
// short-circuits.
func Metrics(store cache.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			dur := time.Since(start)
			status := fmt.Sprintf("%d", sw.status)

			httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur.Seconds())

			go writeDashboardCounters(store, r.Method, r.URL.Path, sw.status, dur)
		})
	}
}

// writeDashboardCounters writes the dashboard:* key family in a single
// pipelined batch. It runs off the hot path (invoked in a goroutine by
// Metrics) and logs nothing on failure — a missed dashboard tick never
// affects request handling.
func writeDashboardCounters(store cache.Store, method, path string, status int, dur time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bucket := time.Now().UTC().Format("2006010215") // hourly bucket

	ops := []cache.Op{
		{Kind: cache.OpIncr, Key: "dashboard:rps"},
		{Kind: cache.OpExpire, Key: "dashboard:rps", TTL: 2 * time.Second},
		{Kind: cache.OpIncr, Key: "dashboard:request:count"},
		{Kind: cache.OpIncr, Key: "dashboard:traffic:history:" + bucket + ":requests"},
		{Kind: cache.OpExpire, Key: "dashboard:traffic:history:" + bucket + ":requests", TTL: 24 * time.Hour},
	}
	if status >= 500 {
		ops = append(ops,
			cache.Op{Kind: cache.OpIncr, Key: "dashboard:error:count"},
			cache.Op{Kind: cache.OpIncr, Key: "dashboard:traffic:history:" + bucket + ":errors"},
			cache.Op{Kind: cache.OpExpire, Key: "dashboard:traffic:history:" + bucket + ":errors", TTL: 24 * time.Hour},
		)
	}

	_, _ = store.Pipeline(ctx, ops)

	updateLatencyEMA(ctx, store, dur)

	if dur > 500*time.Millisecond {
		updateSlowEndpoint(ctx, store, method, path, dur)
	}
}

// updateLatencyEMA maintains dashboard:latency:avg as an exponential
// moving average with α=0.2.
func updateLatencyEMA(ctx context.Context, store cache.Store, dur time.Duration) {
	const alpha = 0.2
	const key = "dashboard:latency:avg"

	ms := float64(dur.Milliseconds())
	raw, err := store.Get(ctx, key)
	if err != nil {
		_ = store.Set(ctx, key, fmt.Sprintf("%f", ms), 0)
		return
	}
	var prev float64
	_, _ = fmt.Sscanf(raw, "%f", &prev)
	next := alpha*ms + (1-alpha)*prev
	_ = store.Set(ctx, key, fmt.Sprintf("%f", next), 0)
}

// updateSlowEndpoint records per-endpoint slow-call stats (calls, running
// average, p95 estimate) for requests exceeding the 500ms threshold.
func updateSlowEndpoint(ctx context.Context, store cache.Store, method, path string, dur time.Duration) {
	key := fmt.Sprintf("dashboard:slow:endpoint:%s:%s", method, path)
	callsKey := key + ":calls"
	avgKey := key + ":avg"
	p95Key := key + ":p95"

	n, err := store.Incr(ctx, callsKey)
	if err != nil {
		return
	}

	ms := float64(dur.Milliseconds())
	raw, err := store.Get(ctx, avgKey)
	prevAvg := ms
	if err == nil {
		_, _ = fmt.Sscanf(raw, "%f", &prevAvg)
	}
	newAvg := prevAvg + (ms-prevAvg)/float64(n)
	_ = store.Set(ctx, avgKey, fmt.Sprintf("%f", newAvg), 0)

	_ = store.Set(ctx, p95Key, fmt.Sprintf("%f", updateP95(ctx, store, p95Key, ms)), 0)
}

// updateP95 maintains a streaming 95th-percentile estimate: the stored
// value steps up toward samples above it and down toward samples below it,
// with asymmetric weights (0.95 up, 0.05 down) so it settles near the
// quantile without holding a sample reservoir per endpoint.
func updateP95(ctx context.Context, store cache.Store, key string, ms float64) float64 {
	const (
		quantile = 0.95
		alpha    = 0.05
	)

	raw, err := store.Get(ctx, key)
	if err != nil {
		return ms
	}
	var est float64
	if _, scanErr := fmt.Sscanf(raw, "%f", &est); scanErr != nil {
		return ms
	}

	if ms >= est {
		est += alpha * quantile * (ms - est)
	} else {
		est -= alpha * (1 - quantile) * (est - ms)
	}
	return est
}
