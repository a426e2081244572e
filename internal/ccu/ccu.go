// Package ccu implements the CCU Heartbeat and Metrics Sink's two halves:
// the best-effort presence writer invoked after a successful session
// lookup, and the periodic scanner that counts active `online:*` keys into
// a Prometheus gauge.
package ccu

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iruldev/edge-gateway/internal/cache"
)

const presenceKeyPrefix = "online:"

// onlineUsersGauge is the in-process ccu_total gauge the Scanner keeps
// current.
var onlineUsersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "gateway_ccu_total",
	Help: "Count of distinct users with a live online:<user_id> presence key.",
})

// RegisterMetrics registers the CCU gauge with reg. Call once at startup.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(onlineUsersGauge)
}

// Writer refreshes a single user's presence key. It implements
// tasks.PresenceWriter.
type Writer struct {
	store cache.Store
}

// NewWriter builds a presence Writer over store.
func NewWriter(store cache.Store) *Writer {
	return &Writer{store: store}
}

// Touch sets online:<userID> to "1" with the given TTL, refreshing it if
// already present.
func (w *Writer) Touch(ctx context.Context, userID string, ttl time.Duration) error {
	return w.store.Set(ctx, presenceKeyPrefix+userID, "1", ttl)
}

// Scanner counts live presence keys on a schedule. It implements
// tasks.CCUScanner.
type Scanner struct {
	store     cache.Store
	batchSize int64
}

// NewScanner builds a Scanner. batchSize is the SCAN COUNT hint.
func NewScanner(store cache.Store, batchSize int64) *Scanner {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Scanner{store: store, batchSize: batchSize}
}

// Scan iterates online:* with a cursor-based, non-blocking SCAN and
// updates the ccu_total gauge with the count found.
func (s *Scanner) Scan(ctx context.Context) error {
	it := s.store.Scan(ctx, presenceKeyPrefix+"*", s.batchSize)

	var count int64
	for it.Next(ctx) {
		count++
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("ccu scan: %w", err)
	}

	onlineUsersGauge.Set(float64(count))
	return nil
}
