// Package ratelimit implements the Rate Limit Engine: a distributed
// token-bucket limiter backed by the shared cache store, guarded by a local
// circuit breaker that fails open to an in-process bounded fallback bucket
// when the store is unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iruldev/edge-gateway/internal/cache"
)

// Tier identifies which capacity a caller's bucket should draw from.
type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
	TierPremium       Tier = "premium"
)

// refillWindow is the period over which a full bucket's worth of tokens is
// restored: capacity tokens per minute, refilled greedily.
const refillWindow = time.Minute

// casAttempts bounds how many optimistic compare-and-swap rounds Allow
// plays against concurrent replicas before treating the store as
// contended-but-healthy and admitting on the last computed state.
const casAttempts = 3

// Decision is the outcome of a single Allow check.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	// Reset is how long until the bucket is refilled to capacity.
	Reset time.Duration
	// RetryAfter is how long a denied caller should wait before retrying;
	// only meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Limiter is the Rate Limit Engine's public contract. The RateLimit
// filter calls Allow once per request with the caller's identity key and
// tier; RetryAfter is only meaningful when Allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string, tier Tier) (Decision, error)
}

// capacities maps a Tier to its bucket size. The refill rate is derived
// from it: a full bucket's worth of tokens is restored every refillWindow.
type capacities struct {
	Anonymous     int64
	Authenticated int64
	Premium       int64
}

func (c capacities) of(t Tier) int64 {
	switch t {
	case TierAuthenticated:
		return c.Authenticated
	case TierPremium:
		return c.Premium
	default:
		return c.Anonymous
	}
}

// redisLimiter implements Limiter as a token bucket whose math runs in
// process and whose new state is committed through the cache Store's EvalCAS.
// On cache unavailability it opens a circuit and falls back to a local,
// bounded in-memory bucket per key so the gateway degrades instead of
// failing every request closed.
type redisLimiter struct {
	store cache.Store
	caps  capacities

	keyPrefix string

	circuit  *circuitBreaker
	fallback *localLimiter
}

// Option configures a redisLimiter.
type Option func(*redisLimiter)

// WithKeyPrefix overrides the default "ratelimit:" Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(l *redisLimiter) { l.keyPrefix = prefix }
}

// WithCircuitRecovery overrides how long the limiter stays on its local
// fallback after the cache store trips the internal circuit.
func WithCircuitRecovery(d time.Duration) Option {
	return func(l *redisLimiter) { l.circuit.recoveryTime = d }
}

// NewLimiter builds the distributed Rate Limit Engine. anonymous,
// authenticated and premium are the per-tier bucket capacities (rate_limit.capacity.{anonymous,authenticated,premium}).
func NewLimiter(store cache.Store, anonymous, authenticated, premium int64, opts ...Option) Limiter {
	l := &redisLimiter{
		store:     store,
		caps:      capacities{Anonymous: anonymous, Authenticated: authenticated, Premium: premium},
		keyPrefix: "ratelimit:",
		circuit:   newCircuitBreaker(5, 30*time.Second),
		fallback:  newLocalLimiter(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow evaluates one token withdrawal against the caller's distributed
// bucket. When the circuit to the cache store is open, it evaluates the
// same bucket math against an in-process fallback instead.
func (l *redisLimiter) Allow(ctx context.Context, key string, tier Tier) (Decision, error) {
	capacity := l.caps.of(tier)
	if capacity <= 0 {
		capacity = 1
	}
	ratePerSec := float64(capacity) / refillWindow.Seconds()

	if l.circuit.isOpen() {
		return l.fallback.allow(key, capacity, ratePerSec), nil
	}

	redisKey := l.keyPrefix + string(tier) + ":" + key

	res, err := l.evalTokenBucket(ctx, redisKey, capacity, ratePerSec)
	if err != nil {
		l.circuit.recordFailure()
		return l.fallback.allow(key, capacity, ratePerSec), nil
	}
	l.circuit.recordSuccess()
	return res, nil
}

// evalTokenBucket runs the bucket math client-side and commits it with the
// cache store's atomic compare-and-swap, so concurrent gateway replicas
// never double-spend a token: a replica that lost the race re-reads and
// replays against the winner's state.
func (l *redisLimiter) evalTokenBucket(ctx context.Context, key string, capacity int64, ratePerSec float64) (Decision, error) {
	var dec Decision
	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, err := l.store.Get(ctx, key)
		if err != nil && err != cache.ErrNotFound {
			return Decision{}, err
		}

		nowMS := nowMillis()
		tokens := float64(capacity)
		lastRefill := nowMS
		expected := ""
		if err == nil {
			tokens, lastRefill = parseBucket(raw, capacity)
			expected = raw
		}

		elapsedSec := math.Max(0, float64(nowMS-lastRefill)) / 1000.0
		tokens = math.Min(float64(capacity), tokens+elapsedSec*ratePerSec)

		allowed := tokens >= 1
		if allowed {
			tokens--
		}

		newVal := fmt.Sprintf("%f:%d", tokens, nowMS)
		casErr := l.store.EvalCAS(ctx, key, expected, newVal, 2*refillWindow)
		if casErr == cache.ErrCASConflict {
			dec = decisionFor(allowed, capacity, tokens, ratePerSec)
			continue
		}
		if casErr != nil {
			return Decision{}, casErr
		}
		return decisionFor(allowed, capacity, tokens, ratePerSec), nil
	}
	// Every CAS round lost to another replica; the store is healthy, just
	// contended. Serve the last computed decision rather than erroring the
	// request — the token accounting error is bounded by casAttempts.
	return dec, nil
}

func decisionFor(allowed bool, capacity int64, tokens, ratePerSec float64) Decision {
	dec := Decision{
		Allowed:   allowed,
		Limit:     capacity,
		Remaining: int64(math.Floor(tokens)),
		Reset:     time.Duration((float64(capacity) - tokens) / ratePerSec * float64(time.Second)),
	}
	if !allowed {
		deficit := 1 - tokens
		dec.RetryAfter = time.Duration(deficit / ratePerSec * float64(time.Second))
	}
	return dec
}

func parseBucket(raw string, capacity int64) (tokens float64, lastRefillMS int64) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return float64(capacity), nowMillis()
	}
	t, err1 := strconv.ParseFloat(parts[0], 64)
	lr, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return float64(capacity), nowMillis()
	}
	return t, lr
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// circuitBreaker is a minimal fail-fast gate: after threshold consecutive
// failures it opens for recoveryTime before allowing a probe through again.
type circuitBreaker struct {
	mu           sync.Mutex
	threshold    int
	recoveryTime time.Duration
	failureCount int
	openedAt     time.Time
	open         bool
}

func newCircuitBreaker(threshold int, recoveryTime time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, recoveryTime: recoveryTime}
}

func (c *circuitBreaker) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return false
	}
	if time.Since(c.openedAt) > c.recoveryTime {
		c.open = false
		c.failureCount = 0
		return false
	}
	return true
}

func (c *circuitBreaker) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.threshold {
		c.open = true
		c.openedAt = time.Now()
	}
}

func (c *circuitBreaker) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount = 0
}
