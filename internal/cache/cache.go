// Package cache implements the Cache Store Adapter: the single abstraction
// every other gateway component uses to reach the shared, distributed cache
// store. It exposes string/counter operations, TTLs, pipelined writes, scan
// iteration and pub/sub over Redis, and surfaces every failure as one
// ErrUnavailable kind. The adapter never retries internally; callers choose
// their own retry/fallback policy.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iruldev/edge-gateway/internal/config"
)

// ErrUnavailable is returned, wrapped, for every operation that could not
// reach the cache store within its deadline. Callers never see go-redis
// error types directly.
var ErrUnavailable = errors.New("cache: store unavailable")

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// ErrCASConflict is returned by EvalCAS when the stored value did not match
// the expected one at the moment of the compare-and-swap.
var ErrCASConflict = errors.New("cache: compare-and-swap conflict")

// Store is the Cache Store Adapter contract. Every operation takes the
// caller's context for its deadline; the adapter applies no additional
// internal retry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Pipeline(ctx context.Context, ops []Op) ([]Result, error)
	Scan(ctx context.Context, pattern string, batchSize int64) Iterator
	// EvalCAS atomically sets key to newVal and refreshes its TTL only if the
	// stored value equals expected (or the key is absent and expected == "").
	// Used by the Rate Limit Engine's distributed token bucket.
	EvalCAS(ctx context.Context, key, expected, newVal string, ttl time.Duration) error
	Publish(ctx context.Context, channel, msg string) error
	Subscribe(ctx context.Context, channel string) Subscription
	Ping(ctx context.Context) error
	Close() error
}

// Op is a single pipelined operation, tagged by Kind.
type Op struct {
	Kind  OpKind
	Key   string
	Value string
	TTL   time.Duration
}

// OpKind enumerates the pipelineable operation types.
type OpKind int

const (
	// OpIncr increments Key by 1.
	OpIncr OpKind = iota
	// OpExpire sets a TTL on Key.
	OpExpire
	// OpSet writes Value to Key with TTL.
	OpSet
)

// Result is the outcome of one pipelined Op, in request order.
type Result struct {
	Int64 int64
	Err   error
}

// Iterator is a lazy, cursor-based sequence of keys produced by Scan.
type Iterator interface {
	// Next advances the iterator. Returns false when exhausted or on error;
	// call Err to distinguish the two.
	Next(ctx context.Context) bool
	Key() string
	Err() error
}

// Subscription is a lazy sequence of pub/sub messages.
type Subscription interface {
	// Next blocks until a message arrives or ctx is done.
	Next(ctx context.Context) (string, error)
	Close() error
}

// RedisStore is the Store implementation backed by go-redis.
type RedisStore struct {
	rdb     *redis.Client
	timeout time.Duration

	casSHA   string
	casSHAMu sync.Mutex
}

// NewRedisStore dials the configured Redis instance and verifies
// connectivity with a PING before returning. cfg.Timeout bounds every
// subsequent operation's default deadline (cache_store.timeout_ms).
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: initial ping: %v", ErrUnavailable, err)
	}

	return &RedisStore{rdb: rdb, timeout: cfg.Timeout}, nil
}

// casScript compares the value at KEYS[1] against ARGV[1] ("" meaning "must
// not exist") and, if it matches, sets it to ARGV[2] with a TTL of ARGV[3]
// seconds. Returns 1 on success, 0 on conflict.
const casScript = `
local cur = redis.call('GET', KEYS[1])
if (cur == false and ARGV[1] == '') or (cur == ARGV[1]) then
	redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
	return 1
end
return 0
`

func (s *RedisStore) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Get returns ErrNotFound on a redis.Nil miss and wraps everything else in
// ErrUnavailable.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	val, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return val, nil
	case errors.Is(err, redis.Nil):
		return "", ErrNotFound
	default:
		return "", fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", ErrUnavailable, key, err)
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: expire %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Pipeline executes every Op in a single round trip. Used by the Metrics
// filter to write the dashboard:* counter family with one network call per
// request.
func (s *RedisStore) Pipeline(ctx context.Context, ops []Op) ([]Result, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case OpIncr:
			cmds[i] = pipe.Incr(ctx, op.Key)
		case OpExpire:
			pipe.Expire(ctx, op.Key, op.TTL)
		case OpSet:
			pipe.Set(ctx, op.Key, op.Value, op.TTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: pipeline: %v", ErrUnavailable, err)
	}

	results := make([]Result, len(ops))
	for i, cmd := range cmds {
		if cmd == nil {
			continue
		}
		n, err := cmd.Result()
		results[i] = Result{Int64: n, Err: err}
	}
	return results, nil
}

// EvalCAS is the atomic primitive the distributed rate limiter and other
// CAS-style writers build on.
func (s *RedisStore) EvalCAS(ctx context.Context, key, expected, newVal string, ttl time.Duration) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	sha, err := s.ensureCASScript(ctx)
	if err != nil {
		return fmt.Errorf("%w: load cas script: %v", ErrUnavailable, err)
	}

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	res, err := s.rdb.EvalSha(ctx, sha, []string{key}, expected, newVal, ttlSeconds).Result()
	if err != nil && isNoScript(err) {
		res, err = s.rdb.Eval(ctx, casScript, []string{key}, expected, newVal, ttlSeconds).Result()
	}
	if err != nil {
		return fmt.Errorf("%w: eval_cas %s: %v", ErrUnavailable, key, err)
	}

	ok, _ := res.(int64)
	if ok != 1 {
		return ErrCASConflict
	}
	return nil
}

func (s *RedisStore) ensureCASScript(ctx context.Context) (string, error) {
	s.casSHAMu.Lock()
	defer s.casSHAMu.Unlock()

	if s.casSHA != "" {
		return s.casSHA, nil
	}
	sum := sha1.Sum([]byte(casScript))
	want := hex.EncodeToString(sum[:])

	sha, err := s.rdb.ScriptLoad(ctx, casScript).Result()
	if err != nil {
		return "", err
	}
	if sha != want {
		// go-redis computes the same SHA1 the server does; a mismatch only
		// signals a script-source edit, not a runtime condition, but fall
		// back to whatever the server reports.
		s.casSHA = sha
		return sha, nil
	}
	s.casSHA = sha
	return sha, nil
}

func isNoScript(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return len(s) >= 8 && s[:8] == "NOSCRIPT"
}

func (s *RedisStore) Publish(ctx context.Context, channel, msg string) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	if err := s.rdb.Publish(ctx, channel, msg).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrUnavailable, channel, err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) Subscription {
	pubsub := s.rdb.Subscribe(ctx, channel)
	return &redisSubscription{pubsub: pubsub}
}

type redisSubscription struct {
	pubsub *redis.PubSub
}

func (r *redisSubscription) Next(ctx context.Context) (string, error) {
	msg, err := r.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: subscribe receive: %v", ErrUnavailable, err)
	}
	return msg.Payload, nil
}

func (r *redisSubscription) Close() error {
	return r.pubsub.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// redisScanIterator wraps *redis.ScanIterator to satisfy Iterator while
// translating its error into ErrUnavailable.
type redisScanIterator struct {
	it *redis.ScanIterator
}

func (s *RedisStore) scanIterator(ctx context.Context, pattern string, batchSize int64) Iterator {
	it := s.rdb.Scan(ctx, 0, pattern, batchSize).Iterator()
	return &redisScanIterator{it: it}
}

func (i *redisScanIterator) Next(ctx context.Context) bool {
	return i.it.Next(ctx)
}

func (i *redisScanIterator) Key() string {
	return i.it.Val()
}

func (i *redisScanIterator) Err() error {
	if err := i.it.Err(); err != nil {
		return fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
	}
	return nil
}

// Scan performs a non-blocking cursor-based SCAN with MATCH=pattern and the
// given COUNT hint, used by the CCU scanner over `online:*`.
func (s *RedisStore) Scan(ctx context.Context, pattern string, batchSize int64) Iterator {
	return s.scanIterator(ctx, pattern, batchSize)
}
