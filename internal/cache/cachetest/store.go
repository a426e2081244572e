// Package cachetest provides an in-memory cache.Store for unit tests: TTLs
// honored, pipelines applied in order, pub/sub delivered to in-process
// subscribers, and an Unavailable switch to simulate a cache-store outage.
package cachetest

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iruldev/edge-gateway/internal/cache"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no TTL
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is the fake. The zero value is not usable; call New.
type Store struct {
	mu   sync.Mutex
	data map[string]entry

	// Unavailable makes every operation fail with cache.ErrUnavailable,
	// simulating a store outage.
	Unavailable bool

	published map[string][]string
	subs      map[string][]chan string
}

// New builds an empty fake store.
func New() *Store {
	return &Store{
		data:      make(map[string]entry),
		published: make(map[string][]string),
		subs:      make(map[string][]chan string),
	}
}

// SetUnavailable flips the outage switch.
func (s *Store) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Unavailable = down
}

func (s *Store) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Unavailable
}

// TTLOf reports the remaining TTL recorded for key, and whether the key
// exists.
func (s *Store) TTLOf(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || e.expired(time.Now()) {
		return 0, false
	}
	if e.expiresAt.IsZero() {
		return 0, true
	}
	return time.Until(e.expiresAt), true
}

// Published returns the messages published on channel, in order.
func (s *Store) Published(channel string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.published[channel]...)
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	if s.failing() {
		return "", cache.ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || e.expired(time.Now()) {
		delete(s.data, key)
		return "", cache.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if s.failing() {
		return cache.ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, ttl)
	return nil
}

func (s *Store) setLocked(key, value string, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.data[key] = e
}

func (s *Store) Del(_ context.Context, key string) error {
	if s.failing() {
		return cache.ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	if s.failing() {
		return 0, cache.ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrLocked(key), nil
}

func (s *Store) incrLocked(key string) int64 {
	now := time.Now()
	e, ok := s.data[key]
	if !ok || e.expired(now) {
		e = entry{}
	}
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	s.data[key] = e
	return n
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	if s.failing() {
		return cache.ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	e.expiresAt = time.Now().Add(ttl)
	s.data[key] = e
	return nil
}

func (s *Store) Pipeline(_ context.Context, ops []cache.Op) ([]cache.Result, error) {
	if s.failing() {
		return nil, cache.ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]cache.Result, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case cache.OpIncr:
			results[i] = cache.Result{Int64: s.incrLocked(op.Key)}
		case cache.OpExpire:
			if e, ok := s.data[op.Key]; ok {
				e.expiresAt = time.Now().Add(op.TTL)
				s.data[op.Key] = e
			}
		case cache.OpSet:
			s.setLocked(op.Key, op.Value, op.TTL)
		}
	}
	return results, nil
}

func (s *Store) EvalCAS(_ context.Context, key, expected, newVal string, ttl time.Duration) error {
	if s.failing() {
		return cache.ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if ok && e.expired(time.Now()) {
		delete(s.data, key)
		ok = false
	}
	if (!ok && expected == "") || (ok && e.value == expected) {
		s.setLocked(key, newVal, ttl)
		return nil
	}
	return cache.ErrCASConflict
}

func (s *Store) Publish(_ context.Context, channel, msg string) error {
	if s.failing() {
		return cache.ErrUnavailable
	}
	s.mu.Lock()
	s.published[channel] = append(s.published[channel], msg)
	subs := append([]chan string(nil), s.subs[channel]...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (s *Store) Subscribe(_ context.Context, channel string) cache.Subscription {
	ch := make(chan string, 16)
	s.mu.Lock()
	s.subs[channel] = append(s.subs[channel], ch)
	s.mu.Unlock()
	return &subscription{ch: ch}
}

type subscription struct {
	ch chan string
}

func (s *subscription) Next(ctx context.Context) (string, error) {
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *subscription) Close() error { return nil }

type scanIterator struct {
	keys []string
	idx  int
	cur  string
}

func (i *scanIterator) Next(context.Context) bool {
	if i.idx >= len(i.keys) {
		return false
	}
	i.cur = i.keys[i.idx]
	i.idx++
	return true
}

func (i *scanIterator) Key() string { return i.cur }
func (i *scanIterator) Err() error  { return nil }

type failingIterator struct{}

func (failingIterator) Next(context.Context) bool { return false }
func (failingIterator) Key() string               { return "" }
func (failingIterator) Err() error                { return cache.ErrUnavailable }

func (s *Store) Scan(_ context.Context, pattern string, _ int64) cache.Iterator {
	if s.failing() {
		return failingIterator{}
	}
	prefix := strings.TrimSuffix(pattern, "*")
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var keys []string
	for k, e := range s.data {
		if e.expired(now) {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return &scanIterator{keys: keys}
}

func (s *Store) Ping(context.Context) error {
	if s.failing() {
		return cache.ErrUnavailable
	}
	return nil
}

func (s *Store) Close() error { return nil }
