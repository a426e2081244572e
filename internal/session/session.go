// Package session implements the Session Store: the two-tier (in-process L1
// plus shared-cache L2) record of authenticated principals, indexed by
// opaque session id, with refresh-token-backed renewal and invalidation
// broadcast to every gateway instance.
package session

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iruldev/edge-gateway/internal/cache"
)

// ErrNotFound is returned when a session id has no record in either tier.
var ErrNotFound = errors.New("session: not found")

// ErrPersistFailed is returned by Create when the L2 write fails; the
// caller maps this to domainerrors.CodeSessionPersistError.
var ErrPersistFailed = errors.New("session: could not persist to store")

const invalidationChannel = "session:invalidate"

// Record is the data a session binds to a principal. The access and
// refresh tokens are opaque to the gateway; it stores and forwards them
// without inspection.
type Record struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	IdPSubject   string            `json:"idp_subject,omitempty"`
	Roles        []string          `json:"roles,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	AccessExp    time.Time         `json:"access_exp"`
	RefreshExp   time.Time         `json:"refresh_exp"`
	IssuedAt     time.Time         `json:"issued_at"`
	LastSeenAt   time.Time         `json:"last_seen_at"`
}

func (r Record) expired(now time.Time) bool {
	return now.After(r.RefreshExp)
}

// Store is the Session Store's public contract.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Lookup(ctx context.Context, id string) (Record, error)
	// Refresh replaces a session's access token and its expiry, leaving the
	// refresh token and the rest of the record untouched.
	Refresh(ctx context.Context, id, newAccessToken string, newAccessExp time.Time) (Record, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// Listen runs the cross-instance invalidation subscriber until ctx is
	// canceled. Callers run this in its own goroutine for the process
	// lifetime.
	Listen(ctx context.Context)
}

// store is the two-tier implementation: an LRU-bounded L1 fronting an L2
// cache.Store, with cross-instance invalidation over pub/sub.
type store struct {
	l2 cache.Store

	l1Max int
	l1TTL time.Duration
	mu    sync.Mutex
	lru   *list.List
	index map[string]*list.Element

	slack time.Duration
}

type l1Entry struct {
	key       string
	rec       Record
	expiresAt time.Time
}

// New builds the Session Store. l1Max/l1TTL come from SessionConfig
// (session.l1.max_entries / session.l1.ttl_ms); slack is added on top of a
// session's refresh expiry when setting the L2 TTL so refreshes never race
// a premature eviction.
func New(l2 cache.Store, l1Max int, l1TTL time.Duration, slack time.Duration) Store {
	s := &store{
		l2:    l2,
		l1Max: l1Max,
		l1TTL: l1TTL,
		lru:   list.New(),
		index: make(map[string]*list.Element),
		slack: slack,
	}
	return s
}

// Listen subscribes to the invalidation channel and evicts matching L1
// entries as other gateway instances delete sessions. Callers run this in a
// goroutine for the process lifetime.
func (s *store) Listen(ctx context.Context) {
	sub := s.l2.Subscribe(ctx, invalidationChannel)
	defer sub.Close()
	for {
		id, err := sub.Next(ctx)
		if err != nil {
			return
		}
		s.evictL1(id)
	}
}

func redisKey(id string) string { return "session:" + id }

func (s *store) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now()
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = now
	}
	rec.LastSeenAt = now

	raw, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}

	ttl := time.Until(rec.RefreshExp) + s.slack
	if ttl <= 0 {
		ttl = s.slack
	}
	if err := s.l2.Set(ctx, redisKey(rec.ID), string(raw), ttl); err != nil {
		return Record{}, ErrPersistFailed
	}

	s.putL1(rec)
	return rec, nil
}

func (s *store) Lookup(ctx context.Context, id string) (Record, error) {
	if rec, ok := s.getL1(id); ok {
		return rec, nil
	}

	raw, err := s.l2.Get(ctx, redisKey(id))
	if err != nil {
		if err == cache.ErrNotFound {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, err
	}
	if rec.expired(time.Now()) {
		_ = s.Delete(ctx, id)
		return Record{}, ErrNotFound
	}

	s.putL1(rec)
	return rec, nil
}

func (s *store) Refresh(ctx context.Context, id, newAccessToken string, newAccessExp time.Time) (Record, error) {
	rec, err := s.Lookup(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if newAccessToken != "" {
		rec.AccessToken = newAccessToken
	}
	rec.AccessExp = newAccessExp

	raw, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	ttl := time.Until(rec.RefreshExp) + s.slack
	if ttl <= 0 {
		ttl = s.slack
	}
	if err := s.l2.Set(ctx, redisKey(id), string(raw), ttl); err != nil {
		return Record{}, ErrPersistFailed
	}

	s.putL1(rec)
	return rec, nil
}

// Touch records activity on a session: it bumps LastSeenAt in both tiers
// and refreshes the L2 TTL so an active session never expires mid-use.
func (s *store) Touch(ctx context.Context, id string) error {
	rec, err := s.Lookup(ctx, id)
	if err != nil {
		return err
	}
	rec.LastSeenAt = time.Now()

	ttl := time.Until(rec.RefreshExp) + s.slack
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.l2.Set(ctx, redisKey(id), string(raw), ttl); err != nil {
		return err
	}
	s.putL1(rec)
	return nil
}

func (s *store) Delete(ctx context.Context, id string) error {
	s.evictL1(id)
	if err := s.l2.Del(ctx, redisKey(id)); err != nil {
		return err
	}
	return s.l2.Publish(ctx, invalidationChannel, id)
}

func (s *store) getL1(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	entry := el.Value.(*l1Entry)
	if time.Now().After(entry.expiresAt) {
		s.lru.Remove(el)
		delete(s.index, id)
		return Record{}, false
	}
	s.lru.MoveToFront(el)
	return entry.rec, true
}

func (s *store) putL1(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &l1Entry{key: rec.ID, rec: rec, expiresAt: time.Now().Add(s.l1TTL)}
	if el, ok := s.index[rec.ID]; ok {
		el.Value = entry
		s.lru.MoveToFront(el)
		return
	}

	el := s.lru.PushFront(entry)
	s.index[rec.ID] = el

	for s.lru.Len() > s.l1Max {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		s.lru.Remove(oldest)
		delete(s.index, oldest.Value.(*l1Entry).key)
	}
}

func (s *store) evictL1(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.index[id]; ok {
		s.lru.Remove(el)
		delete(s.index, id)
	}
}
