// Package permission implements the Permission Resolver: a two-tier cache
// (in-process L1, shared L2) in front of the identity service's
// has_permission/user_roles RPCs, guarded by the shared resilience wrapper
// so a struggling identity service degrades the gateway gracefully instead
// of cascading.
package permission

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/iruldev/edge-gateway/internal/cache"
	"github.com/iruldev/edge-gateway/internal/resilience"
)

// IdentityClient is the narrow upstream contract the Permission Resolver
// fills its cache from. Implementations typically wrap an HTTP or gRPC
// client to the identity service.
type IdentityClient interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
	UserRoles(ctx context.Context, userID string) ([]string, error)
}

// Resolver is the Permission Resolver's public contract.
type Resolver interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
	UserRoles(ctx context.Context, userID string) ([]string, error)
}

type resolver struct {
	l2       cache.Store
	identity IdentityClient
	wrapper  resilience.ResilienceWrapper

	ttl time.Duration

	mu    sync.Mutex
	lru   *list.List
	index map[string]*list.Element
	l1Max int
}

type l1Entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// New builds the Permission Resolver. l1Max bounds the L1 entry count and
// ttl applies to both tiers; cmd/gateway passes 10k entries and 5 minutes.
func New(l2 cache.Store, identity IdentityClient, wrapper resilience.ResilienceWrapper, l1Max int, ttl time.Duration) Resolver {
	return &resolver{
		l2:       l2,
		identity: identity,
		wrapper:  wrapper,
		ttl:      ttl,
		lru:      list.New(),
		index:    make(map[string]*list.Element),
		l1Max:    l1Max,
	}
}

func permKey(userID, permission string) string {
	return fmt.Sprintf("perm:%s:%s", userID, permission)
}

func rolesKey(userID string) string {
	return fmt.Sprintf("roles:%s", userID)
}

// HasPermission checks the two-tier cache before calling through to the
// identity service. On identity-service unavailability it fails closed
// (returns false, non-nil error) and deliberately does not cache the
// negative result, so a recovered identity service is consulted again on
// the very next call.
func (r *resolver) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	key := permKey(userID, permission)

	if v, ok := r.getL1(key); ok {
		return v.(bool), nil
	}

	if raw, err := r.l2.Get(ctx, key); err == nil {
		var allowed bool
		if jsonErr := json.Unmarshal([]byte(raw), &allowed); jsonErr == nil {
			r.putL1(key, allowed)
			return allowed, nil
		}
	}

	var allowed bool
	err := r.wrapper.Execute(ctx, "identity.has_permission", func(ctx context.Context) error {
		var callErr error
		allowed, callErr = r.identity.HasPermission(ctx, userID, permission)
		return callErr
	})
	if err != nil {
		return false, fmt.Errorf("permission: identity service unavailable: %w", err)
	}

	r.cacheBool(ctx, key, allowed)
	return allowed, nil
}

// UserRoles mirrors HasPermission's cache-then-fill behavior for the
// caller's full role set, used by the Session→Token Enrichment filter.
func (r *resolver) UserRoles(ctx context.Context, userID string) ([]string, error) {
	key := rolesKey(userID)

	if v, ok := r.getL1(key); ok {
		return v.([]string), nil
	}

	if raw, err := r.l2.Get(ctx, key); err == nil {
		var roles []string
		if jsonErr := json.Unmarshal([]byte(raw), &roles); jsonErr == nil {
			r.putL1(key, roles)
			return roles, nil
		}
	}

	var roles []string
	err := r.wrapper.Execute(ctx, "identity.user_roles", func(ctx context.Context) error {
		var callErr error
		roles, callErr = r.identity.UserRoles(ctx, userID)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("permission: identity service unavailable: %w", err)
	}

	if raw, jsonErr := json.Marshal(roles); jsonErr == nil {
		_ = r.l2.Set(ctx, key, string(raw), r.ttl)
	}
	r.putL1(key, roles)
	return roles, nil
}

func (r *resolver) cacheBool(ctx context.Context, key string, allowed bool) {
	if raw, err := json.Marshal(allowed); err == nil {
		_ = r.l2.Set(ctx, key, string(raw), r.ttl)
	}
	r.putL1(key, allowed)
}

func (r *resolver) getL1(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.index[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*l1Entry)
	if time.Now().After(entry.expiresAt) {
		r.lru.Remove(el)
		delete(r.index, key)
		return nil, false
	}
	r.lru.MoveToFront(el)
	return entry.value, true
}

func (r *resolver) putL1(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &l1Entry{key: key, value: value, expiresAt: time.Now().Add(r.ttl)}
	if el, ok := r.index[key]; ok {
		el.Value = entry
		r.lru.MoveToFront(el)
		return
	}

	el := r.lru.PushFront(entry)
	r.index[key] = el

	for r.lru.Len() > r.l1Max {
		oldest := r.lru.Back()
		if oldest == nil {
			break
		}
		r.lru.Remove(oldest)
		delete(r.index, oldest.Value.(*l1Entry).key)
	}
}
