package filters

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/iruldev/edge-gateway/internal/policy"
	"github.com/iruldev/edge-gateway/internal/ratelimit"
	"github.com/iruldev/edge-gateway/internal/session"
)

// Shared fakes for the filter tests.

type fakeSessions struct {
	mu   sync.Mutex
	recs map[string]session.Record
}

func newFakeSessions(recs map[string]session.Record) *fakeSessions {
	if recs == nil {
		recs = make(map[string]session.Record)
	}
	return &fakeSessions{recs: recs}
}

func (f *fakeSessions) Lookup(_ context.Context, id string) (session.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	return rec, nil
}

type fakeLimiter struct {
	mu       sync.Mutex
	decision ratelimit.Decision
	err      error
	keys     []string
	tiers    []ratelimit.Tier
}

func (f *fakeLimiter) Allow(_ context.Context, key string, tier ratelimit.Tier) (ratelimit.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.tiers = append(f.tiers, tier)
	return f.decision, f.err
}

func (f *fakeLimiter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

type staticRules []policy.Rule

func (s staticRules) Load(context.Context) ([]policy.Rule, error) { return s, nil }

// newFakePolicies compiles a real policy.Manager over a fixed rule set so
// filter tests exercise the production matching semantics.
func newFakePolicies(rules ...policy.Rule) policy.Manager {
	m, err := policy.New(context.Background(), staticRules(rules))
	if err != nil {
		panic(err)
	}
	return m
}

type fakePermissions struct {
	granted map[string]bool
	err     error
}

func (f *fakePermissions) HasPermission(_ context.Context, userID, permission string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.granted[userID+"/"+permission], nil
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "fake", Type: task.Type()}, nil
}

func (f *fakeEnqueuer) enqueued() []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*asynq.Task(nil), f.tasks...)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func allowAll() ratelimit.Decision {
	return ratelimit.Decision{Allowed: true, Limit: 100, Remaining: 99, Reset: 30 * time.Second}
}
