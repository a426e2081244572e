// Package policy implements the Policy Manager: the route-to-permission
// table the Authorization filter consults on every request, with ant-style
// glob matching, priority/specificity tie-breaking and atomic hot-reload
// from its source.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/gobwas/glob"
)

// Rule binds a route pattern to the permission required to access it.
// Public routes set RequiredPermission to "" and Public to true.
type Rule struct {
	// Pattern is an ant-style path pattern; "*" matches one segment, "**"
	// matches across segments (e.g. "/api/orders/**"). A trailing "/**" also
	// matches the bare prefix ("/api/orders").
	Pattern string
	Method  string // "" matches any method
	// RequiredPermission is the permission name the caller must hold; empty
	// when Public is true.
	RequiredPermission string
	Public             bool
	// Priority breaks ties between overlapping patterns; higher wins. Equal
	// priority falls back to the rule with the longer literal prefix.
	Priority int
}

type compiledRule struct {
	Rule
	g             glob.Glob
	literalPrefix int
}

// Source loads the current rule set from wherever the gateway's operators
// maintain it (a config file, an admin API, a database table). Refresh
// calls Source.Load and atomically swaps the result in.
type Source interface {
	Load(ctx context.Context) ([]Rule, error)
}

// Manager is the Policy Manager's public contract.
type Manager interface {
	// Match returns the rule governing method/path, or ok=false when no rule
	// covers the route (the gateway then treats it per its default-deny or
	// default-allow configuration for unmapped routes).
	Match(method, path string) (Rule, bool)
	Refresh(ctx context.Context) error
}

type manager struct {
	source  Source
	current atomic.Pointer[[]compiledRule]
}

// New builds a Policy Manager and performs its initial, synchronous load so
// the gateway never serves traffic with an empty policy set.
func New(ctx context.Context, source Source) (Manager, error) {
	m := &manager{source: source}
	if err := m.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("policy: initial load: %w", err)
	}
	return m, nil
}

// Refresh implements tasks.PolicyRefresher; it is invoked both at startup
// and by the periodic policy:refresh asynq task (every
// policy.refresh_interval_s seconds).
func (m *manager) Refresh(ctx context.Context) error {
	rules, err := m.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("policy: load from source: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			return fmt.Errorf("policy: compile pattern %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{
			Rule:          r,
			g:             g,
			literalPrefix: literalPrefixLen(r.Pattern),
		})
	}

	// Highest priority first, then longest literal prefix, so Match's
	// linear scan returns the most specific match.
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority > compiled[j].Priority
		}
		return compiled[i].literalPrefix > compiled[j].literalPrefix
	})

	m.current.Store(&compiled)
	return nil
}

func (m *manager) Match(method, path string) (Rule, bool) {
	rules := m.current.Load()
	if rules == nil {
		return Rule{}, false
	}
	for _, r := range *rules {
		if !methodMatches(r.Method, method) {
			continue
		}
		if r.g.Match(path) || (strings.HasSuffix(r.Pattern, "/**") && r.g.Match(path+"/")) {
			return r.Rule, true
		}
	}
	return Rule{}, false
}

// methodMatches is case-insensitive; "" and "*" both mean any method. Path
// matching, by contrast, stays case-sensitive.
func methodMatches(ruleMethod, requestMethod string) bool {
	if ruleMethod == "" || ruleMethod == "*" {
		return true
	}
	return strings.EqualFold(ruleMethod, requestMethod)
}

// literalPrefixLen returns the length of a pattern's prefix before its
// first wildcard character, used as the specificity tie-breaker.
func literalPrefixLen(pattern string) int {
	for i, c := range pattern {
		if c == '*' {
			return i
		}
	}
	return len(pattern)
}
