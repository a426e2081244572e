package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	rules []Rule
	err   error
}

func (s *staticSource) Load(context.Context) ([]Rule, error) {
	return s.rules, s.err
}

func TestManager_Match(t *testing.T) {
	rules := []Rule{
		{Pattern: "/api/products/**", Method: "GET", RequiredPermission: "product:read", Priority: 10},
		{Pattern: "/api/products/**", Method: "POST", RequiredPermission: "product:write", Priority: 10},
		{Pattern: "/api/orders/*", RequiredPermission: "order:manage", Priority: 10},
		{Pattern: "/public/**", Public: true, Priority: 100},
	}
	m, err := New(context.Background(), &staticSource{rules: rules})
	require.NoError(t, err)

	tests := []struct {
		name     string
		method   string
		path     string
		wantPerm string
		wantPub  bool
		wantOK   bool
	}{
		{"deep product read", "GET", "/api/products/123", "product:read", false, true},
		{"nested product read", "GET", "/api/products/123/reviews", "product:read", false, true},
		{"product write", "POST", "/api/products", "product:write", false, true},
		{"any-method order rule", "DELETE", "/api/orders/42", "order:manage", false, true},
		{"single-star does not cross segments", "GET", "/api/orders/42/items", "", false, false},
		{"public wins", "GET", "/public/ping", "", true, true},
		{"unmapped path", "GET", "/api/unknown", "", false, false},
		{"case-sensitive path", "GET", "/API/products/1", "", false, false},
		{"case-insensitive method", "get", "/api/products/123", "product:read", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := m.Match(tt.method, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantPerm, rule.RequiredPermission)
				assert.Equal(t, tt.wantPub, rule.Public)
			}
		})
	}
}

func TestManager_PriorityBreaksOverlaps(t *testing.T) {
	rules := []Rule{
		{Pattern: "/api/**", RequiredPermission: "api:any", Priority: 1},
		{Pattern: "/api/admin/**", RequiredPermission: "api:admin", Priority: 10},
	}
	m, err := New(context.Background(), &staticSource{rules: rules})
	require.NoError(t, err)

	rule, ok := m.Match("GET", "/api/admin/users")
	require.True(t, ok)
	assert.Equal(t, "api:admin", rule.RequiredPermission)

	rule, ok = m.Match("GET", "/api/products")
	require.True(t, ok)
	assert.Equal(t, "api:any", rule.RequiredPermission)
}

func TestManager_EqualPriorityFallsToLongerLiteralPrefix(t *testing.T) {
	rules := []Rule{
		{Pattern: "/api/**", RequiredPermission: "broad", Priority: 5},
		{Pattern: "/api/products/**", RequiredPermission: "narrow", Priority: 5},
	}
	m, err := New(context.Background(), &staticSource{rules: rules})
	require.NoError(t, err)

	rule, ok := m.Match("GET", "/api/products/1")
	require.True(t, ok)
	assert.Equal(t, "narrow", rule.RequiredPermission)
}

func TestManager_RefreshSwapsAtomically(t *testing.T) {
	src := &staticSource{rules: []Rule{
		{Pattern: "/api/a/**", RequiredPermission: "a", Priority: 1},
	}}
	m, err := New(context.Background(), src)
	require.NoError(t, err)

	_, ok := m.Match("GET", "/api/b/1")
	require.False(t, ok)

	src.rules = []Rule{{Pattern: "/api/b/**", RequiredPermission: "b", Priority: 1}}
	require.NoError(t, m.Refresh(context.Background()))

	rule, ok := m.Match("GET", "/api/b/1")
	require.True(t, ok)
	assert.Equal(t, "b", rule.RequiredPermission)

	_, ok = m.Match("GET", "/api/a/1")
	assert.False(t, ok, "old rule set is fully replaced")
}

func TestManager_RefreshFailureKeepsOldSet(t *testing.T) {
	src := &staticSource{rules: []Rule{
		{Pattern: "/api/a/**", RequiredPermission: "a", Priority: 1},
	}}
	m, err := New(context.Background(), src)
	require.NoError(t, err)

	src.err = errors.New("source down")
	require.Error(t, m.Refresh(context.Background()))

	_, ok := m.Match("GET", "/api/a/1")
	assert.True(t, ok, "failed reload must not wipe the serving set")
}

func TestNew_InitialLoadFailure(t *testing.T) {
	_, err := New(context.Background(), &staticSource{err: errors.New("boom")})
	assert.Error(t, err)
}

func TestNew_BadPattern(t *testing.T) {
	_, err := New(context.Background(), &staticSource{rules: []Rule{{Pattern: "/api/[", Priority: 1}}})
	assert.Error(t, err)
}
