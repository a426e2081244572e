// Package filters implements the gateway's ordered request-processing
// pipeline: a chi middleware chain run in a fixed numeric order (tracing,
// metrics, CSRF, rate limiting, session enrichment, authorization), plus
// the single top-of-stack error translator that renders the gateway's flat
// JSON error envelope.
package filters

import (
	"context"
	"net/http"
	"strings"
)

// ctxKey is the unexported context key type for values this package injects
// into the request context so downstream filters and the router can read
// them without re-deriving.
type ctxKey int

const (
	keyTraceID ctxKey = iota
	keyUserID
	keySessionID
	keyAuthzPerm
	keyAccessToken
)

// TraceIDFromContext returns the trace id attached by the Tracing filter,
// or "" if none is set (should not happen once the filter chain runs).
func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(keyTraceID).(string)
	return v
}

// WithTraceID attaches a trace id the way the Tracing filter does. Exposed
// for components (and their tests) that sit outside the chain.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyTraceID, id)
}

// UserIDFromContext returns the authenticated caller's user id, set by the
// Session→Token Enrichment filter once a valid session is found.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok
}

// WithUserID attaches the authenticated user id the way the Enrichment
// filter does.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

func sessionIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keySessionID).(string)
	return v, ok
}

func withSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keySessionID, id)
}

// AuthzPermFromContext returns the permission code the Authorization filter
// granted the request under, if any.
func AuthzPermFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyAuthzPerm).(string)
	return v, ok
}

// WithAuthzPerm attaches the granted permission code the way the
// Authorization filter does.
func WithAuthzPerm(ctx context.Context, perm string) context.Context {
	return context.WithValue(ctx, keyAuthzPerm, perm)
}

// AccessTokenFromContext returns the bearer token the Router should forward
// as Authorization: Bearer <token>, set by the Enrichment filter.
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyAccessToken).(string)
	return v, ok
}

// WithAccessToken attaches the bearer token the way the Enrichment filter
// does.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyAccessToken, token)
}

// publicPrefixes lists the path prefixes exempt from session enrichment and
// authorization; the Tracing, Metrics and Rate-Limit filters still run.
var publicPrefixes = []string{
	"/actuator/", "/health/", "/auth/", "/oauth2/", "/login/", "/public/",
}

// isPublicPath reports whether path falls under one of the always-public
// prefixes.
func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
