// Package router implements the Router + Upstream Client: it resolves a
// request to an upstream service name, picks a healthy instance via
// round-robin over a Service Discovery oracle, and forwards the request
// through the shared resilience wrapper (bulkhead → circuit breaker →
// retry), streaming both bodies without full buffering.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"sync/atomic"

	domainerrors "github.com/iruldev/edge-gateway/internal/domain/errors"
	"github.com/iruldev/edge-gateway/internal/filters"
	"github.com/iruldev/edge-gateway/internal/resilience"
)

// Discovery is the Service Discovery oracle's contract: for a logical
// upstream service name it returns the currently healthy instance
// base URLs. Implementations typically poll a registry (Consul, k8s
// endpoints, DNS SRV) on their own schedule.
type Discovery interface {
	Instances(service string) []string
}

// RouteTable matches an inbound request to a logical upstream service name
// and the number of leading path segments to strip before proxying.
type RouteTable interface {
	// Resolve returns the upstream service name and strip-prefix count for
	// method/path, or ok=false if nothing matches.
	Resolve(method, path string) (service string, stripPrefixCount int, ok bool)
}

// allowedHeaders is the set of inbound headers copied onto the outbound
// upstream request, beyond the bearer Authorization header the Enrichment
// filter already placed in the request context.
var allowedHeaders = []string{filters.TraceIDHeader, "X-User-Id", "X-AuthZ-Perm"}

// Router is the HTTP handler that performs resolution, instance selection
// and resilient forwarding.
type Router struct {
	discovery Discovery
	routes    RouteTable
	wrapper   resilience.ResilienceWrapper
	transport http.RoundTripper

	indices sync.Map // service name -> *atomic.Uint64
}

// New builds a Router. wrapper should already be configured per-upstream
// via resilience.CircuitBreakerFactory/BulkheadPresets (internal/resilience).
func New(discovery Discovery, routes RouteTable, wrapper resilience.ResilienceWrapper, transport http.RoundTripper) *Router {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Router{
		discovery: discovery,
		routes:    routes,
		wrapper:   wrapper,
		transport: transport,
	}
}

func (rt *Router) counterFor(service string) *atomic.Uint64 {
	c, _ := rt.indices.LoadOrStore(service, &atomic.Uint64{})
	return c.(*atomic.Uint64)
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	service, strip, ok := rt.routes.Resolve(r.Method, r.URL.Path)
	if !ok {
		filters.WriteErrorCode(w, r, domainerrors.CodeBadRequest, "no route for this path")
		return
	}

	instances := rt.discovery.Instances(service)
	if len(instances) == 0 {
		filters.WriteErrorCode(w, r, domainerrors.CodeUpstream5xx, "no healthy instances for "+service)
		return
	}

	path := stripPrefix(r.URL.Path, strip)

	var resp *http.Response
	err := rt.wrapper.Execute(r.Context(), service, func(ctx context.Context) error {
		instance := rt.pick(service, instances)
		req, buildErr := rt.buildRequest(ctx, r, instance, path)
		if buildErr != nil {
			return buildErr
		}

		var doErr error
		resp, doErr = rt.transport.RoundTrip(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("upstream %s returned %d", service, resp.StatusCode)
		}
		return nil
	})

	if err != nil {
		rt.writeUpstreamError(w, r, err)
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (rt *Router) pick(service string, instances []string) string {
	counter := rt.counterFor(service)
	idx := counter.Add(1) - 1
	return instances[int(idx)%len(instances)]
}

func (rt *Router) buildRequest(ctx context.Context, r *http.Request, instance, path string) (*http.Request, error) {
	target, err := url.Parse(instance)
	if err != nil {
		return nil, err
	}
	target.Path = path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}

	for _, h := range allowedHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if traceID := filters.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set(filters.TraceIDHeader, traceID)
	}
	if token, ok := filters.AccessTokenFromContext(ctx); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if userID, ok := filters.UserIDFromContext(ctx); ok {
		req.Header.Set("X-User-Id", userID)
	}
	if perm, ok := filters.AuthzPermFromContext(ctx); ok {
		req.Header.Set("X-AuthZ-Perm", perm)
	}

	return req, nil
}

func (rt *Router) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		filters.WriteErrorCode(w, r, domainerrors.CodeCircuitOpen, "upstream circuit open")
	case errors.Is(err, resilience.ErrBulkheadFull):
		filters.WriteErrorCode(w, r, domainerrors.CodeBulkheadRejected, "upstream at capacity")
	case errors.Is(err, resilience.ErrTimeoutExceeded), errors.Is(err, context.DeadlineExceeded):
		filters.WriteErrorCode(w, r, domainerrors.CodeUpstreamTimeout, "upstream call timed out")
	default:
		filters.WriteErrorCode(w, r, domainerrors.CodeUpstream5xx, "upstream call failed")
	}
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func stripPrefix(path string, segments int) string {
	if segments <= 0 {
		return path
	}
	count := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			count++
			if count > segments {
				return path[i:]
			}
		}
	}
	return "/"
}

// ReverseProxyFor builds a streaming httputil.ReverseProxy to a single
// fixed upstream base URL. Used by components (e.g. the OIDC callback
// bridge) that need simple pass-through proxying without the full
// resolve/select/resilience pipeline.
func ReverseProxyFor(base string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	return httputil.NewSingleHostReverseProxy(target), nil
}
