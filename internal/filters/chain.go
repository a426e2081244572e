package filters

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/iruldev/edge-gateway/internal/cache"
	"github.com/iruldev/edge-gateway/internal/policy"
	"github.com/iruldev/edge-gateway/internal/ratelimit"
	"github.com/iruldev/edge-gateway/internal/worker/tasks"
)

// Deps bundles every dependency the filter chain needs to build itself,
// so cmd/gateway has a single call site.
type Deps struct {
	Store       cache.Store
	Limiter     ratelimit.Limiter
	Sessions    Sessions
	Policies    policy.Manager
	Permissions PermissionResolver
	Enqueuer    tasks.TaskEnqueuer
	Logger      *zap.Logger
	TracerName  string
	Registerer  prometheus.Registerer
}

// rateLimitSessionAdapter lets the RateLimit filter (which runs before
// Enrichment) resolve an authenticated identifier without re-implementing
// session lookup; it shares the same Sessions.Lookup call Enrichment uses.
type rateLimitSessionAdapter struct {
	sessions Sessions
}

func (a rateLimitSessionAdapter) LookupUserID(r *http.Request) (string, bool) {
	sid := sessionID(r)
	if sid == "" {
		return "", false
	}
	rec, err := a.sessions.Lookup(r.Context(), sid)
	if err != nil {
		return "", false
	}
	return rec.UserID, true
}

// Mount attaches the full ordered filter chain to r, in the fixed order
// the gateway contracts on: Tracing, Metrics, CSRF, Rate Limit, Enrichment,
// Authorization.
func Mount(r chi.Router, d Deps) {
	if d.Registerer != nil {
		RegisterMetrics(d.Registerer)
	}

	r.Use(Tracing(d.TracerName))
	r.Use(Metrics(d.Store))
	r.Use(CSRF())
	r.Use(RateLimit(d.Limiter, rateLimitSessionAdapter{sessions: d.Sessions}))
	r.Use(Enrichment(d.Sessions, d.Enqueuer, d.Logger))
	r.Use(Authorization(d.Policies, d.Permissions))
}
