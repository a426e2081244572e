package filters

import (
	"context"
	"net/http"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	domainerrors "github.com/iruldev/edge-gateway/internal/domain/errors"
	"github.com/iruldev/edge-gateway/internal/session"
	"github.com/iruldev/edge-gateway/internal/worker/patterns"
	"github.com/iruldev/edge-gateway/internal/worker/tasks"
)

const (
	sessionCookieName = "SESSION_ID"
	sessionHeaderName = "X-Session-Id"
)

// Sessions is the contract Enrichment and Authorization need from the
// Session Store.
type Sessions interface {
	Lookup(ctx context.Context, id string) (session.Record, error)
}

// Enrichment is the order −1 filter: it resolves the SESSION_ID
// cookie/header into a Session, attaches the bearer access token and user
// id to the request context for downstream use, and fires a best-effort
// async presence write. Absent session id passes through unmodified;
// present-but-invalid session id short-circuits with 401.
func Enrichment(sessions Sessions, enqueuer tasks.TaskEnqueuer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			sid := sessionID(r)
			if sid == "" {
				next.ServeHTTP(w, r)
				return
			}

			rec, err := sessions.Lookup(r.Context(), sid)
			if err != nil {
				WriteErrorCode(w, r, domainerrors.CodeUnauthorized, "session not found or expired")
				return
			}

			ctx := r.Context()
			ctx = withSessionID(ctx, sid)
			ctx = WithUserID(ctx, rec.UserID)
			ctx = WithAccessToken(ctx, rec.AccessToken)

			firePresenceWrite(enqueuer, logger, rec.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionID(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(sessionHeaderName)
}

// firePresenceWrite enqueues the online:<user_id> presence refresh via the
// fire-and-forget worker pattern so a slow or unavailable cache store never
// adds latency to the forward call.
func firePresenceWrite(enqueuer tasks.TaskEnqueuer, logger *zap.Logger, userID string) {
	if enqueuer == nil || userID == "" {
		return
	}
	payload := []byte(userID)
	task := asynq.NewTask(tasks.TypeCCUPresence, payload, asynq.MaxRetry(0), asynq.Queue("low"))
	patterns.FireAndForget(context.Background(), enqueuer, logger, task)
}
