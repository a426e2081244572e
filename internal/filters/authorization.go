package filters

import (
	"context"
	"net/http"

	domainerrors "github.com/iruldev/edge-gateway/internal/domain/errors"
	"github.com/iruldev/edge-gateway/internal/policy"
)

// PermissionResolver is the contract Authorization needs from the
// Permission Resolver.
type PermissionResolver interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// Authorization is the order 0 filter: it looks up the policy entry for
// (method, path). No matching policy passes (fail-safe for un-mapped
// resources); a public policy passes; otherwise a session is required
// (401) and the Permission Resolver is consulted (403 if not granted).
func Authorization(policies policy.Manager, permissions PermissionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := policies.Match(r.Method, r.URL.Path)
			if !ok || rule.Public {
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				WriteErrorCode(w, r, domainerrors.CodeUnauthorized, "authentication required")
				return
			}

			granted, err := permissions.HasPermission(r.Context(), userID, rule.RequiredPermission)
			if err != nil {
				WriteErrorCode(w, r, domainerrors.CodeIdentityUnavailable, "identity service unavailable")
				return
			}
			if !granted {
				WriteErrorCode(w, r, domainerrors.CodeForbidden, "insufficient permission")
				return
			}

			w.Header().Set("X-AuthZ-Perm", rule.RequiredPermission)
			ctx := WithAuthzPerm(r.Context(), rule.RequiredPermission)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
