package filters

import (
	"net/http"

	domainerrors "github.com/iruldev/edge-gateway/internal/domain/errors"
)

// csrfHeaders is the set of headers that satisfy the CSRF check; any one
// present is sufficient.
var csrfHeaders = []string{"X-XSRF-TOKEN", "X-Requested-With", "X-CSRF-TOKEN"}

// CSRF is the order −10 filter: mutating methods on non-public paths must
// present one of csrfHeaders, or the request is rejected with 403.
func CSRF() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutating(r.Method) || isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			for _, h := range csrfHeaders {
				if r.Header.Get(h) != "" {
					next.ServeHTTP(w, r)
					return
				}
			}

			WriteErrorCode(w, r, domainerrors.CodeCsrfMissing, "missing CSRF protection header")
		})
	}
}
