package filters

import (
	"net/http"
	"strconv"

	domainerrors "github.com/iruldev/edge-gateway/internal/domain/errors"
	"github.com/iruldev/edge-gateway/internal/ratelimit"
)

// sessionLookup is the narrow contract RateLimit needs from the Session
// Store to resolve an authenticated identifier before Enrichment has run.
// Declared here (rather than importing internal/session) to keep this
// filter's dependency surface minimal.
type sessionLookup interface {
	// LookupUserID returns the user id bound to a SESSION_ID cookie/header
	// value, or ok=false if there is no valid session for it.
	LookupUserID(r *http.Request) (userID string, ok bool)
}

// RateLimit is the order −2 filter: it derives an identifier (authenticated
// user id via session if resolvable, else client IP) and tier, then
// consumes one token from the Rate Limit Engine. Denied requests get 429;
// admitted ones get X-RateLimit-{Limit,Remaining,Reset}.
func RateLimit(limiter ratelimit.Limiter, sessions sessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, tier := identify(r, sessions)

			dec, err := limiter.Allow(r.Context(), identifier, tier)
			if err != nil {
				// The limiter itself only returns errors from programmer
				// mistakes (e.g. nil store); fail open rather than block
				// all traffic on a limiter bug.
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(dec.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(dec.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(dec.Reset.Seconds())))

			if !dec.Allowed {
				w.Header().Set("X-RateLimit-Retry-After", "60")
				WriteErrorCode(w, r, domainerrors.CodeRateLimitExceeded, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func identify(r *http.Request, sessions sessionLookup) (string, ratelimit.Tier) {
	if sessions != nil {
		if userID, ok := sessions.LookupUserID(r); ok {
			return "user:" + userID, ratelimit.TierAuthenticated
		}
	}
	return "ip:" + clientIP(r), ratelimit.TierAnonymous
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
