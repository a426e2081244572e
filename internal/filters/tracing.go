package filters

import (
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader is the header the Tracing filter guarantees on both the
// inbound and outbound side of the request.
const TraceIDHeader = "X-Trace-Id"

// Tracing is the order −100 filter: it ensures a trace id exists, attaches
// it to the request and response, and starts a root span. It never
// short-circuits.
func Tracing(tracerName string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceIDHeader)
			if traceID == "" {
				traceID = uuid.NewString()
			}

			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithAttributes())
			defer span.End()

			ctx = WithTraceID(ctx, traceID)
			w.Header().Set(TraceIDHeader, traceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
