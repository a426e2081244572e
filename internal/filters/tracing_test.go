package filters

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracing_GeneratesTraceID(t *testing.T) {
	var ctxTraceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxTraceID = TraceIDFromContext(r.Context())
	})
	handler := Tracing("test")(next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/x", nil))

	got := rr.Header().Get(TraceIDHeader)
	assert.NotEmpty(t, got)
	assert.Equal(t, got, ctxTraceID, "response header and context carry the same trace id")
}

func TestTracing_PropagatesInboundTraceID(t *testing.T) {
	handler := Tracing("test")(okHandler())

	req := httptest.NewRequest("GET", "/api/x", nil)
	req.Header.Set(TraceIDHeader, "trace-123")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, "trace-123", rr.Header().Get(TraceIDHeader))
}

func TestWriteErrorCode_StatusMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"CSRF_PROTECTION", http.StatusForbidden},
		{"RATE_LIMIT_EXCEEDED", http.StatusTooManyRequests},
		{"UNAUTHORIZED", http.StatusUnauthorized},
		{"FORBIDDEN", http.StatusForbidden},
		{"UPSTREAM_ERROR", http.StatusBadGateway},
		{"UPSTREAM_TIMEOUT", http.StatusGatewayTimeout},
		{"CIRCUIT_OPEN", http.StatusServiceUnavailable},
		{"BULKHEAD_REJECTED", http.StatusServiceUnavailable},
		{"CACHE_UNAVAILABLE", http.StatusServiceUnavailable},
		{"SESSION_PERSIST_ERROR", http.StatusServiceUnavailable},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req = req.WithContext(WithTraceID(req.Context(), "t-1"))
			rr := httptest.NewRecorder()

			WriteErrorCode(rr, req, tt.code, "msg")

			assert.Equal(t, tt.want, rr.Code)
			assert.JSONEq(t,
				`{"error":"`+tt.code+`","message":"msg","traceId":"t-1"}`,
				rr.Body.String())
		})
	}
}
