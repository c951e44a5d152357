package middleware

import (
	"net/http"

	"github.com/docweaver/docweaver/internal/observe"
)

// Tracing attaches a trace ID to every request. A client-supplied
// X-Request-ID is reused, otherwise one is generated; either way the
// ID lands in the context and on the response header so a workflow
// submission can be followed through every pipeline stage's logs.
func Tracing() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := observe.TraceIDFromRequest(r)

			r = r.WithContext(observe.WithTraceID(r.Context(), traceID))
			w.Header().Set(observe.TraceHeader, traceID)

			next.ServeHTTP(w, r)
		})
	}
}
