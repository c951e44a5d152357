package observe

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
)

// TraceHeader carries the request trace ID, reused when a client sends
// one and echoed back on every response.
const TraceHeader = "X-Request-ID"

// traceKey is the context key for the trace ID.
type traceKey struct{}

// GenerateTraceID creates a random 16-byte hex string. Workflow runs
// use the same IDs so one submission can be followed from the API
// request through every pipeline stage's log lines.
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// TraceIDFromRequest extracts or generates a trace ID for the request.
func TraceIDFromRequest(r *http.Request) string {
	if id := r.Header.Get(TraceHeader); id != "" {
		return id
	}
	return GenerateTraceID()
}

// WithTraceID stores the trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceIDFrom retrieves the trace ID from context.
func TraceIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(traceKey{}).(string); ok {
		return id
	}
	return ""
}
