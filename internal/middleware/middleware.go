// Package middleware provides the HTTP middleware stack for the
// document workflow API: tracing, request logging, panic recovery,
// and per-client inbound rate limiting.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/docweaver/docweaver/internal/observe"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain composes multiple middleware into one. Middleware are applied
// in the order given: Chain(a, b, c)(handler) = a(b(c(handler))).
//
// The first middleware in the list is the outermost wrapper and runs
// first on the request path.
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Recover converts handler panics into 500 responses instead of
// killing the connection. Workflow runs are long; a panic deep in a
// pipeline stage must not take the listener down with it.
func Recover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panic",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"trace_id", observe.TraceIDFrom(r.Context()),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
