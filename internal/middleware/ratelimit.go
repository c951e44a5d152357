package middleware

import (
	"fmt"
	"net/http"

	"github.com/docweaver/docweaver/internal/ratelimit"
)

// KeyFunc extracts the client identity a rate limit bucket is keyed
// by. ClientIP is the default; deployments fronting multiple tenants
// typically key by API key header instead.
type KeyFunc func(*http.Request) string

// ClientIP keys buckets by the remote address.
func ClientIP(r *http.Request) string { return r.RemoteAddr }

// RateLimit rejects requests with 429 when a client floods the API.
// This is inbound protection for the service itself; the upstream
// model quota is enforced separately by the admission controller and
// a rejected request here never consumes any of it.
func RateLimit(limiter *ratelimit.PerClient, keyFunc KeyFunc) Middleware {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := limiter.Allow(keyFunc(r))
			if !ok {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
				http.Error(w, "rate limited", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
