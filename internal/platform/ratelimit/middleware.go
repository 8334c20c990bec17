package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/psicolfis/checkout-api/internal/platform/httpx"
	"github.com/psicolfis/checkout-api/internal/platform/requestctx"
)

// Logger receives limiter failures.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Middleware rejects requests over the limit with 429. Limiter errors let the request through.
func Middleware(limiter Limiter, logger Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			client := ClientKey(r)
			decision, err := limiter.Allow(ctx, client)
			if err != nil {
				logger(ctx, "ratelimit.check_failed", map[string]any{"error": err.Error()})
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				logger(ctx, "ratelimit.rejected", map[string]any{"client": client})
				requestctx.Annotate(ctx, "rate_limited", true)
				httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests, retry later", http.StatusTooManyRequests).WithRetryAfter(decision.RetryAfter))
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey derives the limiter key from the remote address. chi's RealIP middleware
// runs earlier in the chain and rewrites RemoteAddr from proxy headers.
func ClientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
