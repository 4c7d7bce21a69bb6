package handlers

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/vidfriends/streamer/internal/logging"
)

const rateLimitMessage = "Too many requests, please try again later."

// RateLimit rejects clients that exceed the limiter's window with a 429 and a
// Retry-After equal to the window. Limiter errors let the request through.
// X-Forwarded-For is only believed when the peer is one of the trusted proxies.
func RateLimit(limiter RateLimiter, window time.Duration, trusted []netip.Prefix) func(http.Handler) http.Handler {
	retryAfter := int(math.Ceil(window.Seconds()))
	if retryAfter <= 0 {
		retryAfter = 60
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := clientIP(r, trusted)
			allowed, err := limiter.Allow(ctx, ip)
			if err != nil {
				logging.FromContext(ctx).Warn("rate limiter unavailable, allowing request", "client", ip, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respondJSON(ctx, w, http.StatusTooManyRequests, errorBody{Error: rateLimitMessage, RetryAfter: retryAfter})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys the request by its socket address. Behind a trusted proxy it
// walks X-Forwarded-For from the right and returns the first hop the proxies
// did not add themselves.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		remote = host
	}
	if !isTrustedProxy(remote, trusted) {
		return remote
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrustedProxy(hop, trusted) {
			return hop
		}
	}
	return remote
}

func isTrustedProxy(host string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
