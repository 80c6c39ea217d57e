package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/errorcue/errorcue/internal/api/response"
	"github.com/errorcue/errorcue/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = 60 * time.Second
)

// RateLimit provides fixed-window rate limiting via Redis, keyed by client address.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	onLimited      func()
	now            func() time.Time
}

// NewRateLimit creates a new RateLimit middleware. onLimited may be nil.
func NewRateLimit(c cache.Cache, requestsPerMin int, onLimited func()) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	if onLimited == nil {
		onLimited = func() {}
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, onLimited: onLimited, now: time.Now}
}

// Limit rejects a client's requests beyond the per-minute budget. Without a
// cache, or when the cache fails, requests pass through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cache == nil || !rl.cache.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		window := now.Unix() / int64(rateWindow.Seconds())
		key := cache.RateLimitKey(clientAddr(r), window)
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, rateWindow)
		if err != nil {
			// On Redis error, allow the request (fail open)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := (window + 1) * int64(rateWindow.Seconds())
		retryAfter := resetTime - now.Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			rl.onLimited()
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientAddr is the connection's host. Forwarding headers are honoured only
// when the router rewrites RemoteAddr behind a trusted proxy.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
