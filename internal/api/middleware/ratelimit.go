package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Rrens/event-chat/internal/api/response"
	"github.com/Rrens/event-chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Limiter counts requests per key
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, reset time.Time, err error)
}

// RateLimitMiddleware handles rate limiting. A nil limiter lets everything through.
type RateLimitMiddleware struct {
	limiter Limiter
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// ByIP limits requests per client address. Put it after chi's RealIP.
func (m *RateLimitMiddleware) ByIP(next http.Handler) http.Handler {
	return m.limit(next, func(r *http.Request) (string, bool) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr, true
		}
		return host, true
	})
}

// ByUser limits requests per authenticated attendee. Put it after Authenticate.
func (m *RateLimitMiddleware) ByUser(next http.Handler) http.Handler {
	return m.limit(next, func(r *http.Request) (string, bool) {
		userID, ok := GetUserID(r.Context())
		if !ok {
			return "", false
		}
		return userID.String(), true
	})
}

func (m *RateLimitMiddleware) limit(next http.Handler, keyOf func(*http.Request) (string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key, ok := keyOf(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetTime, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			// Fail open: losing the limiter must not take chat down
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", resetTime.UTC().Format(time.RFC3339))

		if !allowed {
			retryAfter := int(time.Until(resetTime).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			response.FromError(w, r, domain.ErrRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}
