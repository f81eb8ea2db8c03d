package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/pkg/httputil"
)

// RateLimiter counts requests per key in a one minute window
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error)
}

// RateLimitMiddleware limits requests per caller
type RateLimitMiddleware struct {
	limiter RateLimiter
	limit   int
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter RateLimiter, limit int, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		logger:  logger,
	}
}

// Handler returns the middleware handler
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, count, err := m.limiter.CheckRateLimit(r.Context(), m.key(r), m.limit)
		if err != nil {
			// fail open
			m.logger.Warn("rate limit check failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := m.limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			httputil.ErrorFromDomain(w, domain.ErrRateLimited(time.Minute))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// key prefers the caller identity and falls back to the client address
func (m *RateLimitMiddleware) key(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok && userID != AnonymousUser {
		return "user:" + userID
	}
	return "ip:" + r.RemoteAddr
}
