package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/hrygo/likewise/plugin/ai/metrics"
	apierrors "github.com/hrygo/likewise/server/internal/errors"
)

// RateLimiter provides per-client rate limiting.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*clientLimiter
	every  rate.Limit
	burst  int
	idle   time.Duration
	now    func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per key
// with the given burst. Keys idle for ten minutes are forgotten.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limits: make(map[string]*clientLimiter),
		every:  rate.Limit(rps),
		burst:  burst,
		idle:   10 * time.Minute,
		now:    time.Now,
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if cl, ok := rl.limits[key]; ok {
		cl.lastSeen = now
		return cl.limiter
	}

	// 惰性清理长时间未访问的客户端
	for k, cl := range rl.limits {
		if now.Sub(cl.lastSeen) > rl.idle {
			delete(rl.limits, k)
		}
	}

	limiter := rate.NewLimiter(rl.every, rl.burst)
	rl.limits[key] = &clientLimiter{limiter: limiter, lastSeen: now}
	return limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Wait waits for a request to be allowed.
// Returns error if the context is cancelled or rate limit exceeded.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.getLimiter(key).Wait(ctx)
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				metrics.RateLimitRejections.Inc()
				return c.JSON(http.StatusTooManyRequests, apierrors.RateLimitExceeded("too many requests"))
			}
			return next(c)
		}
	}
}
