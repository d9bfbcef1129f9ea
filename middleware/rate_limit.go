package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/betareaderbr/betareader/config"
	"github.com/betareaderbr/betareader/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// limiterSet holds one token bucket per caller.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
}

func newLimiterSet(perMinute int) *limiterSet {
	perMinute = max(perMinute, 1)
	return &limiterSet{
		limiters: map[string]*rateLimiter{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
	}
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, l := range s.limiters {
		if now.After(l.expires) {
			delete(s.limiters, k)
		}
	}

	l, ok := s.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = l
	}
	l.expires = now.Add(5 * time.Minute)
	return l.limiter.AllowN(now, 1)
}

// RateLimitMiddleware applies a token bucket per authenticated reader, or per
// client IP for anonymous requests. Each call gets its own bucket set.
func RateLimitMiddleware() gin.HandlerFunc {
	return RateLimitPerMinute(config.Get().RateLimitPerMinute)
}

// RateLimitPerMinute is RateLimitMiddleware with an explicit rate.
func RateLimitPerMinute(perMinute int) gin.HandlerFunc {
	set := newLimiterSet(perMinute)
	return func(ctx *gin.Context) {
		key := "ip:" + ctx.ClientIP()
		if v, ok := ctx.Get(ContextUserIDKey); ok {
			if id, ok := v.(uint); ok && id > 0 {
				key = "user:" + strconv.FormatUint(uint64(id), 10)
			}
		}

		if !set.allow(key, time.Now()) {
			utils.Error(ctx, 429, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}
