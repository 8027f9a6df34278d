package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a Redis sliding-window limiter keyed by caller
type RateLimiter struct {
	client *redis.Client
	prefix string
	rps    int           // Advertised sustained rate
	limit  int           // Requests allowed per window
	window time.Duration // Window size
	log    *logger.Logger
}

// NewRateLimiter allows burst requests per second for each caller on the
// routes it guards. prefix separates the counters of different routes.
func NewRateLimiter(client *redis.Client, prefix string, rps, burst int, log *logger.Logger) *RateLimiter {
	if burst < rps {
		burst = rps
	}
	return &RateLimiter{
		client: client,
		prefix: prefix,
		rps:    rps,
		limit:  burst,
		window: time.Second,
		log:    log,
	}
}

// Middleware returns the rate limiting middleware. Callers are identified by
// token subject when authenticated, by client IP otherwise.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := GetSubject(c)
		if caller == "" {
			caller = c.ClientIP()
		}

		allowed, remaining, err := rl.checkLimit(c.Request.Context(), caller)
		if err != nil {
			// Fail open
			rl.log.Warningf("[%s] Rate limiter Redis error: %s", GetRequestID(c), err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.rps))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMITED",
				"message": "Too many requests. Please try again later.",
			})
			return
		}

		c.Next()
	}
}

// checkLimit records this request and counts the requests inside the window
func (rl *RateLimiter) checkLimit(ctx context.Context, caller string) (allowed bool, remaining int, err error) {
	now := time.Now().UnixMilli()
	windowStart := now - rl.window.Milliseconds()
	key := fmt.Sprintf("ratelimit:%s:%s", rl.prefix, caller)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, 2*rl.window)

	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(countCmd.Val())
	remaining = rl.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.limit, remaining, nil
}
