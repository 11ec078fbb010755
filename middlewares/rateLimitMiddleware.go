package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	client func() *redis.Client
	limit  int64
	window time.Duration
}

// NewRateLimiter counts requests per client IP in fixed windows. client is
// resolved per request so the limiter can be installed before Redis connects;
// while it returns nil requests are let through.
func NewRateLimiter(client func() *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rdb := rl.client()
		if rdb == nil {
			c.Next()
			return
		}
		key := "ratelimit:" + c.ClientIP()

		count, err := rdb.Incr(c.Request.Context(), key).Result()
		if err != nil {
			// Redis trouble must not take the POS down.
			_ = c.Error(err)
			c.Next()
			return
		}
		if count == 1 {
			if err := rdb.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
				_ = c.Error(err)
			}
		}

		if count > rl.limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
			})
			return
		}

		c.Next()
	}
}
