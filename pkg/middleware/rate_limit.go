package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiterConfig configures a fixed-window limiter keyed per client.
type RateLimiterConfig struct {
	RedisClient *redis.Client
	Limit       int
	Window      time.Duration
	KeyPrefix   string
	Extractor   func(c *gin.Context) string
}

// NewRateLimiter counts requests per window in redis. When redis is
// unreachable requests pass through.
func NewRateLimiter(cfg RateLimiterConfig) gin.HandlerFunc {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "franklin:rl:"
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Extractor == nil {
		cfg.Extractor = func(c *gin.Context) string { return c.ClientIP() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := cfg.Extractor(c)
		if id == "" {
			id = "anonymous"
		}
		key := cfg.KeyPrefix + id

		count, err := cfg.RedisClient.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			cfg.RedisClient.Expire(ctx, key, cfg.Window)
		}

		ttl, _ := cfg.RedisClient.TTL(ctx, key).Result()
		reset := int(ttl.Seconds())
		if reset < 0 {
			reset = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Reset", strconv.Itoa(reset))

		if count > int64(cfg.Limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate limit exceeded",
				"rate_limit":        cfg.Limit,
				"rate_limit_window": cfg.Window.String(),
				"retry_after_sec":   reset,
			})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(cfg.Limit-int(count)))
		c.Next()
	}
}
