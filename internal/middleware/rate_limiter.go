package middleware

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"guestbook/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

//go:embed rate_limiter.lua
var luaScript string

var tokenBucket = redis.NewScript(luaScript)

// RateLimiterConfig holds rate limiter configuration
type RateLimiterConfig struct {
	Capacity   int     // Maximum number of tokens (burst)
	RefillRate float64 // Tokens refilled per second
}

// DefaultRateLimiterConfig suits credential endpoints: a burst of 5, then
// one attempt every 2 seconds.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		Capacity:   5,
		RefillRate: 0.5,
	}
}

func RateLimiterConfigFrom(cfg config.RateLimitConfig) *RateLimiterConfig {
	if cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return DefaultRateLimiterConfig()
	}
	return &RateLimiterConfig{
		Capacity:   cfg.Capacity,
		RefillRate: cfg.RefillRate,
	}
}

// RetryAfter is the time until one token is back in an empty bucket.
func (c *RateLimiterConfig) RetryAfter() time.Duration {
	return time.Duration(float64(time.Second) / c.RefillRate)
}

// RateLimiterMiddleware implements a per-client-IP token bucket in Redis. It
// fails open when Redis cannot be reached.
func RateLimiterMiddleware(redisClient *redis.Client, config *RateLimiterConfig) (gin.HandlerFunc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tokenBucket.Load(ctx, redisClient).Err(); err != nil {
		return nil, fmt.Errorf("load rate limiter script: %w", err)
	}

	retryAfter := strconv.Itoa(int(math.Ceil(config.RetryAfter().Seconds())))

	return func(c *gin.Context) {
		key := ClientRateLimiterKey(c.ClientIP())
		now := float64(time.Now().UnixMicro()) / 1e6

		allowed, err := tokenBucket.Run(c.Request.Context(), redisClient, []string{key},
			config.Capacity,
			config.RefillRate,
			now,
		).Int64()
		if err != nil {
			logrus.WithError(err).Error("Failed to execute rate limiter Lua script")
			c.Next()
			return
		}

		if allowed == 0 {
			logrus.WithField("client_ip", c.ClientIP()).Warn("Rate limit exceeded")
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": fmt.Sprintf("%.1f seconds", config.RetryAfter().Seconds()),
			})
			return
		}

		c.Next()
	}, nil
}

// ClientRateLimiterKey builds the bucket key for one client address.
func ClientRateLimiterKey(clientIP string) string {
	return fmt.Sprintf("rate_limiter:ip:%s", clientIP)
}
