package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"guestbook/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client for testing
// Make sure Redis is running on localhost:6379
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     "localhost:6379",
		Password: "",
		DB:       1, // Use DB 1 for tests (not default DB 0)
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available, skipping test")
	}

	client.FlushDB(ctx)
	t.Cleanup(func() { client.Close() })

	return client
}

// setupTestRouter creates a test Gin router with rate limiter
func setupTestRouter(t *testing.T, redisClient *redis.Client, config *RateLimiterConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	limiter, err := RateLimiterMiddleware(redisClient, config)
	require.NoError(t, err)
	router.Use(limiter)

	router.POST("/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	return router
}

func requestFrom(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowRequestsUnderLimit(t *testing.T) {
	redisClient := setupTestRedis(t)
	router := setupTestRouter(t, redisClient, &RateLimiterConfig{Capacity: 5, RefillRate: 10.0})

	for i := 0; i < 5; i++ {
		w := requestFrom(router, "192.0.2.1:1234")
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}
}

func TestRateLimiter_DenyRequestsOverLimit(t *testing.T) {
	redisClient := setupTestRedis(t)
	router := setupTestRouter(t, redisClient, &RateLimiterConfig{Capacity: 3, RefillRate: 0.5})

	for i := 0; i < 3; i++ {
		w := requestFrom(router, "192.0.2.1:1234")
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}

	w := requestFrom(router, "192.0.2.1:1234")

	assert.Equal(t, http.StatusTooManyRequests, w.Code, "Request should be rate limited")
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	redisClient := setupTestRedis(t)
	router := setupTestRouter(t, redisClient, &RateLimiterConfig{Capacity: 2, RefillRate: 2.0})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, requestFrom(router, "192.0.2.1:1234").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, requestFrom(router, "192.0.2.1:1234").Code)

	// 2 tokens/sec, so one second refills the bucket
	time.Sleep(1 * time.Second)

	assert.Equal(t, http.StatusOK, requestFrom(router, "192.0.2.1:1234").Code, "Request should succeed after token refill")
}

func TestRateLimiter_DifferentClients(t *testing.T) {
	redisClient := setupTestRedis(t)
	router := setupTestRouter(t, redisClient, &RateLimiterConfig{Capacity: 2, RefillRate: 0.1})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, requestFrom(router, "192.0.2.1:1234").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, requestFrom(router, "192.0.2.1:5678").Code)

	assert.Equal(t, http.StatusOK, requestFrom(router, "198.51.100.7:1234").Code,
		"Second client should not be affected by the first client's bucket")
}

func TestRateLimiter_BucketKeyExpires(t *testing.T) {
	redisClient := setupTestRedis(t)
	router := setupTestRouter(t, redisClient, &RateLimiterConfig{Capacity: 4, RefillRate: 2.0})

	requestFrom(router, "192.0.2.1:1234")

	ttl := redisClient.TTL(context.Background(), ClientRateLimiterKey("192.0.2.1")).Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 4*time.Second)
}

func TestRateLimiterMiddleware_RedisUnavailable(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:        "localhost:9999", // Non-existent Redis
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer redisClient.Close()

	limiter, err := RateLimiterMiddleware(redisClient, DefaultRateLimiterConfig())

	assert.Error(t, err)
	assert.Nil(t, limiter)
}

func TestClientRateLimiterKey(t *testing.T) {
	tests := []struct {
		name     string
		clientIP string
		expected string
	}{
		{"IPv4", "192.0.2.1", "rate_limiter:ip:192.0.2.1"},
		{"IPv6", "2001:db8::1", "rate_limiter:ip:2001:db8::1"},
		{"empty", "", "rate_limiter:ip:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClientRateLimiterKey(tt.clientIP))
		})
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 5, cfg.Capacity)
	assert.Equal(t, 0.5, cfg.RefillRate)
	assert.Equal(t, 2*time.Second, cfg.RetryAfter())
}

func TestRateLimiterConfigFrom(t *testing.T) {
	cfg := RateLimiterConfigFrom(config.RateLimitConfig{Capacity: 10, RefillRate: 4})
	assert.Equal(t, &RateLimiterConfig{Capacity: 10, RefillRate: 4}, cfg)

	assert.Equal(t, DefaultRateLimiterConfig(), RateLimiterConfigFrom(config.RateLimitConfig{}))
}

// Benchmark rate limiter performance
func BenchmarkRateLimiter(b *testing.B) {
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		b.Skip("Redis not available, skipping benchmark")
	}
	redisClient.FlushDB(ctx)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	limiter, err := RateLimiterMiddleware(redisClient, &RateLimiterConfig{Capacity: 1000, RefillRate: 100.0})
	if err != nil {
		b.Fatal(err)
	}
	router.Use(limiter)
	router.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		requestFrom(router, "192.0.2.1:1234")
	}
}
