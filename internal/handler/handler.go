package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"guestbook/internal/account"
	"guestbook/internal/cache"
	"guestbook/internal/config"
	"guestbook/internal/entry"
	"guestbook/internal/middleware"
	"guestbook/internal/observability"
	"guestbook/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// SetupHandler initializes all dependencies and routes. redisClient and conn
// may be nil, which disables the list cache, the auth rate limiter and event
// publishing.
func SetupHandler(db *sql.DB, conn *amqp.Connection, redisClient *redis.Client, cfg *config.Config, metrics *observability.Metrics) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.PrometheusMiddleware(metrics))

	// ClientIP keys the rate limiter, so forwarding headers are not trusted.
	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}

	var listCache entry.ListCache
	var authLimiter []gin.HandlerFunc
	if redisClient != nil {
		listCache = cache.NewEntryCache(redisClient, cfg.Cache.EntryListTTL)

		limiter, err := middleware.RateLimiterMiddleware(redisClient, middleware.RateLimiterConfigFrom(cfg.RateLimit))
		if err != nil {
			return nil, err
		}
		authLimiter = append(authLimiter, limiter)
	} else {
		logrus.Warn("Redis disabled: entry list cache and auth rate limiting are off")
	}

	var publisher entry.EventPublisher
	if conn != nil {
		publisher = queue.NewPublisher(conn, cfg.RabbitMQ.Queue, metrics)
	} else {
		logrus.Warn("RabbitMQ disabled: entry events are not published")
	}

	// Initialize repositories
	accountRepo := account.NewAccountRepository()
	entryRepo := entry.NewEntryRepository()

	// Initialize services
	accountService := account.NewAccountService(accountRepo, db, metrics)
	entryService := entry.NewEntryService(entryRepo, db, listCache, publisher, metrics)

	// Initialize controllers
	accountController := account.NewAccountController(accountService)
	entryController := entry.NewEntryController(entryService)

	setupRoutes(r, db, accountController, entryController, authLimiter)

	return r, nil
}

// setupRoutes configures all application routes
func setupRoutes(r *gin.Engine, db *sql.DB, accountCtrl *account.AccountController, entryCtrl *entry.EntryController, authLimiter []gin.HandlerFunc) {
	r.GET("/healthz", healthz(db))

	guestbook := r.Group("/guestbook")
	{
		accountCtrl.RegisterRoutes(guestbook, authLimiter...)
		entryCtrl.RegisterRoutes(guestbook)
	}
}

func healthz(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logrus.WithError(err).Warn("Health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
