package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"guestbook/internal/cache"
	"guestbook/internal/config"
	"guestbook/internal/db"
	"guestbook/internal/handler"
	"guestbook/internal/logging"
	"guestbook/internal/observability"
	"guestbook/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logging.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, &cfg.DB)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close database connection")
		}
	}()

	if err := db.Migrate(ctx, database); err != nil {
		logrus.WithError(err).Fatal("Failed to apply migrations")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = cache.SetupRedis(&cfg.Redis)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close redis connection")
			}
		}()
	}

	var conn *amqp.Connection
	if cfg.RabbitMQ.Enabled() {
		conn, err = queue.SetupRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to RabbitMQ")
		}
		defer func() {
			if err := conn.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close RabbitMQ connection")
			}
		}()

		if err := queue.EnsureQueue(conn, cfg.RabbitMQ.Queue); err != nil {
			logrus.WithError(err).Fatal("Failed to declare RabbitMQ queue")
		}
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	logrus.Info("Metrics initialized")

	r, err := handler.SetupHandler(database, conn, rdb, cfg, metrics)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up routes")
	}

	// Expose /metrics endpoint for Prometheus to scrape
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	logrus.Info("Metrics endpoint exposed at /metrics")

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	go func() {
		logrus.Infof("Starting %s on %s", cfg.App.Name, cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shut down")
	}
	logrus.Info("Server stopped")
}
