package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"guestbook/internal/config"
	"guestbook/internal/db"
	"guestbook/internal/entry"
	"guestbook/internal/logging"
	"guestbook/internal/observability"
	"guestbook/internal/queue"
	"guestbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logging.Setup(cfg.Log)

	if !cfg.RabbitMQ.Enabled() {
		logrus.Fatal("RABBITMQ_URL is required to run the event worker")
	}

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

	conn, err := queue.SetupRabbitMQ(&cfg.RabbitMQ)
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

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	logrus.Info("Metrics initialized")

	// Start metrics HTTP server for Prometheus scraping
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.App.WorkerMetrics, Handler: mux}
	go func() {
		logrus.Infof("Worker metrics server started on %s", cfg.App.WorkerMetrics)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start metrics server")
		}
	}()

	repo := entry.NewEventRepository()

	var wg sync.WaitGroup
	for i := 1; i <= cfg.App.WorkerCount; i++ {
		w := worker.NewWorker(i, cfg.RabbitMQ.Queue, database, repo, metrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Start(ctx, conn); err != nil {
				logrus.WithError(err).Error("Worker exited")
				stop()
			}
		}()
	}

	<-ctx.Done()
	logrus.Info("Shutting down workers...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Metrics server forced to shut down")
	}
	logrus.Info("Workers stopped")
}
