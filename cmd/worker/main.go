package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/bootstrap"
	"github.com/kirillkom/document-chat-assistant/internal/config"
	"github.com/kirillkom/document-chat-assistant/internal/observability/logging"
	"github.com/kirillkom/document-chat-assistant/internal/observability/metrics"
)

const service = "worker"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.NewJSONLogger(service, "info").Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	logger := logging.New(service, logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err == nil {
		err = cfg.Validate(config.RoleWorker)
	}
	if err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Role:     config.RoleWorker,
		Logger:   logger,
		QueueLag: func(lag time.Duration) { workerMetrics.ObserveQueueLag(service, lag) },
		Indexed:  func(_ string, chunks int) { workerMetrics.AddChunksIndexed(service, chunks) },
		CircuitState: func(operation string, open bool) {
			workerMetrics.ObserveCircuit(service, operation, open)
		},
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.WorkerTimeout)
		defer cancel()

		workerMetrics.StartDocument()
		started := time.Now()
		err := app.Processor.ProcessByID(processCtx, documentID)
		workerMetrics.FinishDocument(service, time.Since(started), err)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
