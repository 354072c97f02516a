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

	httpadapter "github.com/kirillkom/document-chat-assistant/internal/adapters/http"
	mcpadapter "github.com/kirillkom/document-chat-assistant/internal/adapters/mcp"
	"github.com/kirillkom/document-chat-assistant/internal/bootstrap"
	"github.com/kirillkom/document-chat-assistant/internal/config"
	"github.com/kirillkom/document-chat-assistant/internal/observability/logging"
	"github.com/kirillkom/document-chat-assistant/internal/observability/metrics"
)

const service = "api"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.NewJSONLogger(service, "info").Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	logger := logging.New(service, logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err == nil {
		err = cfg.Validate(config.RoleAPI)
	}
	if err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Role:     config.RoleAPI,
		Logger:   logger,
		Observer: httpMetrics.Pipeline(service),
		CircuitState: func(operation string, open bool) {
			httpMetrics.ObserveCircuit(service, operation, open)
		},
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingestor:    app.Ingestor,
		Documents:   app.Documents,
		Chat:        app.Chat,
		History:     app.History,
		Diagnostics: app.Diagnostics,
		Sessions:    app.Sessions,
		MCP:         mcpadapter.NewServer(app.Searcher, app.Documents, logger).Handler(),
		Metrics:     httpMetrics,
	}, logger)
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Answers stream for up to the completion timeout.
		WriteTimeout: cfg.CompletionTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
