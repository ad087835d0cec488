package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/maraichr/datasetops/internal/config"
	"github.com/maraichr/datasetops/internal/delegation"
	"github.com/maraichr/datasetops/internal/execution"
	"github.com/maraichr/datasetops/internal/invoke"
	"github.com/maraichr/datasetops/internal/metrics"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/internal/operator/builtin"
	"github.com/maraichr/datasetops/internal/pipeline"
	"github.com/maraichr/datasetops/internal/store"
	"github.com/maraichr/datasetops/internal/store/postgres"
	vk "github.com/maraichr/datasetops/internal/store/valkey"
	"github.com/maraichr/datasetops/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	s := store.New(pool)

	// Valkey is required: the worker exists to drain the delegation stream.
	vkClient, err := vk.NewClient(ctx, cfg.Valkey)
	if err != nil {
		logger.Error("failed to connect to valkey", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey")

	blobs, err := store.OpenExportBackend(ctx, cfg)
	if err != nil {
		logger.Error("failed to open export backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := operator.NewMemoryRegistry()
	if err := builtin.Register(registry, s, blobs, cfg.Export.Prefix); err != nil {
		logger.Error("failed to register builtin operators", slog.String("error", err.Error()))
		os.Exit(1)
	}

	queue := delegation.NewValkeyQueue(vkClient, logger)

	// Workers run against the request captured at submission time, so the
	// context store here is never set.
	contexts := execution.NewStore(s, logger)
	invoker := invoke.New(contexts, registry, nil, cfg.Operators.InstallTemplate, logger)
	executor := worker.NewExecutor(invoker, pipeline.NewRunner(contexts, registry, invoker, logger), queue, logger)

	if cfg.Worker.MetricsAddr != "" {
		collector := metrics.NewCollector()
		invoker.SetMetrics(collector)
		executor.SetMetrics(collector)

		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsServer := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics listening", slog.String("addr", cfg.Worker.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server error", slog.String("error", err.Error()))
			}
		}()
		defer metricsServer.Close()
	}

	consumer := delegation.NewConsumer(vkClient, queue, cfg.Worker.ConsumerID, logger)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Error("failed to ensure consumer group", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("starting worker, consuming from stream",
		slog.String("stream", delegation.StreamName),
		slog.String("consumer", cfg.Worker.ConsumerID))
	if err := consumer.Consume(ctx, executor.Handle); err != nil && ctx.Err() == nil {
		logger.Error("consumer error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
