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
	sdkauth "github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/oauthex"

	"github.com/maraichr/datasetops/internal/api"
	"github.com/maraichr/datasetops/internal/auth"
	"github.com/maraichr/datasetops/internal/config"
	"github.com/maraichr/datasetops/internal/delegation"
	"github.com/maraichr/datasetops/internal/execution"
	"github.com/maraichr/datasetops/internal/invoke"
	"github.com/maraichr/datasetops/internal/mcp"
	"github.com/maraichr/datasetops/internal/mcp/tools"
	"github.com/maraichr/datasetops/internal/metrics"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/internal/operator/builtin"
	"github.com/maraichr/datasetops/internal/pipeline"
	"github.com/maraichr/datasetops/internal/store"
	"github.com/maraichr/datasetops/internal/store/postgres"
	vk "github.com/maraichr/datasetops/internal/store/valkey"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).
			Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// stdout carries the protocol in stdio mode.
	out := os.Stdout
	if cfg.MCP.Transport == "stdio" {
		out = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("connected to database")

	s := store.New(pool)

	// Export backend (optional)
	blobs, err := store.OpenExportBackend(ctx, cfg)
	if err != nil {
		logger.Error("failed to open export backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if blobs == nil {
		logger.Warn("no export backend configured, export_samples disabled")
	}

	registry := operator.NewMemoryRegistry()
	if err := builtin.Register(registry, s, blobs, cfg.Export.Prefix); err != nil {
		logger.Error("failed to register builtin operators", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Delegation queue (optional)
	var queue delegation.Queue
	if cfg.Valkey.Enabled {
		vkClient, err := vk.NewClient(ctx, cfg.Valkey)
		if err != nil {
			logger.Warn("valkey unavailable, delegated execution disabled", slog.String("error", err.Error()))
		} else {
			defer vkClient.Close()
			queue = delegation.NewValkeyQueue(vkClient, logger)
			logger.Info("connected to valkey", slog.String("stream", delegation.StreamName))
		}
	}

	collector := metrics.NewCollector()
	contexts := execution.NewStore(s, logger)
	invoker := invoke.New(contexts, registry, queue, cfg.Operators.InstallTemplate, logger)
	invoker.SetMetrics(collector)
	table := tools.NewTable(tools.Deps{
		Store:    contexts,
		Catalog:  s,
		Registry: registry,
		Invoker:  invoker,
		Runner:   pipeline.NewRunner(contexts, registry, invoker, logger),
		Queue:    queue,
		Metrics:  collector,
		Logger:   logger,
	})
	server := mcp.NewServer(cfg.MCP, table, logger)

	if cfg.MCP.Transport == "stdio" {
		if err := server.RunStdio(ctx); err != nil && ctx.Err() == nil {
			logger.Error("MCP stdio server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("MCP server stopped")
		return
	}

	deps := api.RouterDeps{DB: pool, Tools: table, Metrics: collector.Handler()}
	sdkHandler := server.HTTPHandler()
	if cfg.Auth.Enabled {
		if cfg.Auth.IssuerURL == "" {
			logger.Error("AUTH_ENABLED=true but AUTH_ISSUER_URL is empty")
			os.Exit(1)
		}
		verifier, err := auth.NewVerifier(ctx, cfg.Auth.IssuerURL, cfg.Auth.PublicIssuer, cfg.Auth.Audience)
		if err != nil {
			logger.Error("failed to init OIDC verifier", slog.String("error", err.Error()))
			os.Exit(1)
		}

		resourceMetadataURL := ""
		if cfg.MCP.BaseURL != "" {
			resourceMetadataURL = cfg.MCP.BaseURL + "/.well-known/oauth-protected-resource"
			authServerURL := cfg.Auth.PublicIssuer
			if authServerURL == "" {
				authServerURL = cfg.Auth.IssuerURL
			}
			deps.ResourceMetadata = sdkauth.ProtectedResourceMetadataHandler(&oauthex.ProtectedResourceMetadata{
				Resource:               cfg.MCP.BaseURL,
				AuthorizationServers:   []string{authServerURL},
				ScopesSupported:        []string{"openid", auth.ScopeRead, auth.ScopeWrite},
				BearerMethodsSupported: []string{"header"},
				ResourceName:           "datasetops MCP server",
			})
			logger.Info("RFC 9728 metadata endpoint enabled", slog.String("url", resourceMetadataURL))
		}

		deps.MCP = sdkauth.RequireBearerToken(auth.NewMCPTokenVerifier(verifier), &sdkauth.RequireBearerTokenOptions{
			ResourceMetadataURL: resourceMetadataURL,
		})(sdkHandler)
		deps.Authenticate = auth.RequireAuth(verifier, logger)
		logger.Info("OIDC auth enabled", slog.String("issuer", cfg.Auth.IssuerURL))
	} else {
		dev := auth.DevModeMiddleware(logger)
		deps.MCP = dev(sdkHandler)
		deps.Authenticate = dev
	}

	httpServer := &http.Server{Addr: cfg.MCP.Addr, Handler: api.NewRouter(logger, deps)}

	go func() {
		logger.Info("MCP server listening", slog.String("addr", cfg.MCP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("MCP HTTP server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("MCP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.MCP.Shutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("MCP HTTP shutdown", slog.String("error", err.Error()))
	}
	logger.Info("MCP server stopped")
}
