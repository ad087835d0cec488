package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apihandler "github.com/maraichr/datasetops/internal/api/handler"
	"github.com/maraichr/datasetops/internal/auth"
	"github.com/maraichr/datasetops/internal/mcp/tools"
)

// RouterDeps holds the pieces the HTTP surface is assembled from. Only
// Tools is required.
type RouterDeps struct {
	DB    apihandler.Pinger
	Tools *tools.Table

	// MCP is the Streamable HTTP handler, already wrapped with bearer auth.
	MCP http.Handler
	// Metrics serves the Prometheus exposition at /metrics.
	Metrics http.Handler
	// ResourceMetadata serves RFC 9728 protected resource metadata.
	ResourceMetadata http.Handler
	// Authenticate injects a Principal for /api/v1 routes. Nil leaves the
	// routes unauthenticated.
	Authenticate func(http.Handler) http.Handler
}

func NewRouter(logger *slog.Logger, deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	health := apihandler.NewHealthHandler(deps.DB)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	if deps.ResourceMetadata != nil {
		r.Handle("/.well-known/oauth-protected-resource", deps.ResourceMetadata)
	}
	if deps.MCP != nil {
		r.Handle("/mcp", deps.MCP)
	}

	toolsHandler := apihandler.NewToolsHandler(logger, deps.Tools)
	r.Route("/api/v1", func(r chi.Router) {
		if deps.Authenticate != nil {
			r.Use(deps.Authenticate)
			r.Use(auth.RequireScope(auth.ScopeRead, auth.ScopeWrite))
		}
		r.Get("/tools", toolsHandler.List)
		r.Post("/tools/{name}", toolsHandler.Call)
	})

	return r
}
