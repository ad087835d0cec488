package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maraichr/datasetops/internal/auth"
	"github.com/maraichr/datasetops/internal/mcp"
	"github.com/maraichr/datasetops/internal/mcp/tools"
	"github.com/maraichr/datasetops/pkg/apierr"
)

// ToolsHandler mirrors the MCP tool set over plain JSON HTTP.
type ToolsHandler struct {
	logger *slog.Logger
	table  *tools.Table
}

func NewToolsHandler(logger *slog.Logger, table *tools.Table) *ToolsHandler {
	return &ToolsHandler{logger: logger, table: table}
}

func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	defs := h.table.Definitions()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(defs), "tools": defs})
}

// Call invokes a tool and writes its envelope. The status is 200 whenever
// the tool ran, successful or not; unknown tools get 404.
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.table.Has(name) {
		writeJSON(w, http.StatusNotFound, mcp.Fail(apierr.UnknownTool(name)))
		return
	}

	if p, ok := auth.PrincipalFrom(r.Context()); ok && !tools.Name(name).ReadOnly() {
		if !p.IsAdmin() && !p.HasScope(auth.ScopeWrite) {
			writeAPIError(w, h.logger, apierr.Forbidden("Tool '"+name+"' requires the "+auth.ScopeWrite+" scope"))
			return
		}
	}

	args, apiErr := readArguments(r)
	if apiErr != nil {
		writeAPIError(w, h.logger, apiErr)
		return
	}

	writeJSON(w, http.StatusOK, h.table.Call(r.Context(), name, args))
}
