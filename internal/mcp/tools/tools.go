// Package tools defines the datasetops tool set: a closed enum of tool
// names, typed parameters per tool and a dispatch table shared by the MCP
// server and the JSON HTTP mirror.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maraichr/datasetops/internal/auth"
	"github.com/maraichr/datasetops/internal/catalog"
	"github.com/maraichr/datasetops/internal/delegation"
	"github.com/maraichr/datasetops/internal/execution"
	"github.com/maraichr/datasetops/internal/invoke"
	"github.com/maraichr/datasetops/internal/mcp"
	"github.com/maraichr/datasetops/internal/metrics"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/internal/pipeline"
	"github.com/maraichr/datasetops/pkg/apierr"
)

// Name identifies a tool.
type Name string

const (
	SetContext              Name = "set_context"
	GetContext              Name = "get_context"
	ClearContext            Name = "clear_context"
	ListOperators           Name = "list_operators"
	GetOperatorSchema       Name = "get_operator_schema"
	ExecuteOperator         Name = "execute_operator"
	ExecutePipeline         Name = "execute_pipeline"
	ListDelegatedOperations Name = "list_delegated_operations"
	ListDatasets            Name = "list_datasets"
	LoadDataset             Name = "load_dataset"
	DatasetSummary          Name = "dataset_summary"
)

// Names lists every tool in presentation order.
var Names = []Name{
	SetContext, GetContext, ClearContext,
	ListOperators, GetOperatorSchema, ExecuteOperator,
	ExecutePipeline, ListDelegatedOperations,
	ListDatasets, LoadDataset, DatasetSummary,
}

// ReadOnly reports whether the tool leaves the execution context, datasets
// and the delegation queue untouched.
func (n Name) ReadOnly() bool {
	switch n {
	case GetContext, ListOperators, GetOperatorSchema, ListDelegatedOperations, ListDatasets, LoadDataset, DatasetSummary:
		return true
	}
	return false
}

// Deps are the collaborators the tools act on. Queue may be nil when no
// delegation backend is configured, Metrics when nothing scrapes them.
type Deps struct {
	Store    *execution.Store
	Catalog  catalog.Catalog
	Registry operator.Registry
	Invoker  *invoke.Invoker
	Runner   *pipeline.Runner
	Queue    delegation.Queue
	Metrics  *metrics.Collector
	Logger   *slog.Logger
}

// Definition describes a tool for discovery endpoints.
type Definition struct {
	Name        Name               `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
}

type entry struct {
	def      Definition
	call     func(ctx context.Context, raw json.RawMessage) mcp.Envelope
	register func(s *sdkmcp.Server)
}

// Table maps every Name to its handler.
type Table struct {
	entries map[Name]entry
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewTable builds the dispatch table. It panics if a Name has no handler.
func NewTable(d Deps) *Table {
	t := &Table{entries: make(map[Name]entry, len(Names)), metrics: d.Metrics, logger: d.Logger}
	h := &handlers{Deps: d}

	add(t, SetContext, "Set the execution context (dataset, view stages, selection) that subsequent operator and pipeline calls act on. Replaces any existing context. The dataset must exist.", h.setContext)
	add(t, GetContext, "Get a summary of the current execution context, or context_set=false when none is set.", h.getContext)
	add(t, ClearContext, "Clear the execution context. Safe to call when no context is set.", h.clearContext)
	add(t, ListOperators, "List available operators. Filter by builtin_only (true: builtin, false: custom, omitted: all) and operator_type (operator or panel).", h.listOperators)
	add(t, GetOperatorSchema, "Get an operator's input schema resolved against the current execution context. Requires set_context first.", h.getOperatorSchema)
	add(t, ExecuteOperator, "Execute an operator with the current execution context. WORKFLOW: (1) list_operators, (2) get_operator_schema, (3) execute_operator. Set delegate=true to queue long-running work for a background worker and monitor it with list_delegated_operations.", h.executeOperator)
	add(t, ExecutePipeline, "Execute a multi-stage operator pipeline. Stages run sequentially sharing the execution context. After a failure, later stages are skipped unless always_run=true. Set delegate=true to queue the whole pipeline as one background operation.", h.executePipeline)
	add(t, ListDelegatedOperations, "List delegated operations, newest first. Filter by run_state (scheduled, queued, running, completed, failed), dataset_name and operator.", h.listDelegatedOperations)
	add(t, ListDatasets, "List all datasets with their media type and sample count.", h.listDatasets)
	add(t, LoadDataset, "Describe one dataset: media type, sample count, tags and info.", h.loadDataset)
	add(t, DatasetSummary, "Summarize one dataset: its description plus stats (total samples, samples per dataset tag) and value counts of sample tags.", h.datasetSummary)

	for _, n := range Names {
		if _, ok := t.entries[n]; !ok {
			panic(fmt.Sprintf("tools: no handler for %s", n))
		}
	}
	return t
}

// add registers a typed handler under name.
func add[P any](t *Table, name Name, description string, fn func(context.Context, P) (any, error)) {
	schema, err := jsonschema.For[P](nil)
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %s: %v", name, err))
	}
	relax(schema)
	def := Definition{Name: name, Description: description, InputSchema: schema}

	run := func(ctx context.Context, p P) mcp.Envelope {
		data, err := fn(ctx, p)
		t.metrics.ObserveTool(string(name), err)
		if err != nil {
			attrs := []any{slog.String("tool", string(name)), slog.String("error", err.Error())}
			if pr, ok := auth.PrincipalFrom(ctx); ok {
				attrs = append(attrs, slog.String("caller", pr.Sub))
			}
			t.logger.Warn("tool call failed", attrs...)
		}
		return mcp.From(data, err)
	}

	t.entries[name] = entry{
		def: def,
		call: func(ctx context.Context, raw json.RawMessage) mcp.Envelope {
			var p P
			if len(raw) > 0 && string(raw) != "null" {
				if err := json.Unmarshal(raw, &p); err != nil {
					return mcp.Fail(apierr.InvalidArguments("Invalid arguments: " + err.Error()))
				}
			}
			return run(ctx, p)
		},
		register: func(s *sdkmcp.Server) {
			tool := &sdkmcp.Tool{
				Name:        string(name),
				Description: description,
				InputSchema: schema,
				Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: name.ReadOnly()},
			}
			sdkmcp.AddTool(s, tool,
				func(ctx context.Context, _ *sdkmcp.CallToolRequest, p P) (*sdkmcp.CallToolResult, any, error) {
					return run(ctx, p).Result(), nil, nil
				})
		},
	}
}

// relax drops required lists and closed-object constraints from an inferred
// schema so missing or stray arguments reach the handlers and fail as
// envelopes.
func relax(s *jsonschema.Schema) {
	if s == nil {
		return
	}
	s.Required = nil
	if ap := s.AdditionalProperties; ap != nil && ap.Not != nil {
		s.AdditionalProperties = nil
	}
	relax(s.AdditionalProperties)
	relax(s.Items)
	for _, p := range s.Properties {
		relax(p)
	}
	for _, d := range s.Defs {
		relax(d)
	}
	for _, sub := range s.AnyOf {
		relax(sub)
	}
}

// Register adds every tool to the SDK server.
func (t *Table) Register(s *sdkmcp.Server) {
	for _, n := range Names {
		t.entries[n].register(s)
	}
}

// Call dispatches a tool by name. Unrecognized names produce the
// "Unknown tool" envelope.
func (t *Table) Call(ctx context.Context, name string, raw json.RawMessage) mcp.Envelope {
	e, ok := t.entries[Name(name)]
	if !ok {
		return mcp.Fail(apierr.UnknownTool(name))
	}
	return e.call(ctx, raw)
}

// Has reports whether name is a registered tool.
func (t *Table) Has(name string) bool {
	_, ok := t.entries[Name(name)]
	return ok
}

// Definitions returns every tool definition in presentation order.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, 0, len(Names))
	for _, n := range Names {
		out = append(out, t.entries[n].def)
	}
	return out
}

// handlers holds the tool implementations.
type handlers struct {
	Deps
}
