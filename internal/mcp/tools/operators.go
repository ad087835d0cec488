package tools

import (
	"context"
	"fmt"

	"github.com/maraichr/datasetops/internal/invoke"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/pkg/apierr"
)

type ListOperatorsParams struct {
	BuiltinOnly  *bool  `json:"builtin_only,omitempty" jsonschema:"true: only builtin operators; false: only custom operators; omitted: all"`
	OperatorType string `json:"operator_type,omitempty" jsonschema:"Filter by type: operator or panel"`
}

type GetOperatorSchemaParams struct {
	OperatorURI string `json:"operator_uri" jsonschema:"The operator URI from list_operators"`
}

type ExecuteOperatorParams struct {
	OperatorURI      string         `json:"operator_uri" jsonschema:"The URI of the operator to execute"`
	Params           map[string]any `json:"params,omitempty" jsonschema:"Operator parameters; see get_operator_schema"`
	Delegate         bool           `json:"delegate,omitempty" jsonschema:"Queue the operation for background execution instead of running it now"`
	DelegationTarget string         `json:"delegation_target,omitempty" jsonschema:"Optional orchestrator target for delegated execution"`
}

func (h *handlers) listOperators(ctx context.Context, p ListOperatorsParams) (any, error) {
	f := operator.Filter{Builtin: p.BuiltinOnly}
	switch operator.Type(p.OperatorType) {
	case "":
	case operator.TypeOperator, operator.TypePanel:
		f.Type = operator.Type(p.OperatorType)
	default:
		return nil, apierr.InvalidArguments(fmt.Sprintf("operator_type must be 'operator' or 'panel', got '%s'", p.OperatorType))
	}

	ops := h.Registry.List(ctx, f)
	configs := make([]operator.Config, 0, len(ops))
	for _, op := range ops {
		configs = append(configs, op.Config())
	}
	return map[string]any{"count": len(configs), "operators": configs}, nil
}

func (h *handlers) getOperatorSchema(ctx context.Context, p GetOperatorSchemaParams) (any, error) {
	op, ok := h.Registry.Get(ctx, p.OperatorURI)
	if !ok {
		return nil, apierr.OperatorNotFound(p.OperatorURI)
	}
	c, ok := h.Store.Snapshot()
	if !ok {
		return nil, apierr.SchemaContextNotSet()
	}
	schema, err := op.ResolveInput(ctx, c.Request(nil))
	if err != nil {
		return nil, apierr.ExecutionFailed(fmt.Errorf("resolve input: %w", err), "")
	}
	var input any = map[string]any{}
	if schema != nil {
		input = schema
	}
	return map[string]any{
		"operator_uri":   p.OperatorURI,
		"operator_label": op.Config().Label,
		"input_schema":   input,
	}, nil
}

func (h *handlers) executeOperator(ctx context.Context, p ExecuteOperatorParams) (any, error) {
	if p.OperatorURI == "" {
		return nil, apierr.InvalidArguments("operator_uri is required")
	}
	res, err := h.Invoker.Invoke(ctx, invoke.Request{
		OperatorURI:      p.OperatorURI,
		Params:           p.Params,
		Delegate:         p.Delegate,
		DelegationTarget: p.DelegationTarget,
	})
	if err != nil {
		return nil, err
	}

	if res.Kind == invoke.KindDelegated {
		return map[string]any{
			"operator_uri": p.OperatorURI,
			"delegated":    true,
			"operation_id": res.Operation.ID.String(),
			"label":        res.Operation.Label,
			"message":      "Operation queued for delegated execution",
		}, nil
	}
	return map[string]any{
		"operator_uri": p.OperatorURI,
		"delegated":    false,
		"result":       res.Value,
	}, nil
}
