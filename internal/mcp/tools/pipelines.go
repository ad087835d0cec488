package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/maraichr/datasetops/internal/delegation"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/internal/pipeline"
	"github.com/maraichr/datasetops/pkg/apierr"
)

type ExecutePipelineParams struct {
	Stages           []pipeline.Stage `json:"stages" jsonschema:"Ordered stages, each with operator_uri and optional name, params and always_run"`
	Delegate         bool             `json:"delegate,omitempty" jsonschema:"Queue the whole pipeline as one background operation"`
	DelegationTarget string           `json:"delegation_target,omitempty" jsonschema:"Optional orchestrator target for delegated execution"`
}

type ListDelegatedOperationsParams struct {
	RunState    string `json:"run_state,omitempty" jsonschema:"Filter by run state: scheduled, queued, running, completed or failed"`
	DatasetName string `json:"dataset_name,omitempty" jsonschema:"Filter by dataset name"`
	Operator    string `json:"operator,omitempty" jsonschema:"Filter by operator URI"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum number of operations to return (default 20)"`
}

func (h *handlers) executePipeline(ctx context.Context, p ExecutePipelineParams) (any, error) {
	res, err := h.Runner.Run(ctx, p.Stages, pipeline.Options{
		Delegate:         p.Delegate,
		DelegationTarget: p.DelegationTarget,
	})
	if err != nil {
		return nil, err
	}
	if res.Operation != nil {
		return map[string]any{
			"delegated":    true,
			"operation_id": res.Operation.ID.String(),
			"stage_count":  len(p.Stages),
			"label":        res.Operation.Label,
			"message":      "Pipeline queued for delegated execution",
		}, nil
	}
	return res.Report, nil
}

type operationView struct {
	ID          string             `json:"id"`
	Operator    string             `json:"operator"`
	Label       string             `json:"label"`
	RunState    string             `json:"run_state"`
	DatasetName *string            `json:"dataset_name"`
	QueuedAt    *string            `json:"queued_at"`
	StartedAt   *string            `json:"started_at"`
	CompletedAt *string            `json:"completed_at"`
	FailedAt    *string            `json:"failed_at"`
	HasPipeline bool               `json:"has_pipeline"`
	Progress    *operator.Progress `json:"progress,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func (h *handlers) listDelegatedOperations(ctx context.Context, p ListDelegatedOperationsParams) (any, error) {
	if h.Queue == nil {
		return nil, apierr.DelegationUnavailable()
	}
	state := delegation.RunState(p.RunState)
	if state != "" && !state.Valid() {
		return nil, apierr.InvalidArguments(fmt.Sprintf("unknown run_state '%s'", p.RunState))
	}
	if p.Limit < 0 {
		return nil, apierr.InvalidArguments("limit must be positive")
	}

	ops, err := h.Queue.List(ctx, delegation.Filter{
		RunState:    state,
		DatasetName: p.DatasetName,
		Operator:    p.Operator,
		Limit:       p.Limit,
	})
	if err != nil {
		return nil, apierr.DelegationFailed(err)
	}

	views := make([]operationView, 0, len(ops))
	for _, op := range ops {
		views = append(views, viewOperation(op))
	}
	return map[string]any{"count": len(views), "operations": views}, nil
}

func viewOperation(op *delegation.Operation) operationView {
	v := operationView{
		ID:          op.ID.String(),
		Operator:    op.Operator,
		Label:       op.Label,
		RunState:    string(op.RunState),
		QueuedAt:    timestamp(&op.QueuedAt),
		StartedAt:   timestamp(op.StartedAt),
		CompletedAt: timestamp(op.CompletedAt),
		FailedAt:    timestamp(op.FailedAt),
		HasPipeline: op.HasPipeline(),
		Progress:    op.Progress,
		Error:       op.Error,
	}
	if op.Request.DatasetName != "" {
		name := op.Request.DatasetName
		v.DatasetName = &name
	}
	return v
}

func timestamp(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
