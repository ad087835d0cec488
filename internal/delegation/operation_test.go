package delegation

import (
	"testing"
	"time"

	"github.com/maraichr/datasetops/internal/operator"
)

func TestNewOperation_MarksRequestDelegated(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sub := Submission{
		Operator:         "@datasetops/core/count_samples",
		Label:            "count_samples",
		DelegationTarget: "gpu-pool",
		Request:          operator.Request{DatasetName: "quickstart", Params: map[string]any{"k": 1}},
	}
	op := NewOperation(sub, now)

	if op.RunState != RunStateQueued {
		t.Errorf("expected queued, got %s", op.RunState)
	}
	if !op.Request.Delegated || op.Request.DelegationTarget != "gpu-pool" {
		t.Errorf("request should carry delegation flags: %+v", op.Request)
	}
	if !op.QueuedAt.Equal(now) {
		t.Errorf("queued_at = %v", op.QueuedAt)
	}
	if op.HasPipeline() {
		t.Error("single operator submission has no pipeline")
	}

	sub.Request.Params["k"] = 2
	if op.Request.Params["k"] != 1 {
		t.Error("operation must not alias the submission params")
	}
}

func TestTransition(t *testing.T) {
	now := time.Now()
	op := &Operation{RunState: RunStateQueued}

	Transition(op, RunStateRunning, now)
	if op.StartedAt == nil || op.RunState != RunStateRunning {
		t.Fatalf("running transition not applied: %+v", op)
	}
	Transition(op, RunStateCompleted, now)
	if op.CompletedAt == nil || op.Progress == nil || op.Progress.Progress != 1 {
		t.Errorf("completed transition should set progress to 1: %+v", op)
	}

	failed := &Operation{}
	Transition(failed, RunStateFailed, now)
	if failed.FailedAt == nil {
		t.Error("failed transition should set failed_at")
	}
}

func TestFilter_Match(t *testing.T) {
	op := &Operation{
		Operator: "@datasetops/core/tag_samples",
		RunState: RunStateQueued,
		Request:  operator.Request{DatasetName: "quickstart"},
	}
	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty filter", Filter{}, true},
		{"state match", Filter{RunState: RunStateQueued}, true},
		{"state mismatch", Filter{RunState: RunStateFailed}, false},
		{"dataset match", Filter{DatasetName: "quickstart"}, true},
		{"dataset mismatch", Filter{DatasetName: "other"}, false},
		{"operator mismatch", Filter{Operator: "@x/y/z"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Match(op); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_DefaultLimit(t *testing.T) {
	if (Filter{}).limit() != DefaultListLimit {
		t.Errorf("zero limit should default to %d", DefaultListLimit)
	}
	if (Filter{Limit: 5}).limit() != 5 {
		t.Error("explicit limit should be kept")
	}
}

func TestRunState_Valid(t *testing.T) {
	if !RunStateRunning.Valid() {
		t.Error("running should be valid")
	}
	if RunState("paused").Valid() {
		t.Error("unknown state should be invalid")
	}
}
