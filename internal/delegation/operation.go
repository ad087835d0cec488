// Package delegation queues operator invocations and whole pipelines for
// background execution and tracks their run state.
package delegation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/datasetops/internal/operator"
)

// ErrNotFound is returned when an operation ID is unknown.
var ErrNotFound = errors.New("delegated operation not found")

type RunState string

const (
	RunStateScheduled RunState = "scheduled"
	RunStateQueued    RunState = "queued"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// Valid reports whether s is a known run state.
func (s RunState) Valid() bool {
	switch s {
	case RunStateScheduled, RunStateQueued, RunStateRunning, RunStateCompleted, RunStateFailed:
		return true
	}
	return false
}

// DefaultListLimit caps List results when Filter.Limit is unset.
const DefaultListLimit = 20

// StageSpec is one pipeline stage as carried on a delegated operation.
type StageSpec struct {
	OperatorURI string         `json:"operator_uri"`
	Name        string         `json:"name"`
	Params      map[string]any `json:"params"`
	AlwaysRun   bool           `json:"always_run"`
}

// Submission describes work handed to the queue.
type Submission struct {
	Operator         string
	Label            string
	DelegationTarget string
	Request          operator.Request
	Pipeline         []StageSpec
}

// Operation is the stored record of a delegated job.
type Operation struct {
	ID               uuid.UUID          `json:"id"`
	Operator         string             `json:"operator"`
	Label            string             `json:"label"`
	RunState         RunState           `json:"run_state"`
	DelegationTarget string             `json:"delegation_target,omitempty"`
	Request          operator.Request   `json:"request"`
	Pipeline         []StageSpec        `json:"pipeline,omitempty"`
	QueuedAt         time.Time          `json:"queued_at"`
	StartedAt        *time.Time         `json:"started_at,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	FailedAt         *time.Time         `json:"failed_at,omitempty"`
	Progress         *operator.Progress `json:"progress,omitempty"`
	Result           any                `json:"result,omitempty"`
	Error            string             `json:"error,omitempty"`
}

func (o *Operation) HasPipeline() bool { return len(o.Pipeline) > 0 }

// Filter narrows List results. Zero-valued fields match everything.
type Filter struct {
	RunState    RunState
	DatasetName string
	Operator    string
	Limit       int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Match reports whether op satisfies the filter.
func (f Filter) Match(op *Operation) bool {
	if f.RunState != "" && op.RunState != f.RunState {
		return false
	}
	if f.DatasetName != "" && op.Request.DatasetName != f.DatasetName {
		return false
	}
	if f.Operator != "" && op.Operator != f.Operator {
		return false
	}
	return true
}

// Queue accepts delegated work and tracks its lifecycle.
type Queue interface {
	// Submit records the operation as queued and returns without waiting
	// for it to run.
	Submit(ctx context.Context, sub Submission) (*Operation, error)
	// List returns matching operations, newest first.
	List(ctx context.Context, f Filter) ([]*Operation, error)
	Get(ctx context.Context, id uuid.UUID) (*Operation, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	SetProgress(ctx context.Context, id uuid.UUID, p operator.Progress) error
	MarkCompleted(ctx context.Context, id uuid.UUID, result any) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

// NewOperation builds a queued record from a submission.
func NewOperation(sub Submission, now time.Time) *Operation {
	req := sub.Request.Clone()
	req.Delegated = true
	req.DelegationTarget = sub.DelegationTarget
	return &Operation{
		ID:               uuid.New(),
		Operator:         sub.Operator,
		Label:            sub.Label,
		RunState:         RunStateQueued,
		DelegationTarget: sub.DelegationTarget,
		Request:          req,
		Pipeline:         append([]StageSpec(nil), sub.Pipeline...),
		QueuedAt:         now,
	}
}

// Transition applies a state change to op in place.
func Transition(op *Operation, state RunState, now time.Time) {
	op.RunState = state
	switch state {
	case RunStateRunning:
		op.StartedAt = &now
	case RunStateCompleted:
		op.CompletedAt = &now
		op.Progress = &operator.Progress{Progress: 1}
	case RunStateFailed:
		op.FailedAt = &now
	}
}
