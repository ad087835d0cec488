// Package delegationtest provides an in-memory delegation.Queue for tests.
package delegationtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/datasetops/internal/delegation"
	"github.com/maraichr/datasetops/internal/operator"
)

// Queue records submissions in memory. Set Err to make Submit fail.
type Queue struct {
	mu  sync.Mutex
	ops []*delegation.Operation
	Err error
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Submit(_ context.Context, sub delegation.Submission) (*delegation.Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	op := delegation.NewOperation(sub, time.Now().UTC())
	q.ops = append(q.ops, op)
	cp := *op
	return &cp, nil
}

// Submitted returns every operation in submission order.
func (q *Queue) Submitted() []*delegation.Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*delegation.Operation(nil), q.ops...)
}

func (q *Queue) List(_ context.Context, f delegation.Filter) ([]*delegation.Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	limit := f.Limit
	if limit <= 0 {
		limit = delegation.DefaultListLimit
	}
	var out []*delegation.Operation
	for i := len(q.ops) - 1; i >= 0 && len(out) < limit; i-- {
		if f.Match(q.ops[i]) {
			cp := *q.ops[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (q *Queue) Get(_ context.Context, id uuid.UUID) (*delegation.Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	op := q.find(id)
	if op == nil {
		return nil, delegation.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (q *Queue) MarkRunning(_ context.Context, id uuid.UUID) error {
	return q.update(id, func(op *delegation.Operation) {
		delegation.Transition(op, delegation.RunStateRunning, time.Now().UTC())
	})
}

func (q *Queue) SetProgress(_ context.Context, id uuid.UUID, p operator.Progress) error {
	return q.update(id, func(op *delegation.Operation) { op.Progress = &p })
}

func (q *Queue) MarkCompleted(_ context.Context, id uuid.UUID, result any) error {
	return q.update(id, func(op *delegation.Operation) {
		delegation.Transition(op, delegation.RunStateCompleted, time.Now().UTC())
		op.Result = result
	})
}

func (q *Queue) MarkFailed(_ context.Context, id uuid.UUID, cause error) error {
	return q.update(id, func(op *delegation.Operation) {
		delegation.Transition(op, delegation.RunStateFailed, time.Now().UTC())
		if cause != nil {
			op.Error = cause.Error()
		}
	})
}

func (q *Queue) update(id uuid.UUID, fn func(*delegation.Operation)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	op := q.find(id)
	if op == nil {
		return delegation.ErrNotFound
	}
	fn(op)
	return nil
}

func (q *Queue) find(id uuid.UUID) *delegation.Operation {
	for _, op := range q.ops {
		if op.ID == id {
			return op
		}
	}
	return nil
}

var _ delegation.Queue = (*Queue)(nil)
