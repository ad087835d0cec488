// Package worker runs delegated operations taken off the delegation queue.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maraichr/datasetops/internal/delegation"
	"github.com/maraichr/datasetops/internal/invoke"
	"github.com/maraichr/datasetops/internal/metrics"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/internal/pipeline"
)

// Executor drives one delegated operation from queued to a terminal state.
type Executor struct {
	invoker *invoke.Invoker
	runner  *pipeline.Runner
	queue   delegation.Queue
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewExecutor(invoker *invoke.Invoker, runner *pipeline.Runner, queue delegation.Queue, logger *slog.Logger) *Executor {
	return &Executor{invoker: invoker, runner: runner, queue: queue, logger: logger}
}

// SetMetrics counts terminal transitions on m.
func (e *Executor) SetMetrics(m *metrics.Collector) { e.metrics = m }

// Handle runs op and records its outcome. Operator failures are recorded on
// the operation and do not produce an error; a returned error means the
// queue could not be updated or the worker is shutting down, and the
// message stays pending for redelivery.
func (e *Executor) Handle(ctx context.Context, op *delegation.Operation) error {
	log := e.logger.With(
		slog.String("operation_id", op.ID.String()),
		slog.String("operator_uri", op.Operator),
		slog.String("label", op.Label))

	if err := e.queue.MarkRunning(ctx, op.ID); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	log.Info("operation started", slog.Bool("pipeline", op.HasPipeline()))
	start := time.Now()

	result, runErr := e.run(ctx, op)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if runErr != nil {
		if err := e.queue.MarkFailed(ctx, op.ID, runErr); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		e.metrics.ObserveDelegated(string(delegation.RunStateFailed))
		log.Warn("operation failed",
			slog.String("error", runErr.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil
	}

	if err := e.queue.MarkCompleted(ctx, op.ID, result); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	e.metrics.ObserveDelegated(string(delegation.RunStateCompleted))
	log.Info("operation completed", slog.Duration("duration", time.Since(start)))
	return nil
}

func (e *Executor) run(ctx context.Context, op *delegation.Operation) (any, error) {
	if op.HasPipeline() {
		rep := e.runner.RunImmediate(ctx, op.Request, pipeline.FromSpecs(op.Pipeline))
		if !rep.Success {
			return rep, firstFailure(rep)
		}
		return rep, nil
	}

	return e.invoker.ExecuteEach(ctx, op.Operator, op.Request, func(v any) {
		p, ok := v.(operator.Progress)
		if !ok {
			return
		}
		if err := e.queue.SetProgress(ctx, op.ID, p); err != nil {
			e.logger.Warn("record progress",
				slog.String("operation_id", op.ID.String()),
				slog.String("error", err.Error()))
		}
	})
}

// firstFailure summarises the first failed stage of a report.
func firstFailure(rep *pipeline.Report) error {
	for _, r := range rep.Results {
		if r.Outcome == pipeline.OutcomeFailed {
			return fmt.Errorf("stage %d (%s) failed: %s", r.Index, r.Name, r.Error)
		}
	}
	return fmt.Errorf("pipeline failed")
}
