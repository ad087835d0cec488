// Package invoke runs a single operator against the current execution
// context, either inline or through the delegation queue.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/maraichr/datasetops/internal/delegation"
	"github.com/maraichr/datasetops/internal/execution"
	"github.com/maraichr/datasetops/internal/metrics"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/pkg/apierr"
)

// DefaultInstallTemplate renders the install hint for a missing package.
const DefaultInstallTemplate = "pip install %s"

type Kind string

const (
	KindImmediate Kind = "immediate"
	KindDelegated Kind = "delegated"
)

// Request asks for one operator invocation.
type Request struct {
	OperatorURI      string
	Params           map[string]any
	Delegate         bool
	DelegationTarget string
}

// Result is a successful invocation. Failures are returned as *apierr.Error.
type Result struct {
	Kind      Kind
	Value     any
	Operation *delegation.Operation
}

type Invoker struct {
	store           *execution.Store
	registry        operator.Registry
	queue           delegation.Queue
	installTemplate string
	metrics         *metrics.Collector
	logger          *slog.Logger
}

// New creates an Invoker. queue may be nil, in which case delegation fails
// with DELEGATION_UNAVAILABLE.
func New(store *execution.Store, registry operator.Registry, queue delegation.Queue, installTemplate string, logger *slog.Logger) *Invoker {
	if installTemplate == "" {
		installTemplate = DefaultInstallTemplate
	}
	return &Invoker{
		store:           store,
		registry:        registry,
		queue:           queue,
		installTemplate: installTemplate,
		logger:          logger,
	}
}

// SetMetrics records executions and submissions on m.
func (inv *Invoker) SetMetrics(m *metrics.Collector) { inv.metrics = m }

// Invoke merges the current context with r.Params and runs the operator
// inline or hands it to the delegation queue. Exactly one attempt is made.
func (inv *Invoker) Invoke(ctx context.Context, r Request) (*Result, error) {
	c, err := inv.store.Require()
	if err != nil {
		return nil, err
	}
	op, ok := inv.registry.Get(ctx, r.OperatorURI)
	if !ok {
		return nil, apierr.OperatorNotFound(r.OperatorURI)
	}
	req := c.Request(r.Params)

	if r.Delegate {
		// The operator's own AllowDelegated flag is not consulted here.
		queued, err := inv.Delegate(ctx, delegation.Submission{
			Operator:         r.OperatorURI,
			Label:            operator.LastSegment(r.OperatorURI),
			DelegationTarget: r.DelegationTarget,
			Request:          req,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindDelegated, Operation: queued}, nil
	}

	v, err := inv.run(ctx, op, req, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindImmediate, Value: v}, nil
}

// Delegate submits work to the queue without waiting for it to run.
func (inv *Invoker) Delegate(ctx context.Context, sub delegation.Submission) (*delegation.Operation, error) {
	if inv.queue == nil {
		return nil, apierr.DelegationUnavailable()
	}
	op, err := inv.queue.Submit(ctx, sub)
	if err != nil {
		inv.logger.Error("delegation failed",
			slog.String("operator_uri", sub.Operator),
			slog.String("error", err.Error()))
		return nil, apierr.DelegationFailed(err)
	}
	inv.metrics.ObserveDelegated(string(op.RunState))
	return op, nil
}

// Execute runs uri inline against an explicit request, bypassing the
// context store. It is the path used for pipeline stages and by workers.
func (inv *Invoker) Execute(ctx context.Context, uri string, req operator.Request) (any, error) {
	return inv.ExecuteEach(ctx, uri, req, nil)
}

// ExecuteEach is Execute with a callback for every value a streaming
// operator yields.
func (inv *Invoker) ExecuteEach(ctx context.Context, uri string, req operator.Request, observe func(any)) (any, error) {
	op, ok := inv.registry.Get(ctx, uri)
	if !ok {
		return nil, apierr.OperatorNotFound(uri)
	}
	return inv.run(ctx, op, req, observe)
}

func (inv *Invoker) run(ctx context.Context, op operator.Operator, req operator.Request, observe func(any)) (any, error) {
	uri := op.Config().URI
	start := time.Now()

	if err := validateParams(ctx, op, req); err != nil {
		return nil, err
	}

	v, err := execute(ctx, op, req, observe)
	inv.metrics.ObserveOperator(uri, time.Since(start), err)
	if err != nil {
		classified := inv.classify(uri, err)
		inv.logger.Error("operator failed",
			slog.String("operator_uri", uri),
			slog.String("code", string(classified.Code())),
			slog.String("error", err.Error()))
		return nil, classified
	}

	inv.logger.Info("operator executed",
		slog.String("operator_uri", uri),
		slog.String("dataset", req.DatasetName),
		slog.Duration("duration", time.Since(start)))
	return v, nil
}

// execute calls the operator, drains streaming results and converts panics
// into errors.
func execute(ctx context.Context, op operator.Operator, req operator.Request, observe func(any)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()

	v, err = op.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(operator.Stream); ok {
		return operator.DrainEach(ctx, s, observe)
	}
	return v, nil
}

func validateParams(ctx context.Context, op operator.Operator, req operator.Request) error {
	schema, err := op.ResolveInput(ctx, req)
	if err != nil {
		return apierr.ExecutionFailed(fmt.Errorf("resolve input: %w", err), "")
	}
	if schema == nil {
		return nil
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return apierr.ExecutionFailed(fmt.Errorf("resolve input schema: %w", err), "")
	}
	if err := resolved.Validate(req.Params); err != nil {
		return apierr.InvalidArguments(fmt.Sprintf("Invalid params for operator '%s': %v", op.Config().URI, err))
	}
	return nil
}

func (inv *Invoker) classify(uri string, err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if pkg, hint, ok := operator.MissingDependency(err); ok {
		if hint == "" {
			hint = fmt.Sprintf(inv.installTemplate, pkg)
		}
		return apierr.MissingDependency(uri, pkg, hint, err)
	}
	return apierr.ExecutionFailed(err, traceback(err))
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// traceback renders the error chain, outermost first. Recovered panics
// include the goroutine stack.
func traceback(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return pe.Error() + "\n\n" + string(pe.stack)
	}
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %s", e, e.Error()))
	}
	return strings.Join(lines, "\n")
}
