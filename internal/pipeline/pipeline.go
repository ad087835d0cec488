// Package pipeline runs an ordered list of operator stages against the
// current execution context with skip-on-failure semantics.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maraichr/datasetops/internal/delegation"
	"github.com/maraichr/datasetops/internal/execution"
	"github.com/maraichr/datasetops/internal/invoke"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/pkg/apierr"
)

// SkipReason is recorded on stages skipped after an earlier failure.
const SkipReason = "Previous stage failed"

// Stage is one operator invocation within a pipeline.
type Stage struct {
	OperatorURI string         `json:"operator_uri"`
	Name        string         `json:"name,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	AlwaysRun   bool           `json:"always_run,omitempty"`
}

// DisplayName returns the explicit name or stage_<index>_<lastUriSegment>.
func (s Stage) DisplayName(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("stage_%d_%s", index, operator.LastSegment(s.OperatorURI))
}

type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// StageResult records what happened to one stage.
type StageResult struct {
	Index       int
	OperatorURI string
	Name        string
	Outcome     Outcome
	Value       any
	Reason      string
	Error       string
	ErrorType   string
}

// MarshalJSON renders only the field that matches the outcome: result,
// reason or error.
func (r StageResult) MarshalJSON() ([]byte, error) {
	type common struct {
		Index       int    `json:"index"`
		OperatorURI string `json:"operator_uri"`
		Name        string `json:"name"`
		Success     bool   `json:"success"`
		Skipped     bool   `json:"skipped"`
	}
	c := common{
		Index:       r.Index,
		OperatorURI: r.OperatorURI,
		Name:        r.Name,
		Success:     r.Outcome == OutcomeExecuted,
		Skipped:     r.Outcome == OutcomeSkipped,
	}
	switch r.Outcome {
	case OutcomeExecuted:
		return json.Marshal(struct {
			common
			Result any `json:"result"`
		}{c, r.Value})
	case OutcomeSkipped:
		return json.Marshal(struct {
			common
			Reason string `json:"reason"`
		}{c, r.Reason})
	default:
		return json.Marshal(struct {
			common
			Error     string `json:"error"`
			ErrorType string `json:"error_type,omitempty"`
		}{c, r.Error, r.ErrorType})
	}
}

// Report aggregates the outcome of an immediate run. Executed counts every
// stage that was not skipped, failed ones included.
type Report struct {
	Success  bool          `json:"pipeline_success"`
	Total    int           `json:"stages_total"`
	Executed int           `json:"stages_executed"`
	Skipped  int           `json:"stages_skipped"`
	Failed   int           `json:"stages_failed"`
	Results  []StageResult `json:"results"`
}

type Options struct {
	Delegate         bool
	DelegationTarget string
}

// Result is either a Report (immediate) or a single queued Operation
// (whole-pipeline delegation).
type Result struct {
	Report    *Report
	Operation *delegation.Operation
}

type Runner struct {
	store    *execution.Store
	registry operator.Registry
	invoker  *invoke.Invoker
	logger   *slog.Logger
}

func NewRunner(store *execution.Store, registry operator.Registry, invoker *invoke.Invoker, logger *slog.Logger) *Runner {
	return &Runner{store: store, registry: registry, invoker: invoker, logger: logger}
}

// Run checks the context, validates every stage, then either delegates the
// whole pipeline as one operation or executes the stages in order.
func (r *Runner) Run(ctx context.Context, stages []Stage, opts Options) (*Result, error) {
	c, err := r.store.Require()
	if err != nil {
		return nil, err
	}
	if err := r.Validate(ctx, stages); err != nil {
		return nil, err
	}

	base := c.Request(nil)
	if opts.Delegate {
		op, err := r.invoker.Delegate(ctx, delegation.Submission{
			Operator:         stages[0].OperatorURI,
			Label:            Label(stages),
			DelegationTarget: opts.DelegationTarget,
			Request:          base,
			Pipeline:         ToSpecs(stages),
		})
		if err != nil {
			return nil, err
		}
		return &Result{Operation: op}, nil
	}

	return &Result{Report: r.RunImmediate(ctx, base, stages)}, nil
}

// Validate checks all stages before anything runs. The first offending
// stage is reported by index.
func (r *Runner) Validate(ctx context.Context, stages []Stage) error {
	if len(stages) == 0 {
		return apierr.EmptyPipeline()
	}
	for i, s := range stages {
		if strings.TrimSpace(s.OperatorURI) == "" {
			return apierr.StageMissingURI(i)
		}
		if _, ok := r.registry.Get(ctx, s.OperatorURI); !ok {
			return apierr.StageOperatorNotFound(i, s.OperatorURI)
		}
	}
	return nil
}

// RunImmediate executes stages sequentially against base. A failed stage
// stops the chain: later stages are skipped unless marked AlwaysRun. Stage
// errors are recorded in the report and never returned.
func (r *Runner) RunImmediate(ctx context.Context, base operator.Request, stages []Stage) *Report {
	rep := &Report{Total: len(stages), Results: make([]StageResult, 0, len(stages))}
	active := true

	for i, s := range stages {
		res := StageResult{Index: i, OperatorURI: s.OperatorURI, Name: s.DisplayName(i)}

		if !active && !s.AlwaysRun {
			res.Outcome = OutcomeSkipped
			res.Reason = SkipReason
			rep.Skipped++
			rep.Results = append(rep.Results, res)
			r.logger.Info("stage skipped", slog.Int("index", i), slog.String("stage", res.Name))
			continue
		}

		r.logger.Info("stage started",
			slog.Int("index", i),
			slog.String("stage", res.Name),
			slog.String("operator_uri", s.OperatorURI))

		req := base.Clone()
		req.Params = copyParams(s.Params)
		req.Delegated = false
		req.DelegationTarget = ""

		v, err := r.invoker.Execute(ctx, s.OperatorURI, req)
		if err != nil {
			e := apierr.As(err)
			active = false
			rep.Failed++
			res.Outcome = OutcomeFailed
			res.Error = e.Message()
			res.ErrorType = strings.ToLower(string(e.Code()))
			r.logger.Error("stage failed",
				slog.Int("index", i),
				slog.String("stage", res.Name),
				slog.String("error", err.Error()))
		} else {
			res.Outcome = OutcomeExecuted
			res.Value = v
			r.logger.Info("stage completed", slog.Int("index", i), slog.String("stage", res.Name))
		}
		rep.Results = append(rep.Results, res)
	}

	rep.Executed = rep.Total - rep.Skipped
	rep.Success = rep.Failed == 0
	return rep
}

// Label names a delegated pipeline after its first stage, with a suffix
// counting the remaining stages.
func Label(stages []Stage) string {
	if len(stages) == 0 {
		return "pipeline"
	}
	label := "pipeline:" + operator.LastSegment(stages[0].OperatorURI)
	if n := len(stages) - 1; n > 0 {
		label += fmt.Sprintf("_+%d_more", n)
	}
	return label
}

// ToSpecs converts stages to their queued form, filling default names.
func ToSpecs(stages []Stage) []delegation.StageSpec {
	out := make([]delegation.StageSpec, len(stages))
	for i, s := range stages {
		out[i] = delegation.StageSpec{
			OperatorURI: s.OperatorURI,
			Name:        s.DisplayName(i),
			Params:      copyParams(s.Params),
			AlwaysRun:   s.AlwaysRun,
		}
	}
	return out
}

// FromSpecs converts queued stages back for execution.
func FromSpecs(specs []delegation.StageSpec) []Stage {
	out := make([]Stage, len(specs))
	for i, s := range specs {
		out[i] = Stage{OperatorURI: s.OperatorURI, Name: s.Name, Params: s.Params, AlwaysRun: s.AlwaysRun}
	}
	return out
}

func copyParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
