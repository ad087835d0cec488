package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/maraichr/datasetops/internal/catalog"
	"github.com/maraichr/datasetops/internal/delegation/delegationtest"
	"github.com/maraichr/datasetops/internal/execution"
	"github.com/maraichr/datasetops/internal/invoke"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/pkg/apierr"
)

const (
	uriOK    = "@test/ops/succeed"
	uriFail  = "@test/ops/fail"
	uriCount = "@test/ops/count"
)

type fixture struct {
	store  *execution.Store
	queue  *delegationtest.Queue
	runner *Runner
	order  []string
	seen   []operator.Request
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store: execution.NewStore(catalog.NewMemory(catalog.Dataset{Name: "quickstart"}), logger),
		queue: delegationtest.NewQueue(),
	}
	reg := operator.NewMemoryRegistry()
	record := func(uri string, run func(operator.Request) (any, error)) operator.Operator {
		return &operator.Func{
			Cfg: operator.Config{URI: uri, Name: operator.LastSegment(uri)},
			Run: func(_ context.Context, req operator.Request) (any, error) {
				f.order = append(f.order, uri)
				f.seen = append(f.seen, req)
				return run(req)
			},
		}
	}
	err := reg.Register(
		record(uriOK, func(req operator.Request) (any, error) { return req.Params["v"], nil }),
		record(uriFail, func(operator.Request) (any, error) { return nil, errors.New("stage exploded") }),
		record(uriCount, func(req operator.Request) (any, error) { return len(req.Selected), nil }),
	)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	inv := invoke.New(f.store, reg, f.queue, "", logger)
	f.runner = NewRunner(f.store, reg, inv, logger)
	return f
}

func (f *fixture) setContext(t *testing.T) {
	t.Helper()
	_, err := f.store.Set(context.Background(), execution.SetParams{
		DatasetName:     "quickstart",
		SelectedSamples: []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("set context: %v", err)
	}
}

// --- Validation ---

func TestRun_EmptyPipeline(t *testing.T) {
	f := newFixture(t)
	f.setContext(t)
	_, err := f.runner.Run(context.Background(), nil, Options{})
	if !apierr.Is(err, apierr.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
	if len(f.order) != 0 {
		t.Error("no stage may execute")
	}
}

func TestRun_InvalidStageAbortsEverything(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
		index  int
	}{
		{"missing uri", []Stage{{OperatorURI: uriOK}, {OperatorURI: uriOK}, {}}, 2},
		{"unknown operator", []Stage{{OperatorURI: uriOK}, {OperatorURI: "@nope/x/y"}, {OperatorURI: uriOK}}, 1},
		{"first stage", []Stage{{OperatorURI: "  "}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.setContext(t)
			_, err := f.runner.Run(context.Background(), tt.stages, Options{})
			e := apierr.As(err)
			if e == nil || e.Code() != apierr.CodeValidationFailed {
				t.Fatalf("expected VALIDATION_FAILED, got %v", err)
			}
			if idx, _ := e.Field("stage_index"); idx != tt.index {
				t.Errorf("stage_index = %v, want %d", idx, tt.index)
			}
			if len(f.order) != 0 {
				t.Errorf("validation must precede execution, ran %v", f.order)
			}
		})
	}
}

func TestRun_RequiresContextBeforeValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.Run(context.Background(), nil, Options{})
	if !apierr.Is(err, apierr.CodeContextNotSet) {
		t.Errorf("expected CONTEXT_NOT_SET, got %v", err)
	}
}

func TestRun_AfterClear(t *testing.T) {
	f := newFixture(t)
	f.setContext(t)
	f.store.Clear()
	_, err := f.runner.Run(context.Background(), []Stage{{OperatorURI: uriOK}}, Options{})
	if !apierr.Is(err, apierr.CodeContextNotSet) {
		t.Errorf("expected CONTEXT_NOT_SET, got %v", err)
	}
}

// --- Sequential execution ---

func TestRun_FailureSkipsUnlessAlwaysRun(t *testing.T) {
	f := newFixture(t)
	f.setContext(t)
	res, err := f.runner.Run(context.Background(), []Stage{
		{OperatorURI: uriFail},
		{OperatorURI: uriOK},
		{OperatorURI: uriCount, AlwaysRun: true},
	}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rep := res.Report
	if rep.Skipped != 1 || rep.Executed != 2 || rep.Failed != 1 || rep.Success {
		t.Errorf("unexpected counts: %+v", rep)
	}
	want := []Outcome{OutcomeFailed, OutcomeSkipped, OutcomeExecuted}
	for i, o := range want {
		if rep.Results[i].Outcome != o {
			t.Errorf("stage %d outcome = %s, want %s", i, rep.Results[i].Outcome, o)
		}
	}
	if rep.Results[1].Reason != SkipReason {
		t.Errorf("skip reason = %q", rep.Results[1].Reason)
	}
	if rep.Results[0].Error != "stage exploded" || rep.Results[0].ErrorType != "execution_failed" {
		t.Errorf("failure not recorded: %+v", rep.Results[0])
	}
	if rep.Results[2].Value != 3 {
		t.Errorf("always_run stage should see the shared context, got %v", rep.Results[2].Value)
	}
	if len(f.order) != 2 || f.order[0] != uriFail || f.order[1] != uriCount {
		t.Errorf("execution order = %v", f.order)
	}
}

func TestRun_AllSucceedPreservesOrder(t *testing.T) {
	f := newFixture(t)
	f.setContext(t)
	stages := []Stage{
		{OperatorURI: uriOK, Params: map[string]any{"v": 0}},
		{OperatorURI: uriCount},
		{OperatorURI: uriOK, Params: map[string]any{"v": 2}, Name: "third"},
		{OperatorURI: uriOK, Params: map[string]any{"v": 3}},
	}
	res, err := f.runner.Run(context.Background(), stages, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rep := res.Report
	if rep.Total != 4 || rep.Executed != 4 || rep.Skipped != 0 || rep.Failed != 0 || !rep.Success {
		t.Errorf("unexpected counts: %+v", rep)
	}
	for i, r := range rep.Results {
		if r.Index != i || r.OperatorURI != stages[i].OperatorURI {
			t.Errorf("result %d out of order: %+v", i, r)
		}
	}
	if rep.Results[0].Value != 0 || rep.Results[2].Value != 2 {
		t.Error("per-stage params not applied")
	}
}

func TestRun_ChainStaysBrokenAfterAlwaysRunSuccess(t *testing.T) {
	f := newFixture(t)
	f.setContext(t)
	res, _ := f.runner.Run(context.Background(), []Stage{
		{OperatorURI: uriFail},
		{OperatorURI: uriOK, AlwaysRun: true},
		{OperatorURI: uriOK},
	}, Options{})
	if res.Report.Results[2].Outcome != OutcomeSkipped {
		t.Error("a successful always_run stage must not reactivate the chain")
	}
}

func TestRun_StagesNeverDelegatedIndividually(t *testing.T) {
	f := newFixture(t)
	f.setContext(t)
	_, err := f.runner.Run(context.Background(), []Stage{{OperatorURI: uriOK}, {OperatorURI: uriCount}}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.queue.Submitted()) != 0 {
		t.Error("immediate pipeline must not queue anything")
	}
	for _, req := range f.seen {
		if req.Delegated {
			t.Error("stage request marked delegated")
		}
	}
}

func TestRun_StageParamsIsolated(t *testing.T) {
	f := newFixture(t)
	f.setContext(t)
	_, _ = f.runner.Run(context.Background(), []Stage{
		{OperatorURI: uriOK, Params: map[string]any{"v": 1}},
		{OperatorURI: uriCount},
	}, Options{})
	if _, leaked := f.seen[1].Params["v"]; leaked {
		t.Error("params from one stage leaked into the next")
	}
}

// --- Naming ---

func TestDisplayName(t *testing.T) {
	s := Stage{OperatorURI: "@voxel51/brain/compute_similarity"}
	if got := s.DisplayName(3); got != "stage_3_compute_similarity" {
		t.Errorf("got %q", got)
	}
	s.Name = "My Stage"
	if got := s.DisplayName(3); got != "My Stage" {
		t.Errorf("explicit name should be kept verbatim, got %q", got)
	}
}

func TestLabel(t *testing.T) {
	one := []Stage{{OperatorURI: "@a/b/tag"}}
	if got := Label(one); got != "pipeline:tag" {
		t.Errorf("got %q", got)
	}
	three := []Stage{{OperatorURI: "@a/b/tag"}, {OperatorURI: "@a/b/x"}, {OperatorURI: "@a/b/y"}}
	if got := Label(three); got != "pipeline:tag_+2_more" {
		t.Errorf("got %q", got)
	}
}

// --- Delegation ---

func TestRun_DelegatesWholePipelineOnce(t *testing.T) {
	f := newFixture(t)
	f.setContext(t)
	stages := []Stage{
		{OperatorURI: uriOK, Params: map[string]any{"v": 1}},
		{OperatorURI: uriFail, Name: "explode"},
		{OperatorURI: uriCount, AlwaysRun: true},
	}
	res, err := f.runner.Run(context.Background(), stages, Options{Delegate: true, DelegationTarget: "batch"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Report != nil || res.Operation == nil {
		t.Fatalf("expected one delegated operation, got %+v", res)
	}
	if len(f.order) != 0 {
		t.Error("delegated pipeline must not execute locally")
	}

	ops := f.queue.Submitted()
	if len(ops) != 1 {
		t.Fatalf("expected exactly 1 queued operation, got %d", len(ops))
	}
	op := ops[0]
	if op.Label != "pipeline:succeed_+2_more" || op.Operator != uriOK || op.DelegationTarget != "batch" {
		t.Errorf("unexpected operation: %+v", op)
	}
	if len(op.Pipeline) != 3 || op.Pipeline[0].Name != "stage_0_succeed" || op.Pipeline[1].Name != "explode" || !op.Pipeline[2].AlwaysRun {
		t.Errorf("stages not packaged: %+v", op.Pipeline)
	}
}

func TestRun_DelegateValidatesFirst(t *testing.T) {
	f := newFixture(t)
	f.setContext(t)
	_, err := f.runner.Run(context.Background(), []Stage{{OperatorURI: "@nope/x/y"}}, Options{Delegate: true})
	if !apierr.Is(err, apierr.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
	if len(f.queue.Submitted()) != 0 {
		t.Error("invalid pipeline must not be queued")
	}
}

func TestSpecsRoundTrip(t *testing.T) {
	stages := []Stage{{OperatorURI: "@a/b/c", Params: map[string]any{"k": 1}, AlwaysRun: true}}
	back := FromSpecs(ToSpecs(stages))
	if back[0].Name != "stage_0_c" || !back[0].AlwaysRun || back[0].Params["k"] != 1 {
		t.Errorf("unexpected stage %+v", back[0])
	}
}

// --- Wire format ---

func TestStageResultJSON(t *testing.T) {
	rep := Report{Results: []StageResult{
		{Index: 0, Name: "a", Outcome: OutcomeExecuted},
		{Index: 1, Name: "b", Outcome: OutcomeSkipped, Reason: SkipReason},
		{Index: 2, Name: "c", Outcome: OutcomeFailed, Error: "boom"},
	}}
	data, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := out.Results[0]["result"]; !ok || out.Results[0]["success"] != true {
		t.Errorf("executed stage should carry result: %v", out.Results[0])
	}
	if out.Results[1]["reason"] != SkipReason || out.Results[1]["skipped"] != true {
		t.Errorf("skipped stage: %v", out.Results[1])
	}
	if out.Results[2]["error"] != "boom" || out.Results[2]["success"] != false {
		t.Errorf("failed stage: %v", out.Results[2])
	}
	if _, ok := out.Results[2]["result"]; ok {
		t.Error("failed stage must not carry result")
	}
}
