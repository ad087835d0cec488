package operator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

type stubOperator struct {
	cfg Config
}

func (s stubOperator) Config() Config { return s.cfg }

func (s stubOperator) ResolveInput(context.Context, Request) (*jsonschema.Schema, error) {
	return &jsonschema.Schema{Type: "object"}, nil
}

func (s stubOperator) Execute(context.Context, Request) (any, error) { return nil, nil }

// --- LastSegment ---

func TestLastSegment(t *testing.T) {
	tests := map[string]string{
		"@voxel51/operators/tag_samples": "tag_samples",
		"plain":                          "plain",
		"trailing/":                      "",
	}
	for in, want := range tests {
		if got := LastSegment(in); got != want {
			t.Errorf("LastSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

// --- Request.Clone ---

func TestRequestClone_Independent(t *testing.T) {
	r := Request{
		DatasetName: "ds",
		Selected:    []string{"a"},
		Params:      map[string]any{"k": 1},
	}
	c := r.Clone()
	c.Selected[0] = "b"
	c.Params["k"] = 2

	if r.Selected[0] != "a" {
		t.Error("clone should not share the selection slice")
	}
	if r.Params["k"] != 1 {
		t.Error("clone should not share the params map")
	}
}

// --- MemoryRegistry ---

func TestMemoryRegistry_RegisterAndGet(t *testing.T) {
	r := NewMemoryRegistry()
	op := stubOperator{cfg: Config{URI: "@a/b/c"}}
	if err := r.Register(op); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok := r.Get(context.Background(), "@a/b/c")
	if !ok || got.Config().URI != "@a/b/c" {
		t.Error("registered operator should resolve")
	}
	if _, ok := r.Get(context.Background(), "@a/b/missing"); ok {
		t.Error("unknown URI should not resolve")
	}
}

func TestMemoryRegistry_RejectsDuplicates(t *testing.T) {
	r := NewMemoryRegistry()
	op := stubOperator{cfg: Config{URI: "@a/b/c"}}
	_ = r.Register(op)
	if err := r.Register(op); !errors.Is(err, ErrOperatorExists) {
		t.Errorf("expected ErrOperatorExists, got %v", err)
	}
}

func TestMemoryRegistry_RejectsEmptyURI(t *testing.T) {
	r := NewMemoryRegistry()
	if err := r.Register(stubOperator{}); err == nil {
		t.Error("empty URI should be rejected")
	}
}

func TestMemoryRegistry_ListFilters(t *testing.T) {
	r := NewMemoryRegistry()
	_ = r.Register(
		stubOperator{cfg: Config{URI: "@b/x/op", Builtin: true, Type: TypeOperator}},
		stubOperator{cfg: Config{URI: "@a/x/panel", Builtin: true, Type: TypePanel}},
		stubOperator{cfg: Config{URI: "@c/x/custom", Builtin: false, Type: TypeOperator}},
	)
	ctx := context.Background()

	all := r.List(ctx, Filter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 operators, got %d", len(all))
	}
	if all[0].Config().URI != "@a/x/panel" {
		t.Errorf("list should be sorted by URI, first was %s", all[0].Config().URI)
	}

	yes, no := true, false
	if n := len(r.List(ctx, Filter{Builtin: &yes})); n != 2 {
		t.Errorf("builtin filter: expected 2, got %d", n)
	}
	if n := len(r.List(ctx, Filter{Builtin: &no})); n != 1 {
		t.Errorf("custom filter: expected 1, got %d", n)
	}
	if n := len(r.List(ctx, Filter{Type: TypePanel})); n != 1 {
		t.Errorf("panel filter: expected 1, got %d", n)
	}
}

// --- Drain ---

func TestDrain_ReturnsLastValue(t *testing.T) {
	v, err := Drain(context.Background(), NewSliceStream(1, 2, 3))
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if v != 3 {
		t.Errorf("expected last value 3, got %v", v)
	}
}

func TestDrain_EmptyStream(t *testing.T) {
	v, err := Drain(context.Background(), NewSliceStream())
	if err != nil || v != nil {
		t.Errorf("empty stream should drain to nil, got %v, %v", v, err)
	}
}

func TestDrain_ConsumesEverything(t *testing.T) {
	calls := 0
	s := FuncStream(func(context.Context) (any, bool, error) {
		calls++
		return calls, calls <= 5, nil
	})
	if _, err := Drain(context.Background(), s); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if calls != 6 {
		t.Errorf("stream should be pulled until exhausted, got %d calls", calls)
	}
}

func TestDrain_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	n := 0
	s := FuncStream(func(context.Context) (any, bool, error) {
		n++
		if n == 2 {
			return nil, false, boom
		}
		return n, true, nil
	})
	if _, err := Drain(context.Background(), s); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

// --- MissingDependency ---

func TestMissingDependency_Structured(t *testing.T) {
	err := fmt.Errorf("execute: %w", &DependencyError{Package: "torch", InstallHint: "pip install torch"})
	pkg, hint, ok := MissingDependency(err)
	if !ok || pkg != "torch" || hint != "pip install torch" {
		t.Errorf("got %q %q %v", pkg, hint, ok)
	}
	if !errors.Is(err, ErrMissingDependency) {
		t.Error("DependencyError should unwrap to ErrMissingDependency")
	}
}

func TestMissingDependency_TextFallback(t *testing.T) {
	tests := map[string]string{
		`The requested operation requires that 'umap-learn' is installed`: "umap-learn",
		`requires that "open_clip_torch" is installed on your machine`:    "open_clip_torch",
	}
	for msg, want := range tests {
		pkg, _, ok := MissingDependency(errors.New(msg))
		if !ok || pkg != want {
			t.Errorf("MissingDependency(%q) = %q, %v; want %q", msg, pkg, ok, want)
		}
	}
}

func TestMissingDependency_UnknownPackage(t *testing.T) {
	pkg, _, ok := MissingDependency(fmt.Errorf("import failed: %w", ErrMissingDependency))
	if !ok || pkg != "unknown" {
		t.Errorf("expected unknown package, got %q, %v", pkg, ok)
	}
}

func TestMissingDependency_OtherErrors(t *testing.T) {
	if _, _, ok := MissingDependency(errors.New("division by zero")); ok {
		t.Error("ordinary errors are not dependency failures")
	}
	if _, _, ok := MissingDependency(nil); ok {
		t.Error("nil is not a dependency failure")
	}
}

func TestDrainEach_ObservesEveryValue(t *testing.T) {
	var seen []any
	v, err := DrainEach(context.Background(),
		NewSliceStream(Progress{Progress: 0.5}, Progress{Progress: 1}, "done"),
		func(v any) { seen = append(seen, v) })
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if v != "done" {
		t.Errorf("expected final value, got %v", v)
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 observed values, got %d", len(seen))
	}
}
