package builtin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/internal/store/postgres"
	"github.com/maraichr/datasetops/pkg/apierr"
)

type fakeSamples struct {
	items  []postgres.Sample
	tagged []string
	ids    []uuid.UUID
	err    error
}

func newFakeSamples(n int) *fakeSamples {
	f := &fakeSamples{}
	for i := 0; i < n; i++ {
		f.items = append(f.items, postgres.Sample{ID: uuid.New(), DatasetName: "quickstart", Filepath: "/data/img.jpg"})
	}
	sort.Slice(f.items, func(i, j int) bool {
		return bytes.Compare(f.items[i].ID[:], f.items[j].ID[:]) < 0
	})
	return f
}

func (f *fakeSamples) CountSamples(_ context.Context, _ string, ids []uuid.UUID) (int64, error) {
	f.ids = ids
	if f.err != nil {
		return 0, f.err
	}
	if len(ids) > 0 {
		return int64(len(ids)), nil
	}
	return int64(len(f.items)), nil
}

func (f *fakeSamples) TagSamples(_ context.Context, _ string, ids []uuid.UUID, tags []string) (int64, error) {
	f.ids = ids
	f.tagged = append(f.tagged, tags...)
	return int64(len(ids)), nil
}

func (f *fakeSamples) UntagSamples(_ context.Context, _ string, ids []uuid.UUID, tags []string) (int64, error) {
	f.ids = ids
	return int64(len(ids)), nil
}

func (f *fakeSamples) ListSamples(_ context.Context, _ string, _ []uuid.UUID, after uuid.UUID, limit int32) ([]postgres.Sample, error) {
	var out []postgres.Sample
	for _, s := range f.items {
		if bytes.Compare(s.ID[:], after[:]) > 0 {
			out = append(out, s)
			if len(out) == int(limit) {
				break
			}
		}
	}
	return out, nil
}

type fakeBlobs struct {
	key  string
	data []byte
}

func (b *fakeBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.key, b.data = key, data
	return "s3://exports/" + key, nil
}

// --- Registration ---

func TestRegister(t *testing.T) {
	reg := operator.NewMemoryRegistry()
	if err := Register(reg, newFakeSamples(0), nil, "exports"); err != nil {
		t.Fatalf("register: %v", err)
	}
	builtin := true
	ops := reg.List(context.Background(), operator.Filter{Builtin: &builtin})
	if len(ops) != 4 {
		t.Fatalf("expected 4 builtins, got %d", len(ops))
	}
	for _, op := range ops {
		c := op.Config()
		if c.PluginName != PluginName || !c.AllowDelegated || !c.AllowImmediate {
			t.Errorf("unexpected config %+v", c)
		}
	}
}

// --- Samples ---

func TestCountSamples_Selection(t *testing.T) {
	f := newFakeSamples(5)
	op := NewCountSamples(f)

	v, err := op.Execute(context.Background(), operator.Request{DatasetName: "quickstart"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if v.(map[string]any)["count"] != int64(5) {
		t.Errorf("expected whole-dataset count, got %v", v)
	}

	sel := []string{f.items[0].ID.String(), f.items[1].ID.String()}
	v, _ = op.Execute(context.Background(), operator.Request{DatasetName: "quickstart", Selected: sel})
	if v.(map[string]any)["count"] != int64(2) || len(f.ids) != 2 {
		t.Errorf("selection should narrow the count, got %v", v)
	}
}

func TestCountSamples_InvalidID(t *testing.T) {
	op := NewCountSamples(newFakeSamples(1))
	_, err := op.Execute(context.Background(), operator.Request{DatasetName: "quickstart", Selected: []string{"nope"}})
	if !apierr.Is(err, apierr.CodeInvalidArguments) {
		t.Errorf("expected INVALID_ARGUMENTS, got %v", err)
	}
}

func TestCountSamples_StoreError(t *testing.T) {
	f := newFakeSamples(1)
	f.err = errors.New("db down")
	_, err := NewCountSamples(f).Execute(context.Background(), operator.Request{DatasetName: "quickstart"})
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestTagSamples_DecodedJSONTags(t *testing.T) {
	f := newFakeSamples(2)
	op := NewTagSamples(f)
	_, err := op.Execute(context.Background(), operator.Request{
		DatasetName: "quickstart",
		Params:      map[string]any{"tags": []any{"reviewed", "good"}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.Join(f.tagged, ",") != "reviewed,good" {
		t.Errorf("tags = %v", f.tagged)
	}
}

func TestTagsSchema_RequiresTags(t *testing.T) {
	op := NewTagSamples(newFakeSamples(0))
	schema, err := op.ResolveInput(context.Background(), operator.Request{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		t.Fatalf("resolve schema: %v", err)
	}
	if err := resolved.Validate(map[string]any{}); err == nil {
		t.Error("missing tags should fail validation")
	}
	if err := resolved.Validate(map[string]any{"tags": []any{}}); err == nil {
		t.Error("empty tags should fail validation")
	}
	if err := resolved.Validate(map[string]any{"tags": []any{"a"}}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
}

// --- Export ---

func TestExportSamples_StreamsBatches(t *testing.T) {
	f := newFakeSamples(5)
	blobs := &fakeBlobs{}
	op := NewExportSamples(f, blobs, "exports")
	op.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	v, err := op.Execute(context.Background(), operator.Request{
		DatasetName: "quickstart",
		Params:      map[string]any{"batch_size": float64(2)},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	stream, ok := v.(operator.Stream)
	if !ok {
		t.Fatalf("expected a stream, got %T", v)
	}

	var progress []operator.Progress
	final, err := operator.DrainEach(context.Background(), stream, func(v any) {
		if p, ok := v.(operator.Progress); ok {
			progress = append(progress, p)
		}
	})
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(progress) != 2 {
		t.Errorf("expected 2 progress updates, got %d", len(progress))
	}

	summary := final.(map[string]any)
	if summary["exported"] != int64(5) {
		t.Errorf("exported = %v", summary["exported"])
	}
	if blobs.key != "exports/quickstart/quickstart-20260301T120000Z.jsonl" {
		t.Errorf("key = %q", blobs.key)
	}
	if lines := strings.Count(string(blobs.data), "\n"); lines != 5 {
		t.Errorf("expected 5 JSONL lines, got %d", lines)
	}
}

func TestExportSamples_RejectsEscapingNames(t *testing.T) {
	for _, name := range []string{"../../other/overwrite.jsonl", "sub/file.jsonl", "..", ".", `..\x.jsonl`} {
		blobs := &fakeBlobs{}
		op := NewExportSamples(newFakeSamples(3), blobs, "exports")
		_, err := op.Execute(context.Background(), operator.Request{
			DatasetName: "quickstart",
			Params:      map[string]any{"name": name},
		})
		if ae := apierr.As(err); ae == nil || ae.Code() != apierr.CodeInvalidArguments {
			t.Errorf("%q: expected INVALID_ARGUMENTS, got %v", name, err)
		}
		if blobs.key != "" {
			t.Errorf("%q: nothing should be written, got key %q", name, blobs.key)
		}
	}
}

func TestExportSamples_ExplicitName(t *testing.T) {
	blobs := &fakeBlobs{}
	op := NewExportSamples(newFakeSamples(1), blobs, "exports")
	v, err := op.Execute(context.Background(), operator.Request{
		DatasetName: "quickstart",
		Params:      map[string]any{"name": "train.jsonl"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := operator.Drain(context.Background(), v.(operator.Stream)); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if blobs.key != "exports/quickstart/train.jsonl" {
		t.Errorf("key = %q", blobs.key)
	}
}

func TestExportSamples_NoBackend(t *testing.T) {
	op := NewExportSamples(newFakeSamples(1), nil, "exports")
	_, err := op.Execute(context.Background(), operator.Request{DatasetName: "quickstart"})
	if !errors.Is(err, ErrNoExportBackend) {
		t.Errorf("expected ErrNoExportBackend, got %v", err)
	}
}

func TestExportSamples_DynamicSchema(t *testing.T) {
	op := NewExportSamples(newFakeSamples(0), nil, "")
	all, _ := op.ResolveInput(context.Background(), operator.Request{DatasetName: "quickstart"})
	sel, _ := op.ResolveInput(context.Background(), operator.Request{DatasetName: "quickstart", Selected: []string{"a", "b"}})
	if all.Description == sel.Description {
		t.Error("schema should reflect the current selection")
	}
	if !strings.Contains(sel.Description, "2 selected") {
		t.Errorf("description = %q", sel.Description)
	}
}
