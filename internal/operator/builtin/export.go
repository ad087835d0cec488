package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/pkg/apierr"
)

const (
	defaultBatchSize = 100
	maxBatchSize     = 10000
)

// ErrNoExportBackend is returned when export_samples runs without a blob store.
var ErrNoExportBackend = errors.New("no export backend configured (set EXPORT_BACKEND)")

// ExportSamples writes the targeted samples as JSON Lines to a blob store.
// It streams one progress value per batch and finishes with a summary.
type ExportSamples struct {
	samples Samples
	blobs   BlobStore
	prefix  string
	now     func() time.Time
}

func NewExportSamples(samples Samples, blobs BlobStore, prefix string) *ExportSamples {
	return &ExportSamples{samples: samples, blobs: blobs, prefix: prefix, now: time.Now}
}

func (e *ExportSamples) Config() operator.Config {
	return config(URIExportSamples, "Export samples",
		"Exports samples as JSON Lines to the configured blob store", true)
}

// ResolveInput describes what will be exported for the current selection.
func (e *ExportSamples) ResolveInput(_ context.Context, req operator.Request) (*jsonschema.Schema, error) {
	target := "every sample in " + req.DatasetName
	if n := len(req.Selected); n > 0 {
		target = fmt.Sprintf("%d selected samples", n)
	}
	return &jsonschema.Schema{
		Type:        "object",
		Description: "Exports " + target,
		Properties: map[string]*jsonschema.Schema{
			"batch_size": {
				Type:        "integer",
				Description: "Samples read per batch",
				Minimum:     jsonschema.Ptr(1.0),
				Maximum:     jsonschema.Ptr(float64(maxBatchSize)),
			},
			"name": {
				Type:        "string",
				Description: "Object name without path separators; generated when empty",
			},
		},
	}, nil
}

type exportRecord struct {
	ID       uuid.UUID       `json:"id"`
	Filepath string          `json:"filepath"`
	Tags     []string        `json:"tags"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (e *ExportSamples) Execute(ctx context.Context, req operator.Request) (any, error) {
	if e.blobs == nil {
		return nil, ErrNoExportBackend
	}
	ids, err := targetIDs(req)
	if err != nil {
		return nil, err
	}
	name, _ := req.Params["name"].(string)
	if !validObjectName(name) {
		return nil, apierr.InvalidArguments(fmt.Sprintf("invalid export name %q: must be a single path element", name))
	}
	total, err := e.samples.CountSamples(ctx, req.DatasetName, ids)
	if err != nil {
		return nil, fmt.Errorf("count samples: %w", err)
	}

	batch := intParam(req.Params, "batch_size", defaultBatchSize)
	if batch < 1 || batch > maxBatchSize {
		batch = defaultBatchSize
	}
	if name == "" {
		name = fmt.Sprintf("%s-%s.jsonl", req.DatasetName, e.now().UTC().Format("20060102T150405Z"))
	}
	key := path.Join(e.prefix, req.DatasetName, name)

	var (
		buf      bytes.Buffer
		enc      = json.NewEncoder(&buf)
		after    uuid.UUID
		exported int64
		done     bool
	)

	return operator.FuncStream(func(ctx context.Context) (any, bool, error) {
		if done {
			return nil, false, nil
		}

		page, err := e.samples.ListSamples(ctx, req.DatasetName, ids, after, int32(batch))
		if err != nil {
			return nil, false, fmt.Errorf("list samples: %w", err)
		}
		for _, s := range page {
			rec := exportRecord{ID: s.ID, Filepath: s.Filepath, Tags: s.Tags}
			if len(s.Metadata) > 0 {
				rec.Metadata = s.Metadata
			}
			if err := enc.Encode(rec); err != nil {
				return nil, false, fmt.Errorf("encode sample %s: %w", s.ID, err)
			}
			after = s.ID
		}
		exported += int64(len(page))

		if len(page) == batch {
			return progress(exported, total), true, nil
		}

		done = true
		location, err := e.blobs.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/x-ndjson")
		if err != nil {
			return nil, false, fmt.Errorf("upload export: %w", err)
		}
		return map[string]any{
			"dataset_name": req.DatasetName,
			"exported":     exported,
			"location":     location,
			"format":       "jsonl",
		}, true, nil
	}), nil
}

// validObjectName reports whether name stays inside the dataset's export
// folder. Empty is allowed and replaced by a generated name.
func validObjectName(name string) bool {
	if name == "" {
		return true
	}
	return !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}

func progress(done, total int64) operator.Progress {
	p := operator.Progress{Label: fmt.Sprintf("Exported %d/%d samples", done, total)}
	if total > 0 {
		p.Progress = float64(done) / float64(total)
		if p.Progress > 1 {
			p.Progress = 1
		}
	}
	return p
}

var _ operator.Operator = (*ExportSamples)(nil)
