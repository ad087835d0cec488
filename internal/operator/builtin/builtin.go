// Package builtin provides the operators shipped with datasetops under the
// @datasetops/core plugin.
package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/internal/store/postgres"
	"github.com/maraichr/datasetops/pkg/apierr"
)

const PluginName = "@datasetops/core"

const (
	URICountSamples  = PluginName + "/count_samples"
	URITagSamples    = PluginName + "/tag_samples"
	URIUntagSamples  = PluginName + "/untag_samples"
	URIExportSamples = PluginName + "/export_samples"
)

// Samples is the sample access the builtins need. A nil or empty ids slice
// targets the whole dataset.
type Samples interface {
	CountSamples(ctx context.Context, dataset string, ids []uuid.UUID) (int64, error)
	TagSamples(ctx context.Context, dataset string, ids []uuid.UUID, tags []string) (int64, error)
	UntagSamples(ctx context.Context, dataset string, ids []uuid.UUID, tags []string) (int64, error)
	ListSamples(ctx context.Context, dataset string, ids []uuid.UUID, after uuid.UUID, limit int32) ([]postgres.Sample, error)
}

// BlobStore receives exported files and returns where they were written.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// Register adds every builtin operator to reg. blobs may be nil, in which
// case export_samples fails at execution time.
func Register(reg *operator.MemoryRegistry, samples Samples, blobs BlobStore, exportPrefix string) error {
	return reg.Register(
		NewCountSamples(samples),
		NewTagSamples(samples),
		NewUntagSamples(samples),
		NewExportSamples(samples, blobs, exportPrefix),
	)
}

func config(uri, label, description string, dynamic bool) operator.Config {
	return operator.Config{
		URI:            uri,
		Name:           operator.LastSegment(uri),
		Label:          label,
		Description:    description,
		PluginName:     PluginName,
		Builtin:        true,
		Dynamic:        dynamic,
		Type:           operator.TypeOperator,
		AllowImmediate: true,
		AllowDelegated: true,
	}
}

// targetIDs parses the selection. An empty selection targets the dataset.
func targetIDs(req operator.Request) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(req.Selected))
	for _, s := range req.Selected {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, apierr.InvalidArguments(fmt.Sprintf("invalid sample id %q", s))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// stringSlice accepts both decoded JSON arrays and Go string slices.
func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// intParam reads a JSON number param, falling back when absent.
func intParam(params map[string]any, key string, fallback int) int {
	switch t := params[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	}
	return fallback
}
