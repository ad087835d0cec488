package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/maraichr/datasetops/internal/catalog"
	"github.com/maraichr/datasetops/pkg/apierr"
)

type LoadDatasetParams struct {
	Name string `json:"name" jsonschema:"Name of the dataset"`
}

// maxValueCounts caps how many distinct values a field may have before its
// value counts are left out of a summary.
const maxValueCounts = 100

func (h *handlers) listDatasets(ctx context.Context, _ EmptyParams) (any, error) {
	datasets, err := h.Catalog.List(ctx)
	if err != nil {
		return nil, apierr.InternalError(err)
	}
	if datasets == nil {
		datasets = []catalog.Dataset{}
	}
	return map[string]any{"count": len(datasets), "datasets": datasets}, nil
}

func (h *handlers) loadDataset(ctx context.Context, p LoadDatasetParams) (any, error) {
	return h.describe(ctx, p.Name)
}

func (h *handlers) datasetSummary(ctx context.Context, p LoadDatasetParams) (any, error) {
	d, err := h.describe(ctx, p.Name)
	if err != nil {
		return nil, err
	}
	counts, err := h.Catalog.TagCounts(ctx, d.Name)
	if err != nil {
		return nil, apierr.InternalError(err)
	}

	tagStats := make(map[string]int64, len(d.Tags))
	for _, tag := range d.Tags {
		tagStats[tag] = counts[tag]
	}
	valueCounts := map[string]any{}
	if len(counts) > 0 && len(counts) < maxValueCounts {
		valueCounts["tags"] = counts
	}

	return map[string]any{
		"name":        d.Name,
		"media_type":  d.MediaType,
		"num_samples": d.NumSamples,
		"persistent":  d.Persistent,
		"tags":        d.Tags,
		"info":        d.Info,
		"stats": map[string]any{
			"total_samples": d.NumSamples,
			"tags":          tagStats,
		},
		"value_counts": valueCounts,
	}, nil
}

func (h *handlers) describe(ctx context.Context, raw string) (catalog.Dataset, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return catalog.Dataset{}, apierr.InvalidArguments("name is required")
	}
	d, err := h.Catalog.Describe(ctx, name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Dataset{}, apierr.DatasetNotFound(name)
		}
		return catalog.Dataset{}, apierr.InternalError(err)
	}
	return d, nil
}
