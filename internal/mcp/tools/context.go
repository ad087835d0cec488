package tools

import (
	"context"
	"log/slog"

	"github.com/maraichr/datasetops/internal/execution"
)

type SetContextParams struct {
	DatasetName     string           `json:"dataset_name" jsonschema:"Name of the dataset to work with"`
	ViewStages      []map[string]any `json:"view_stages,omitempty" jsonschema:"Optional view stages to filter or transform the dataset"`
	SelectedSamples []string         `json:"selected_samples,omitempty" jsonschema:"Optional list of selected sample IDs"`
	SelectedLabels  []map[string]any `json:"selected_labels,omitempty" jsonschema:"Optional list of selected labels"`
	CurrentSample   string           `json:"current_sample,omitempty" jsonschema:"Optional ID of the sample currently being viewed"`
}

type EmptyParams struct{}

type datasetInfo struct {
	NumSamples int    `json:"num_samples"`
	MediaType  string `json:"media_type"`
}

type contextView struct {
	ContextSet  *bool        `json:"context_set,omitempty"`
	DatasetInfo *datasetInfo `json:"dataset_info"`
	execution.Summary
}

func (h *handlers) setContext(ctx context.Context, p SetContextParams) (any, error) {
	sum, err := h.Store.Set(ctx, execution.SetParams{
		DatasetName:     p.DatasetName,
		ViewStages:      p.ViewStages,
		SelectedSamples: p.SelectedSamples,
		SelectedLabels:  p.SelectedLabels,
		CurrentSample:   p.CurrentSample,
	})
	if err != nil {
		return nil, err
	}
	return contextView{DatasetInfo: h.describeInfo(ctx, sum.DatasetName), Summary: sum}, nil
}

func (h *handlers) getContext(ctx context.Context, _ EmptyParams) (any, error) {
	sum, ok := h.Store.Get()
	if !ok {
		return map[string]any{
			"context_set": false,
			"message":     "No context set. Use set_context first.",
		}, nil
	}
	set := true
	return contextView{ContextSet: &set, DatasetInfo: h.describeInfo(ctx, sum.DatasetName), Summary: sum}, nil
}

func (h *handlers) clearContext(_ context.Context, _ EmptyParams) (any, error) {
	h.Store.Clear()
	return map[string]any{"message": "Context cleared"}, nil
}

// describeInfo returns display info for a dataset, or nil if it cannot be loaded.
func (h *handlers) describeInfo(ctx context.Context, name string) *datasetInfo {
	d, err := h.Catalog.Describe(ctx, name)
	if err != nil {
		h.Logger.Warn("describe dataset failed", slog.String("dataset", name), slog.String("error", err.Error()))
		return nil
	}
	return &datasetInfo{NumSamples: d.NumSamples, MediaType: d.MediaType}
}
