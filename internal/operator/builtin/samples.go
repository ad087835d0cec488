package builtin

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/maraichr/datasetops/internal/operator"
)

func tagsSchema(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"tags"},
		Properties: map[string]*jsonschema.Schema{
			"tags": {
				Type:        "array",
				Description: description,
				MinItems:    jsonschema.Ptr(1),
				Items:       &jsonschema.Schema{Type: "string", MinLength: jsonschema.Ptr(1)},
			},
		},
	}
}

func NewCountSamples(samples Samples) operator.Operator {
	return &operator.Func{
		Cfg: config(URICountSamples, "Count samples",
			"Counts the selected samples, or every sample when nothing is selected", false),
		Input: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
		Run: func(ctx context.Context, req operator.Request) (any, error) {
			ids, err := targetIDs(req)
			if err != nil {
				return nil, err
			}
			n, err := samples.CountSamples(ctx, req.DatasetName, ids)
			if err != nil {
				return nil, fmt.Errorf("count samples: %w", err)
			}
			return map[string]any{"dataset_name": req.DatasetName, "count": n}, nil
		},
	}
}

func NewTagSamples(samples Samples) operator.Operator {
	return &operator.Func{
		Cfg: config(URITagSamples, "Tag samples",
			"Adds tags to the selected samples, or to every sample when nothing is selected", false),
		Input: tagsSchema("Tags to add"),
		Run: func(ctx context.Context, req operator.Request) (any, error) {
			ids, err := targetIDs(req)
			if err != nil {
				return nil, err
			}
			tags := stringSlice(req.Params["tags"])
			n, err := samples.TagSamples(ctx, req.DatasetName, ids, tags)
			if err != nil {
				return nil, fmt.Errorf("tag samples: %w", err)
			}
			return map[string]any{"tagged": n, "tags": tags}, nil
		},
	}
}

func NewUntagSamples(samples Samples) operator.Operator {
	return &operator.Func{
		Cfg: config(URIUntagSamples, "Untag samples",
			"Removes tags from the selected samples, or from every sample when nothing is selected", false),
		Input: tagsSchema("Tags to remove"),
		Run: func(ctx context.Context, req operator.Request) (any, error) {
			ids, err := targetIDs(req)
			if err != nil {
				return nil, err
			}
			tags := stringSlice(req.Params["tags"])
			n, err := samples.UntagSamples(ctx, req.DatasetName, ids, tags)
			if err != nil {
				return nil, fmt.Errorf("untag samples: %w", err)
			}
			return map[string]any{"untagged": n, "tags": tags}, nil
		},
	}
}
