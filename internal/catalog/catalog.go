// Package catalog describes the dataset backend as seen by the execution
// context store and the dataset tools.
package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Describe when the dataset does not exist.
var ErrNotFound = errors.New("dataset not found")

// Dataset is a summary of one dataset in the backend.
type Dataset struct {
	Name       string         `json:"name"`
	MediaType  string         `json:"media_type"`
	NumSamples int            `json:"num_samples"`
	Persistent bool           `json:"persistent"`
	Tags       []string       `json:"tags"`
	Info       map[string]any `json:"info,omitempty"`
}

// Catalog resolves dataset identities.
type Catalog interface {
	Exists(ctx context.Context, name string) (bool, error)
	Describe(ctx context.Context, name string) (Dataset, error)
	List(ctx context.Context) ([]Dataset, error)
	// TagCounts returns the number of samples carrying each sample tag.
	TagCounts(ctx context.Context, name string) (map[string]int64, error)
}
