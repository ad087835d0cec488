// Package execution holds the execution context that operator invocations
// and pipelines act on: the dataset, its view stages and the current
// selection.
package execution

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/maraichr/datasetops/internal/catalog"
	"github.com/maraichr/datasetops/internal/operator"
	"github.com/maraichr/datasetops/pkg/apierr"
)

// Context is the state threaded into every invocation.
type Context struct {
	DatasetName     string
	ViewStages      []map[string]any
	SelectedSamples []string
	SelectedLabels  []map[string]any
	CurrentSample   string
}

// Request builds the invocation payload for this context. params is stored
// under Request.Params and never collides with context fields.
func (c Context) Request(params map[string]any) operator.Request {
	if params == nil {
		params = map[string]any{}
	}
	return operator.Request{
		DatasetName:    c.DatasetName,
		View:           append([]map[string]any{}, c.ViewStages...),
		Selected:       append([]string{}, c.SelectedSamples...),
		SelectedLabels: append([]map[string]any{}, c.SelectedLabels...),
		CurrentSample:  c.CurrentSample,
		Params:         params,
	}
}

func (c Context) clone() Context {
	return Context{
		DatasetName:     c.DatasetName,
		ViewStages:      append([]map[string]any(nil), c.ViewStages...),
		SelectedSamples: append([]string(nil), c.SelectedSamples...),
		SelectedLabels:  append([]map[string]any(nil), c.SelectedLabels...),
		CurrentSample:   c.CurrentSample,
	}
}

// Summary reports the shape of a context without its contents.
type Summary struct {
	DatasetName          string `json:"dataset_name"`
	ViewStagesCount      int    `json:"view_stages_count"`
	SelectedSamplesCount int    `json:"selected_samples_count"`
	SelectedLabelsCount  int    `json:"selected_labels_count"`
	HasCurrentSample     bool   `json:"has_current_sample"`
}

func (c Context) Summary() Summary {
	return Summary{
		DatasetName:          c.DatasetName,
		ViewStagesCount:      len(c.ViewStages),
		SelectedSamplesCount: len(c.SelectedSamples),
		SelectedLabelsCount:  len(c.SelectedLabels),
		HasCurrentSample:     c.CurrentSample != "",
	}
}

// SetParams are the inputs to Store.Set.
type SetParams struct {
	DatasetName     string
	ViewStages      []map[string]any
	SelectedSamples []string
	SelectedLabels  []map[string]any
	CurrentSample   string
}

// Store owns the single current execution context. All access goes through
// its mutex; callers receive copies.
type Store struct {
	catalog catalog.Catalog
	logger  *slog.Logger

	mu  sync.RWMutex
	cur *Context
}

func NewStore(c catalog.Catalog, logger *slog.Logger) *Store {
	return &Store{catalog: c, logger: logger}
}

// Set verifies the dataset exists and replaces the whole context. On any
// failure the stored context is left untouched.
func (s *Store) Set(ctx context.Context, p SetParams) (Summary, error) {
	name := strings.TrimSpace(p.DatasetName)
	if name == "" {
		return Summary{}, apierr.InvalidArguments("dataset_name is required")
	}

	exists, err := s.catalog.Exists(ctx, name)
	if err != nil {
		return Summary{}, apierr.InternalError(err)
	}
	if !exists {
		return Summary{}, apierr.DatasetNotFound(name)
	}

	next := Context{
		DatasetName:     name,
		ViewStages:      append([]map[string]any{}, p.ViewStages...),
		SelectedSamples: dedupe(p.SelectedSamples),
		SelectedLabels:  append([]map[string]any{}, p.SelectedLabels...),
		CurrentSample:   p.CurrentSample,
	}

	s.mu.Lock()
	s.cur = &next
	s.mu.Unlock()

	s.logger.Info("execution context set",
		slog.String("dataset", name),
		slog.Int("view_stages", len(next.ViewStages)),
		slog.Int("selected_samples", len(next.SelectedSamples)))

	return next.Summary(), nil
}

// Get returns the current summary; ok is false when no context is set.
func (s *Store) Get() (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return Summary{}, false
	}
	return s.cur.Summary(), true
}

// Snapshot returns a copy of the current context.
func (s *Store) Snapshot() (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return Context{}, false
	}
	return s.cur.clone(), true
}

// Require returns a snapshot or CONTEXT_NOT_SET.
func (s *Store) Require() (Context, error) {
	c, ok := s.Snapshot()
	if !ok {
		return Context{}, apierr.ContextNotSet()
	}
	return c, nil
}

// Clear resets to the empty context. Safe to call repeatedly.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cur = nil
	s.mu.Unlock()
	s.logger.Info("execution context cleared")
}

// dedupe collapses repeated IDs, keeping first-seen order.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
