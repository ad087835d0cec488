package catalog

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Catalog.
type Memory struct {
	mu       sync.RWMutex
	datasets map[string]Dataset
	tags     map[string]map[string]int64
}

func NewMemory(datasets ...Dataset) *Memory {
	m := &Memory{
		datasets: make(map[string]Dataset, len(datasets)),
		tags:     make(map[string]map[string]int64),
	}
	for _, d := range datasets {
		m.datasets[d.Name] = d
	}
	return m
}

// Put adds or replaces a dataset.
func (m *Memory) Put(d Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[d.Name] = d
}

// PutTagCounts sets the sample tag counts reported for a dataset.
func (m *Memory) PutTagCounts(name string, counts map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[name] = counts
}

func (m *Memory) TagCounts(_ context.Context, name string) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.datasets[name]; !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]int64, len(m.tags[name]))
	for k, v := range m.tags[name] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Exists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.datasets[name]
	return ok, nil
}

func (m *Memory) Describe(_ context.Context, name string) (Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.datasets[name]
	if !ok {
		return Dataset{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) List(_ context.Context) ([]Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Dataset, 0, len(m.datasets))
	for _, d := range m.datasets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ Catalog = (*Memory)(nil)
