package operator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrOperatorExists is returned when registering a duplicate URI.
var ErrOperatorExists = errors.New("operator already registered")

// Filter narrows List results. A nil Builtin matches both builtin and
// custom operators; an empty Type matches every type.
type Filter struct {
	Builtin *bool
	Type    Type
}

func (f Filter) match(c Config) bool {
	if f.Builtin != nil && c.Builtin != *f.Builtin {
		return false
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	return true
}

// Registry resolves operator URIs.
type Registry interface {
	Get(ctx context.Context, uri string) (Operator, bool)
	List(ctx context.Context, f Filter) []Operator
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu        sync.RWMutex
	operators map[string]Operator
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{operators: make(map[string]Operator)}
}

// Register adds operators, failing on the first duplicate or empty URI.
func (r *MemoryRegistry) Register(ops ...Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range ops {
		if op == nil {
			return fmt.Errorf("operator is nil")
		}
		uri := op.Config().URI
		if uri == "" {
			return fmt.Errorf("operator URI is required")
		}
		if _, exists := r.operators[uri]; exists {
			return fmt.Errorf("%w: %s", ErrOperatorExists, uri)
		}
		r.operators[uri] = op
	}
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, uri string) (Operator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.operators[uri]
	return op, ok
}

// List returns matching operators sorted by URI.
func (r *MemoryRegistry) List(_ context.Context, f Filter) []Operator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Operator, 0, len(r.operators))
	for _, op := range r.operators {
		if f.match(op.Config()) {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Config().URI < out[j].Config().URI
	})
	return out
}

var _ Registry = (*MemoryRegistry)(nil)
