package operator

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Func is an Operator assembled from a config, a static input schema and
// an execute function.
type Func struct {
	Cfg   Config
	Input *jsonschema.Schema
	Run   func(ctx context.Context, req Request) (any, error)
}

func (f *Func) Config() Config { return f.Cfg }

func (f *Func) ResolveInput(context.Context, Request) (*jsonschema.Schema, error) {
	return f.Input, nil
}

func (f *Func) Execute(ctx context.Context, req Request) (any, error) {
	return f.Run(ctx, req)
}

var _ Operator = (*Func)(nil)
