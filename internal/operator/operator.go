// Package operator defines the registry collaborator: operators addressed by
// URI, each with a declared input schema and execution-mode flags.
package operator

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Type distinguishes plain operators from UI panels.
type Type string

const (
	TypeOperator Type = "operator"
	TypePanel    Type = "panel"
)

// Config is the static description of an operator.
type Config struct {
	URI            string `json:"uri"`
	Name           string `json:"name"`
	Label          string `json:"label"`
	Description    string `json:"description"`
	PluginName     string `json:"plugin_name"`
	Builtin        bool   `json:"builtin"`
	Dynamic        bool   `json:"dynamic"`
	Type           Type   `json:"type"`
	AllowImmediate bool   `json:"allow_immediate_execution"`
	AllowDelegated bool   `json:"allow_delegated_execution"`
}

// Request is the full invocation payload: the execution context fields plus
// the operator's own arguments under Params.
type Request struct {
	DatasetName      string           `json:"dataset_name"`
	View             []map[string]any `json:"view"`
	Selected         []string         `json:"selected"`
	SelectedLabels   []map[string]any `json:"selected_labels"`
	CurrentSample    string           `json:"current_sample,omitempty"`
	Params           map[string]any   `json:"params"`
	Delegated        bool             `json:"delegated,omitempty"`
	DelegationTarget string           `json:"delegation_target,omitempty"`
}

// Clone returns a copy of r whose slices and maps can be modified freely.
// Nested opaque descriptors are shared.
func (r Request) Clone() Request {
	out := r
	out.View = append([]map[string]any(nil), r.View...)
	out.Selected = append([]string(nil), r.Selected...)
	out.SelectedLabels = append([]map[string]any(nil), r.SelectedLabels...)
	out.Params = make(map[string]any, len(r.Params))
	for k, v := range r.Params {
		out.Params[k] = v
	}
	return out
}

// Operator is an invocable capability.
type Operator interface {
	Config() Config

	// ResolveInput returns the input schema for the given request context.
	// Dynamic operators may vary it with the dataset or selection.
	ResolveInput(ctx context.Context, req Request) (*jsonschema.Schema, error)

	// Execute runs the operator. The returned value may be a Stream, in
	// which case the caller drains it.
	Execute(ctx context.Context, req Request) (any, error)
}

// LastSegment returns the part of a URI after the final "/".
func LastSegment(uri string) string {
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
