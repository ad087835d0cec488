package mcp

import (
	"encoding/json"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maraichr/datasetops/pkg/apierr"
)

// Envelope is the uniform tool response: {success, data, error?, ...extra}.
// A failed envelope always carries a non-empty error.
type Envelope struct {
	Success   bool
	Data      any
	Error     string
	ErrorType string
	Extra     map[string]any
}

// OK wraps a successful result.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Fail renders err as a failed envelope. Structured error fields become
// top-level extras.
func Fail(err error) Envelope {
	e := apierr.As(err)
	if e == nil {
		e = apierr.InternalError(nil)
	}
	return Envelope{
		Error:     e.Message(),
		ErrorType: strings.ToLower(string(e.Code())),
		Extra:     e.Fields(),
	}
}

// From builds an envelope from a handler's return values.
func From(data any, err error) Envelope {
	if err != nil {
		return Fail(err)
	}
	return OK(data)
}

func (env Envelope) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(env.Extra)+4)
	for k, v := range env.Extra {
		m[k] = v
	}
	m["success"] = env.Success
	m["data"] = env.Data
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "Unknown error"
		}
		m["error"] = msg
		if env.ErrorType != "" {
			m["error_type"] = env.ErrorType
		}
	}
	return json.Marshal(m)
}

// Text renders the envelope as indented JSON.
func (env Envelope) Text() string {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		b, _ = json.MarshalIndent(Fail(apierr.InternalError(err)), "", "  ")
	}
	return string(b)
}

// Result converts the envelope into an MCP tool result.
func (env Envelope) Result() *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		IsError: !env.Success,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: env.Text()}},
	}
}
