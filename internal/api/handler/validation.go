package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/maraichr/datasetops/pkg/apierr"
)

const maxArgumentsBytes = 1 << 20

// readArguments returns the request body as tool arguments. An empty body
// is treated as an empty object; anything else must be a JSON object.
func readArguments(r *http.Request) (json.RawMessage, *apierr.Error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxArgumentsBytes+1))
	if err != nil {
		return nil, apierr.InvalidRequestBody(err.Error())
	}
	if len(body) > maxArgumentsBytes {
		return nil, apierr.InvalidRequestBody("arguments exceed 1 MiB")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if body[0] != '{' || !json.Valid(body) {
		return nil, apierr.InvalidRequestBody("arguments must be a JSON object")
	}
	return json.RawMessage(body), nil
}
