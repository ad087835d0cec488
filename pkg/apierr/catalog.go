package apierr

import (
	"fmt"
	"net/http"
)

// --- Common ---

func InvalidArguments(message string) *Error {
	return New(CodeInvalidArguments, http.StatusBadRequest, message)
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

func UnknownTool(name string) *Error {
	return New(CodeUnknownTool, http.StatusNotFound, "Unknown tool: "+name)
}

// --- HTTP surface ---

func InvalidRequestBody(reason string) *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body: "+reason)
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, http.StatusForbidden, message)
}

// --- Execution context ---

func ContextNotSet() *Error {
	return New(CodeContextNotSet, http.StatusConflict, "Context not set. Use set_context first.")
}

func SchemaContextNotSet() *Error {
	return New(CodeContextNotSet, http.StatusConflict, "Context not set. Use set_context first to get dynamic schema.")
}

// --- Lookup ---

func DatasetNotFound(name string) *Error {
	return New(CodeDatasetNotFound, http.StatusNotFound, fmt.Sprintf("Dataset '%s' does not exist", name))
}

func OperatorNotFound(uri string) *Error {
	return New(CodeOperatorNotFound, http.StatusNotFound, fmt.Sprintf("Operator '%s' not found", uri))
}

// --- Pipeline ---

func EmptyPipeline() *Error {
	return New(CodeValidationFailed, http.StatusBadRequest, "Pipeline must have at least one stage")
}

func StageMissingURI(index int) *Error {
	return New(CodeValidationFailed, http.StatusBadRequest, fmt.Sprintf("Stage %d is missing 'operator_uri'", index)).
		WithField("stage_index", index)
}

func StageOperatorNotFound(index int, uri string) *Error {
	return New(CodeValidationFailed, http.StatusBadRequest, fmt.Sprintf("Stage %d operator '%s' not found", index, uri)).
		WithField("stage_index", index)
}

// --- Operator execution ---

func MissingDependency(uri, pkg, installCommand string, cause error) *Error {
	return Wrap(CodeMissingDependency, http.StatusFailedDependency,
		fmt.Sprintf("Operator '%s' requires '%s' which is not installed", uri, pkg), cause).
		WithField("missing_package", pkg).
		WithField("install_command", installCommand)
}

func ExecutionFailed(cause error, trace string) *Error {
	e := Wrap(CodeExecutionFailed, http.StatusInternalServerError, cause.Error(), cause)
	if trace != "" {
		e = e.WithField("traceback", trace)
	}
	return e
}

// --- Delegation ---

func DelegationUnavailable() *Error {
	return New(CodeDelegationUnavailable, http.StatusServiceUnavailable,
		"Delegated operations require a configured delegation queue (VALKEY_ENABLED=true)")
}

func DelegationFailed(cause error) *Error {
	return Wrap(CodeDelegationFailed, http.StatusBadGateway, "Failed to queue delegated operation", cause)
}

// --- Health ---

func DatabaseNotReady() *Error {
	return New(CodeDatabaseNotReady, http.StatusServiceUnavailable, "Database not ready")
}
