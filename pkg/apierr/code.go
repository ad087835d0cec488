package apierr

// Code is a machine-readable error kind returned in tool envelopes and API responses.
type Code string

// Common errors.
const (
	CodeInvalidArguments Code = "INVALID_ARGUMENTS"
	CodeInternalError    Code = "INTERNAL_ERROR"
	CodeUnknownTool      Code = "UNKNOWN_TOOL"
)

// HTTP surface errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeForbidden          Code = "FORBIDDEN"
)

// Execution context errors.
const (
	CodeContextNotSet Code = "CONTEXT_NOT_SET"
)

// Lookup errors.
const (
	CodeDatasetNotFound  Code = "DATASET_NOT_FOUND"
	CodeOperatorNotFound Code = "OPERATOR_NOT_FOUND"
)

// Pipeline validation errors.
const (
	CodeValidationFailed Code = "VALIDATION_FAILED"
)

// Operator execution errors.
const (
	CodeMissingDependency Code = "MISSING_DEPENDENCY"
	CodeExecutionFailed   Code = "EXECUTION_FAILED"
)

// Delegation errors.
const (
	CodeDelegationUnavailable Code = "DELEGATION_UNAVAILABLE"
	CodeDelegationFailed      Code = "DELEGATION_FAILED"
)

// Health errors.
const (
	CodeDatabaseNotReady Code = "DATABASE_NOT_READY"
)
