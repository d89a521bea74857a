// internal/macro/errors.go
package macro

import "fmt"

// Error codes surfaced in HTTP error bodies.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidParameters = "INVALID_PARAMETERS"
	CodeExecutionError    = "EXECUTION_ERROR"
)

// NotFoundError reports a macro name absent from the current catalog
// snapshot, including the case where a generated route outlived its macro.
type NotFoundError struct {
	Macro string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("macro %q not found", e.Macro)
}

// ParameterError reports caller-supplied parameter data that is missing or
// failed coercion. It always names the offending parameter.
type ParameterError struct {
	Macro     string
	Parameter string
	Message   string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("macro %q: parameter %q: %s", e.Macro, e.Parameter, e.Message)
}

// ExecutionError reports an engine-level failure after parameters were
// accepted. The engine message is passed through verbatim; it originates
// from a trusted macro definition, not re-echoed caller input.
type ExecutionError struct {
	Macro string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to execute macro %q: %v", e.Macro, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
