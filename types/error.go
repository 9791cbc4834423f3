package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Graph construction error codes. These surface immediately at
// registration or compile time, never during a run.
const (
	ErrDuplicateNode ErrorCode = "DUPLICATE_NODE"
	ErrUnknownNode   ErrorCode = "UNKNOWN_NODE"
	ErrInvalidGraph  ErrorCode = "INVALID_GRAPH"
)

// Execution error codes.
const (
	ErrInvalidRoute      ErrorCode = "INVALID_ROUTE"
	ErrNodeExecution     ErrorCode = "NODE_EXECUTION"
	ErrMaxStepsExceeded  ErrorCode = "MAX_STEPS_EXCEEDED"
	ErrApprovalDenied    ErrorCode = "APPROVAL_DENIED"
	ErrCancelled         ErrorCode = "CANCELLED"
	ErrRunNotFound       ErrorCode = "RUN_NOT_FOUND"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Checkpoint error codes.
const (
	ErrNoCheckpoint       ErrorCode = "NO_CHECKPOINT"
	ErrCheckpointConflict ErrorCode = "CHECKPOINT_CONFLICT"
)

// Error represents a structured engine error with code, message, and
// execution context. RunID, Step, and Node are populated for errors
// surfaced during a run so callers can locate the failure and resume
// after fixing the underlying cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	RunID   string    `json:"run_id,omitempty"`
	Step    int       `json:"step,omitempty"`
	Node    string    `json:"node,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Node != "" {
		msg += fmt.Sprintf(" (run=%s step=%d node=%s)", e.RunID, e.Step, e.Node)
	} else if e.RunID != "" {
		msg += fmt.Sprintf(" (run=%s)", e.RunID)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRun attaches run context to the error.
func (e *Error) WithRun(runID string, step int) *Error {
	e.RunID = runID
	e.Step = step
	return e
}

// WithNode attaches the failing node name to the error.
func (e *Error) WithNode(node string) *Error {
	e.Node = node
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given engine error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
