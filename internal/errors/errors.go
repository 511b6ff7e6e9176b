// Package errors provides structured error types for the gdbserver-dap bridge.
// These errors carry a machine-readable code, an operator-facing message and,
// where useful, a hint on how to fix the problem.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Launch errors
	CodeSpawnFailed   ErrorCode = "SPAWN_FAILED"
	CodeLaunchTimeout ErrorCode = "LAUNCH_TIMEOUT"
	CodeServerError   ErrorCode = "SERVER_ERROR"
	CodeServerExited  ErrorCode = "SERVER_EXITED"
	CodeNoFreePort    ErrorCode = "NO_FREE_PORT"

	// Symbol errors
	CodeSymbolLoadFailed ErrorCode = "SYMBOL_LOAD_FAILED"

	// MI errors
	CodeMICommandFailed ErrorCode = "MI_COMMAND_FAILED"
	CodeDetachFailed    ErrorCode = "DETACH_FAILED"

	// Request errors
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidHandle    ErrorCode = "INVALID_HANDLE"
	CodeNotStopped       ErrorCode = "NOT_STOPPED"
	CodeInvalidState     ErrorCode = "INVALID_STATE"
)

// DebugError is a structured error type that includes helpful information
// for the operator to understand what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is the underlying tool's message, kept verbatim
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// --- Launch Errors ---

// SpawnFailed is returned when the OS could not start a child process
func SpawnFailed(command string, err error) *DebugError {
	return &DebugError{
		Code:    CodeSpawnFailed,
		Message: fmt.Sprintf("failed to start %s: %v", command, err),
		Hint:    "Check that the gdb server is installed and that serverpath points to it.",
		Cause:   err,
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// LaunchTimeout is returned when the gdb server never reported readiness
func LaunchTimeout() *DebugError {
	return &DebugError{
		Code:    CodeLaunchTimeout,
		Message: "Timeout waiting for gdb server to start",
	}
}

// ServerReported wraps an error line printed by the gdb server
func ServerReported(line string) *DebugError {
	return &DebugError{
		Code:    CodeServerError,
		Message: line,
	}
}

// ServerExited is returned when the gdb server exits before becoming ready
func ServerExited(err error) *DebugError {
	msg := "gdb server exited before it was ready"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &DebugError{
		Code:    CodeServerExited,
		Message: msg,
		Cause:   err,
	}
}

// NoFreePort is returned when a whole port range is occupied
func NoFreePort(start, length int) *DebugError {
	return &DebugError{
		Code:    CodeNoFreePort,
		Message: fmt.Sprintf("no free TCP port in range %d-%d", start, start+length-1),
		Hint:    "Stop other debug sessions or change the port range in the configuration.",
		Details: map[string]interface{}{
			"start":  start,
			"length": length,
		},
	}
}

// --- Symbol Errors ---

// SymbolLoadFailed wraps a symbol-dump tool failure
func SymbolLoadFailed(binary string, err error) *DebugError {
	return &DebugError{
		Code:    CodeSymbolLoadFailed,
		Message: fmt.Sprintf("failed to load symbols from %s: %v", binary, err),
		Hint:    "Global and static variables will not be available. Check objdumpPath.",
		Cause:   err,
		Details: map[string]interface{}{
			"binary": binary,
		},
	}
}

// --- MI Errors ---

// MICommandFailed wraps an ^error reply from gdb
func MICommandFailed(command, msg string) *DebugError {
	return &DebugError{
		Code:    CodeMICommandFailed,
		Message: msg,
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// --- Request Errors ---

// InvalidParameter creates an error for invalid request arguments
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
		},
	}
}

// InvalidHandle is returned for a variablesReference or frame id this session never issued
func InvalidHandle(kind string, id int) *DebugError {
	return &DebugError{
		Code:    CodeInvalidHandle,
		Message: fmt.Sprintf("unknown %s %d", kind, id),
		Hint:    "Handles are invalidated whenever the target resumes; request a fresh stack trace.",
	}
}

// InvalidState is returned when a request arrives in the wrong session state
func InvalidState(request, state string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("%s is not valid while the session is %s", request, state),
	}
}

// NotStopped is returned for requests that need a halted target
func NotStopped(request string) *DebugError {
	return &DebugError{
		Code:    CodeNotStopped,
		Message: fmt.Sprintf("%s requires the target to be stopped", request),
		Hint:    "Pause the target first.",
	}
}

// DetachFailed wraps a failed -target-detach during disconnect
func DetachFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDetachFailed,
		Message: fmt.Sprintf("failed to detach from target: %v", err),
		Cause:   err,
	}
}

// Message returns the operator-facing message of err without any hint. It is
// what a DAP error response carries.
func Message(err error) string {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// HasCode reports whether err is a DebugError with the given code
func HasCode(err error, code ErrorCode) bool {
	var de *DebugError
	return stderrors.As(err, &de) && de.Code == code
}
