package provider

import "fmt"

// ErrorCode classifies tool invocation failures
type ErrorCode string

const (
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrToolNotFound        ErrorCode = "TOOL_NOT_FOUND"
	ErrInvocationTimeout   ErrorCode = "INVOCATION_TIMEOUT"
	ErrRemoteToolError     ErrorCode = "REMOTE_TOOL_ERROR"
	ErrInvalidArguments    ErrorCode = "INVALID_ARGUMENTS"
)

// InvocationError is a typed tool invocation failure
type InvocationError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RemoteError is a failure payload returned by the provider itself, as
// opposed to a transport-level failure reaching it.
type RemoteError struct {
	Code    int
	Message string
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote tool error (%d): %s", e.Code, e.Message)
}
