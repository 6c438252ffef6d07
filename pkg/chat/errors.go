package chat

import "fmt"

// BadRequestError reports a client request the pipeline cannot accept:
// unrecognizable dialect, missing model, or a body that fails translation.
type BadRequestError struct {
	// Message is the client-safe description
	Message string

	// Cause is the underlying error, if any
	Cause error
}

// Error implements the error interface.
func (e *BadRequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain support.
func (e *BadRequestError) Unwrap() error {
	return e.Cause
}
