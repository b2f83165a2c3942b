package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx answer from the server.
type Error struct {
	Status  int
	Message string
	// Set on a failed send: the conversation and the stored user message.
	ConversationID uint
	UserMessage    *Message
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *Error) IsUpstream() bool     { return e.Status == http.StatusBadGateway }
func (e *Error) IsNotFound() bool     { return e.Status == http.StatusNotFound }
func (e *Error) IsUnauthorized() bool { return e.Status == http.StatusUnauthorized }

// AsError unwraps err into an *Error when the server produced it.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

func IsUpstream(err error) bool {
	e, ok := AsError(err)
	return ok && e.IsUpstream()
}

func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.IsNotFound()
}

func IsUnauthorized(err error) bool {
	e, ok := AsError(err)
	return ok && e.IsUnauthorized()
}
