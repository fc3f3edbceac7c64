package session

import (
	"errors"
	"fmt"

	"policyqa-cli/internal/api"
)

var (
	ErrTransport           = errors.New("transport failure")
	ErrApplication         = errors.New("server error")
	ErrIncompleteStream    = errors.New("incomplete stream")
	ErrUnknownConversation = errors.New("conversation id unknown at commit")
	ErrIllegalTransition   = errors.New("illegal phase transition")
)

// ApplicationError is an error frame sent by the server.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

func (e *ApplicationError) Is(target error) bool {
	return target == ErrApplication
}

// Reason turns a failure into the one-line message shown to the user.
func Reason(err error) string {
	if err == nil {
		return ""
	}

	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		if appErr.Message == "" {
			return "The server reported an error."
		}
		return appErr.Message
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message()
	}
	switch {
	case errors.Is(err, ErrIncompleteStream):
		return "The answer stream ended before it was complete. Please try again."
	case errors.Is(err, ErrUnknownConversation):
		return "The server did not say which conversation this answer belongs to."
	case errors.Is(err, ErrTransport):
		return "Could not reach the server. Please try again."
	}
	return err.Error()
}
