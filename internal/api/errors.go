package api

import (
	"errors"
	"fmt"
)

// Kind classifies a failed call.
type Kind int

const (
	// NetworkFailure: no response was received (transport error, timeout, cancellation).
	NetworkFailure Kind = iota + 1
	// ServerError: a response arrived with a non-success status or an unreadable body.
	ServerError
	// NotFound: a lookup produced no record.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case NetworkFailure:
		return "network"
	case ServerError:
		return "server"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method that fails.
// Message holds the server-supplied "message" field when there was one.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for NetworkFailure
	Message string // server message, may be empty
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// ServerMessage returns the server-supplied message carried by err, if any.
func ServerMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// errorBody is the optional JSON body of an error response.
type errorBody struct {
	Message string `json:"message"`
}
