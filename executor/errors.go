package executor

import (
	"errors"
	"net/http"
)

// Error kinds. Every error returned by Execute wraps exactly one of them.
var (
	// ErrInvalidRequest is a caller mistake: missing fields or an unsupported language.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrResource means the workspace could not be prepared.
	ErrResource = errors.New("resource error")
	// ErrRuntime means the sandbox could not be launched, attached to or read.
	ErrRuntime = errors.New("runtime error")
	// ErrUnavailable means no execution slot could be obtained.
	ErrUnavailable = errors.New("executor unavailable")
)

// Messages returned to callers for invalid requests.
const (
	MsgMissingFields       = "Language and code are required"
	MsgUnsupportedLanguage = "Unsupported language"
)

// Error is an engine failure. Message is what callers see.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(msg string) error {
	return &Error{Kind: ErrInvalidRequest, Message: msg}
}

// StatusCode maps an Execute error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
