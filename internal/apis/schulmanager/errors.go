package schulmanager

import (
	"errors"
	"fmt"
)

var (
	// ErrAPI matches every failure of the JSON API.
	ErrAPI = errors.New("schulmanager api error")
	// ErrAuth is the subset of ErrAPI caused by an invalid token.
	ErrAuth = errors.New("schulmanager invalid token")
)

// Error carries the details of a failed API call. It matches ErrAPI and its
// Kind with errors.Is.
type Error struct {
	Kind error
	// StatusCode is 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == ErrAPI || target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func apiError(status int, err error) error {
	return &Error{Kind: ErrAPI, StatusCode: status, Err: err}
}

func authError(status int) error {
	return &Error{Kind: ErrAuth, StatusCode: status}
}
