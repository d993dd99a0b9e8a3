package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound marks a missing resource
var ErrNotFound = errors.New("not found")

// ClientError is a failure caused by the caller's input
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return e.Message
}

// NewClientError creates a client error with a formatted message
func NewClientError(format string, args ...interface{}) *ClientError {
	return &ClientError{Message: fmt.Sprintf(format, args...)}
}

// StatusError carries an explicit HTTP status
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// NotFound returns a 404 error with a fixed message
func NotFound(message string) error {
	return &StatusError{Status: http.StatusNotFound, Message: message}
}

// classify maps an operation error to a status code and the message shown
// to the caller
func classify(err error) (int, string) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status, statusErr.Message
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return http.StatusBadRequest, clientErr.Message
	}

	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound, err.Error()
	}

	return http.StatusInternalServerError, err.Error()
}
