package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds. Match with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage failure")
	ErrDispatch     = errors.New("processing dispatch failed")
	ErrDatabase     = errors.New("database failure")
)

// Error is a classified failure. Message is safe to show to clients; Err is
// the underlying cause and only ever reaches the logs.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Message: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func Unauthorized(msg string) error {
	return &Error{Kind: ErrUnauthorized, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Message: msg}
}

// Storage wraps an object storage failure.
func Storage(op string, err error) error {
	return &Error{Kind: ErrStorage, Op: op, Message: "storage unavailable", Err: err}
}

// Database wraps a persistence failure. The driver error is kept for logs only.
func Database(op string, err error) error {
	return &Error{Kind: ErrDatabase, Op: op, Message: "internal server error", Err: err}
}

// DispatchError reports a failed call to the external AI service.
// StatusCode is the upstream HTTP status, or 0 when no response arrived.
type DispatchError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *DispatchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream status %d", e.Operation, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	default:
		return e.Operation + ": " + ErrDispatch.Error()
	}
}

func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatch
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// HTTPStatus is the status a caller should see for this dispatch failure.
// Upstream error statuses pass through; anything else becomes 502.
func (e *DispatchError) HTTPStatus() int {
	if e.StatusCode >= 400 && e.StatusCode <= 599 {
		return e.StatusCode
	}
	return http.StatusBadGateway
}

// Is reports whether err is of the given kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// PublicMessage returns the client-safe message carried by err, or fallback.
func PublicMessage(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}
