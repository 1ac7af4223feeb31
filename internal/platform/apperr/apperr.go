// Package apperr defines the error taxonomy shared by the domain services.
// Handlers translate error kinds to HTTP statuses; services never reference
// transport concerns directly.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindConflict
	KindInsufficientStock
	KindUnauthorized
	KindForbidden
	KindGateway
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid_request"
	case KindConflict:
		return "conflict"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindGateway:
		return "gateway_failure"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error carries a kind and a caller-facing message. The wrapped cause, if
// any, is preserved for errors.Is/As chains but not exposed to clients.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStock names the medicine that could not be fully allocated.
func InsufficientStock(medicineName string) *Error {
	return &Error{Kind: KindInsufficientStock, Message: fmt.Sprintf("insufficient stock for %s", medicineName)}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Gateway(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindGateway, Message: fmt.Sprintf(format, args...), cause: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", cause: cause}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// HTTPStatus maps an error kind to the status code handlers should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid, KindInsufficientStock:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing message for err. Foreign errors fall
// back to their Error() string.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
