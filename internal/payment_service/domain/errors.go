package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyCredited  = errors.New("payment reference already credited")
	ErrSettingsNotFound = errors.New("gateway settings not found")
	ErrUserNotFound     = errors.New("user profile not found")
)

// Kind classifies an Error for the HTTP boundary.
type Kind string

const (
	KindValidation    Kind = "validation"    // malformed input, 400
	KindDuplicate     Kind = "duplicate"     // reference already used, 400
	KindConfig        Kind = "config"        // feature disabled, caller-fixable, 400
	KindUnauthorized  Kind = "unauthorized"  // bad webhook signature, 401
	KindForbidden     Kind = "forbidden"     // order belongs to someone else, 403
	KindNotFound      Kind = "not_found"     // 404
	KindMisconfigured Kind = "misconfigured" // credentials missing, 500
	KindInternal      Kind = "internal"      // 500
	KindGateway       Kind = "gateway"       // upstream failure, 502
)

// Error carries a client-safe Message; Err holds the diagnostic cause and is
// only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ValidationError(message string) *Error { return NewError(KindValidation, message, nil) }

func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindDuplicate, KindConfig:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// StatusAndMessage maps any error to an HTTP status and a client-visible
// message. Errors that are not *Error become a generic 500.
func StatusAndMessage(err error) (int, string) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind.HTTPStatus(), appErr.Message
	}
	return http.StatusInternalServerError, "Internal server error"
}
