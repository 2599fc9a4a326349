package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes. They double as the "code" field of the HTTP envelope.
const (
	CodeValidation        = "ValidationError"
	CodeInsufficientStock = "InsufficientStock"
	CodeInvalidTransition = "InvalidTransition"
	CodePaymentNotSettled = "PaymentNotSettled"
	CodeNotFound          = "NotFound"
	CodeUnauthorized      = "Unauthorized"
	CodeForbidden         = "Forbidden"
	CodeInternal          = "InternalError"
)

// Error is the single error type surfaced by the order lifecycle core.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the error code to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInsufficientStock:
		return http.StatusBadRequest
	case CodeInvalidTransition, CodePaymentNotSettled:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func New(code, message, details string) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func NewValidation(message, field string) *Error {
	details := ""
	if field != "" {
		details = "Field: " + field
	}
	return New(CodeValidation, message, details)
}

func NewInsufficientStock(product string, available, requested int) *Error {
	return New(CodeInsufficientStock, "insufficient stock for "+product,
		fmt.Sprintf("Available: %d, Requested: %d", available, requested))
}

func NewInvalidTransition(from, to string, allowed []string) *Error {
	next := "none"
	if len(allowed) > 0 {
		next = strings.Join(allowed, ", ")
	}
	return New(CodeInvalidTransition,
		fmt.Sprintf("cannot change status from '%s' to '%s'", from, to),
		"Allowed: "+next)
}

func NewPaymentNotSettled(paymentStatus string) *Error {
	return New(CodePaymentNotSettled, "order cannot be confirmed until payment is settled",
		"Payment status: "+paymentStatus)
}

func NewNotFound(entity, id string) *Error {
	return New(CodeNotFound, entity+" not found", "ID: "+id)
}

func NewUnauthorized(message string) *Error {
	return New(CodeUnauthorized, message, "")
}

func NewForbidden(message string) *Error {
	return New(CodeForbidden, message, "")
}

func NewInternal(message string, err error) *Error {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &Error{Code: CodeInternal, Message: message, Details: details, cause: err}
}

// Wrap keeps taxonomy errors as they are and turns everything else into an InternalError.
func Wrap(message string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return NewInternal(message, err)
}

// CodeOf returns the taxonomy code carried by err, or CodeInternal.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// From converts any error into an *Error for rendering.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return NewInternal("internal server error", err)
}
