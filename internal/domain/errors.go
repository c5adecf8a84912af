package domain

import (
	"errors"
	"net/http"
)

// Error codes carried by AppError.
const (
	CodeNotFound      = 1
	CodeAlreadyExists = 2
	CodeValidation    = 3
	CodeInternal      = 4
	CodeConflict      = 5
	// CodeInTrash marks an operation that is refused because its target, or
	// the email it claims, belongs to a user sitting in the trash.
	CodeInTrash = 6
)

// statusByCode maps error codes to HTTP statuses. Unknown codes are 500.
var statusByCode = map[int]int{
	CodeNotFound:      http.StatusNotFound,
	CodeAlreadyExists: http.StatusConflict,
	CodeValidation:    http.StatusBadRequest,
	CodeInternal:      http.StatusInternalServerError,
	CodeConflict:      http.StatusConflict,
	CodeInTrash:       http.StatusConflict,
}

// AppError is an error the API reports to clients: Code selects the HTTP
// status, Message is shown to the caller and Err keeps the cause for logs.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Sentinel errors. Match them with the Is* helpers, which compare codes and
// so also match errors built with NewAppError.
var (
	ErrNotFound      = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists = &AppError{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation    = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal      = &AppError{Code: CodeInternal, Message: "internal error"}
	ErrConflict      = &AppError{Code: CodeConflict, Message: "conflict"}

	// ErrInTrash is returned when a trashed user is written to before it has
	// been restored.
	ErrInTrash = &AppError{Code: CodeInTrash, Message: "user is in the trash"}
	// ErrEmailInTrash is returned when a live user claims the email of a
	// trashed one.
	ErrEmailInTrash = &AppError{Code: CodeInTrash, Message: "email belongs to a deleted user; restore it instead"}
)

// NewAppError returns an AppError with the given code and message wrapping err.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first AppError in err's chain and whether
// there was one.
func CodeOf(err error) (int, bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return 0, false
	}
	return appErr.Code, true
}

func hasCode(err error, code int) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// The Is* helpers report whether err carries the matching code.

func IsNotFound(err error) bool      { return hasCode(err, CodeNotFound) }
func IsAlreadyExists(err error) bool { return hasCode(err, CodeAlreadyExists) }
func IsValidation(err error) bool    { return hasCode(err, CodeValidation) }
func IsInternal(err error) bool      { return hasCode(err, CodeInternal) }
func IsConflict(err error) bool      { return hasCode(err, CodeConflict) }

// IsInTrash reports whether err was refused because of a trashed user.
func IsInTrash(err error) bool { return hasCode(err, CodeInTrash) }

// HTTPStatusCode maps err to an HTTP status. Errors without an AppError in
// their chain, and unknown codes, map to 500.
func HTTPStatusCode(err error) int {
	code, ok := CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if status, known := statusByCode[code]; known {
		return status
	}
	return http.StatusInternalServerError
}
