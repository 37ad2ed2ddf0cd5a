// Package errors defines the error taxonomy shared by the content layer:
// remote store failures, content validation, webhook authenticity, and the
// helpers used to classify them at call sites.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeTransient  ErrorType = "transient"
	ErrorTypeDecode     ErrorType = "decode"
	ErrorTypeSignature  ErrorType = "signature"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Common error codes.
const (
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
	ErrCodeHashMismatch      = "ERR_HASH_MISMATCH"
	ErrCodeAlreadyExists     = "ERR_ALREADY_EXISTS"
	ErrCodeUnauthorized      = "ERR_UNAUTHORIZED"
	ErrCodeRemoteRateLimit   = "ERR_REMOTE_RATE_LIMITED"
	ErrCodeRemoteUnavailable = "ERR_REMOTE_UNAVAILABLE"
	ErrCodeNetwork           = "ERR_NETWORK"
	ErrCodeBadEncoding       = "ERR_BAD_ENCODING"
	ErrCodeNotAFile          = "ERR_NOT_A_FILE"
	ErrCodeValidationFailed  = "ERR_VALIDATION_FAILED"
	ErrCodeFrontMatter       = "ERR_FRONT_MATTER"
	ErrCodeBadSignature      = "ERR_BAD_SIGNATURE"
	ErrCodeMissingSignature  = "ERR_MISSING_SIGNATURE"
	ErrCodeNoSecret          = "ERR_NO_SECRET"
	ErrCodeUnexpectedStatus  = "ERR_UNEXPECTED_STATUS"
	ErrCodeRateLimited       = "ERR_RATE_LIMITED"
)

// ContentError is a structured error with a taxonomy type and context.
type ContentError struct {
	Type      ErrorType
	Code      string
	Message   string
	Path      string
	Status    int
	Cause     error
	Retryable bool
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *ContentError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.Status))
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ContentError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code.
func (e *ContentError) Is(target error) bool {
	var t *ContentError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ContentError) WithContext(key string, value interface{}) *ContentError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the repository path the error concerns.
func (e *ContentError) WithPath(path string) *ContentError {
	e.Path = path

	return e
}

// WithStatus records the HTTP status returned by the remote store.
func (e *ContentError) WithStatus(status int) *ContentError {
	e.Status = status

	return e
}

// Error creation functions

// NewNotFoundError creates a not-found error for a repository path.
func NewNotFoundError(path string) *ContentError {
	return &ContentError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeFileNotFound,
		Message: "file not found",
		Path:    path,
	}
}

// NewValidationError creates a document-level validation error, used when a
// file cannot be decoded far enough to check individual fields.
func NewValidationError(code, message string, cause error) *ContentError {
	return &ContentError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConflictError creates an optimistic-concurrency conflict error.
func NewConflictError(code, message string) *ContentError {
	return &ContentError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
	}
}

// NewAuthError creates an authentication or authorization error.
func NewAuthError(message string) *ContentError {
	return &ContentError{
		Type:    ErrorTypeAuth,
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewTransientError creates a retryable error.
func NewTransientError(code, message string, cause error) *ContentError {
	return &ContentError{
		Type:      ErrorTypeTransient,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: true,
	}
}

// NewDecodeError creates an error for content that is not text encoded as expected.
func NewDecodeError(code, message string, cause error) *ContentError {
	return &ContentError{
		Type:    ErrorTypeDecode,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewSignatureError creates a webhook authenticity error.
func NewSignatureError(code, message string) *ContentError {
	return &ContentError{
		Type:    ErrorTypeSignature,
		Code:    code,
		Message: message,
	}
}

// NewUnknownError creates an error that fits no other category.
func NewUnknownError(code, message string, cause error) *ContentError {
	return &ContentError{
		Type:    ErrorTypeUnknown,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// FromHTTPStatus translates a remote store response status into the
// taxonomy. write reports whether the request was a mutation, since 409 and
// 422 only signal a stale precondition on writes.
func FromHTTPStatus(status int, write bool, message string) *ContentError {
	var e *ContentError

	switch {
	case status == http.StatusNotFound:
		e = &ContentError{Type: ErrorTypeNotFound, Code: ErrCodeFileNotFound, Message: message}
	case write && (status == http.StatusConflict || status == http.StatusUnprocessableEntity):
		e = NewConflictError(ErrCodeHashMismatch, message)
	case status == http.StatusTooManyRequests:
		e = NewTransientError(ErrCodeRemoteRateLimit, message, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = NewAuthError(message)
	case status >= 500:
		e = NewTransientError(ErrCodeRemoteUnavailable, message, nil)
	default:
		e = NewUnknownError(ErrCodeUnexpectedStatus, message, nil)
	}

	return e.WithStatus(status)
}

// Classification helpers

func hasType(err error, t ErrorType) bool {
	var ce *ContentError
	if errors.As(err, &ce) {
		return ce.Type == t
	}

	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsConflict reports whether err is a precondition conflict.
func IsConflict(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return hasType(err, ErrorTypeAuth) }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool { return hasType(err, ErrorTypeTransient) }

// IsDecode reports whether err is a decode failure.
func IsDecode(err error) bool { return hasType(err, ErrorTypeDecode) }

// IsSignature reports whether err is a webhook signature failure.
func IsSignature(err error) bool { return hasType(err, ErrorTypeSignature) }

// IsValidation reports whether err is a content validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}

	return hasType(err, ErrorTypeValidation)
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	var ce *ContentError
	if errors.As(err, &ce) {
		return ce.Retryable
	}

	return false
}

// TypeOf returns the taxonomy type of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var ce *ContentError
	if errors.As(err, &ce) {
		return ce.Type
	}
	if IsValidation(err) {
		return ErrorTypeValidation
	}

	return ErrorTypeUnknown
}
