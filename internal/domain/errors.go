package domain

import (
	"fmt"
	"net/http"
	"time"
)

// Error codes for categorization
const (
	// Client errors (4xx)
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"

	// Server errors (5xx)
	ErrCodeInternal = "INTERNAL_ERROR"
	ErrCodeDatabase = "DATABASE_ERROR"
	ErrCodeTimeout  = "TIMEOUT_ERROR"

	// Engine errors
	ErrCodeNavigationFailed    = "FILL_NAVIGATION_FAILED"
	ErrCodeNoQuestionsDetected = "NO_QUESTIONS_DETECTED"
	ErrCodeGenerationFailed    = "GENERATION_FAILED"
	ErrCodeMatcherUnavailable  = "MATCHER_UNAVAILABLE"
)

// AppError is the base error type for all application errors
type AppError struct {
	// Error code for programmatic handling
	Code string `json:"code"`

	// Human-readable message
	Message string `json:"message"`

	// HTTP status code
	HTTPStatus int `json:"-"`

	// Original error (for error wrapping)
	Cause error `json:"-"`

	// Metadata for additional context
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Timestamp when error occurred
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// NewError creates a new AppError
func NewError(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now().UTC(),
	}
}

// Error constructors

func ErrValidation(message string) *AppError {
	return NewError(ErrCodeValidation, message, http.StatusBadRequest)
}

func ErrNotFound(resource, id string) *AppError {
	return NewError(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", resource, id), http.StatusNotFound).
		WithMetadata("resource", resource).
		WithMetadata("id", id)
}

func ErrProfileNotFound(id string) *AppError {
	return ErrNotFound("profile", id)
}

func ErrFillRunNotFound(id string) *AppError {
	return ErrNotFound("fill_run", id)
}

func ErrMappingNotFound(id string) *AppError {
	return ErrNotFound("learned_mapping", id)
}

func ErrUnauthorized(message string) *AppError {
	if message == "" {
		message = "Authentication required"
	}
	return NewError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func ErrRateLimited() *AppError {
	return NewError(ErrCodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

func ErrInternal(message string) *AppError {
	return NewError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func ErrDatabase(err error) *AppError {
	return NewError(ErrCodeDatabase, "Database operation failed", http.StatusInternalServerError).WithCause(err)
}

// Engine errors. Only these two are fatal to a run; everything else the
// engine absorbs into the fill log.

func ErrNavigationFailed(url string, err error) *AppError {
	return NewError(ErrCodeNavigationFailed, fmt.Sprintf("could not open form: %s", url), http.StatusBadGateway).
		WithCause(err).
		WithMetadata("url", url)
}

func ErrNoQuestionsDetected() *AppError {
	return NewError(ErrCodeNoQuestionsDetected, "No question fields detected on this form.", http.StatusUnprocessableEntity)
}
