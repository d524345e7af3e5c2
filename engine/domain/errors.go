package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for validation and pipeline failures.
var (
	ErrEmptyStem          = errors.New("empty stem")
	ErrTooFewChoices      = errors.New("fewer than two choices")
	ErrTooManyChoices     = errors.New("more than six choices")
	ErrChoiceKeyOrder     = errors.New("choice keys not contiguous from A")
	ErrAnswerKeyUnknown   = errors.New("correct answer key matches no choice")
	ErrCountMismatch      = errors.New("question counts out of range")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrFileTooLarge       = errors.New("file exceeds upload size limit")
	ErrNoQuestions        = errors.New("no questions extracted")
	ErrQuizNotFound       = errors.New("quiz not found")
	ErrAnswerNotCached    = errors.New("answer not cached")
	ErrProviderExhausted  = errors.New("all providers exhausted")
	ErrPostponed          = errors.New("job postponed: providers rate limited")
)

// ErrorKind is the closed set of application error variants.
type ErrorKind int

const (
	KindBadRequest ErrorKind = iota
	KindNotAuthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
	KindApp
	KindParser
	KindProviderRateLimit
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotAuthorized:
		return "not_authorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTooManyRequests:
		return "too_many_requests"
	case KindParser:
		return "parser"
	case KindProviderRateLimit:
		return "provider_rate_limit"
	default:
		return "app"
	}
}

// Status returns the HTTP status an outer transport should map this kind to.
func (k ErrorKind) Status() int {
	switch k {
	case KindBadRequest, KindParser:
		return http.StatusBadRequest
	case KindNotAuthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests, KindProviderRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// AppError carries an ErrorKind plus a wrapped cause.
type AppError struct {
	Kind    ErrorKind
	Message string
	Wrapped error
}

func (e *AppError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Wrapped }

// NewAppError creates an AppError.
func NewAppError(kind ErrorKind, message string, wrapped error) *AppError {
	return &AppError{Kind: kind, Message: message, Wrapped: wrapped}
}

// ParserError wraps a fatal parse failure.
func ParserError(message string, wrapped error) *AppError {
	return NewAppError(KindParser, message, wrapped)
}

// Serialize projects the error into a transport-agnostic map.
func (e *AppError) Serialize() map[string]any {
	return map[string]any{
		"kind":    e.Kind.String(),
		"status":  e.Kind.Status(),
		"message": e.Message,
	}
}

// IsParser reports whether err is (or wraps) a parser-kind AppError.
func IsParser(err error) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Kind == KindParser
}

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
