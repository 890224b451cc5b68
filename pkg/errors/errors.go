package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidTag       = errors.New("invalid tag")
	ErrInvalidPageSize  = errors.New("invalid page size")
	ErrInvalidOperator  = errors.New("invalid operator")
	ErrInvalidStrategy  = errors.New("invalid strategy")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrLengthMismatch   = errors.New("bitmap length mismatch")
	ErrIndexOutOfRange  = errors.New("bit index out of range")
	ErrBuildInvariant   = errors.New("index build invariant violated")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsQueryError reports whether err is a caller mistake recoverable at the
// request boundary, as opposed to an assertion failure inside the engine.
func IsQueryError(err error) bool {
	return errors.Is(err, ErrInvalidTag) ||
		errors.Is(err, ErrInvalidPageSize) ||
		errors.Is(err, ErrInvalidOperator) ||
		errors.Is(err, ErrInvalidStrategy) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidInput)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidTag):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidPageSize),
		errors.Is(err, ErrInvalidOperator),
		errors.Is(err, ErrInvalidStrategy),
		errors.Is(err, ErrInvalidSortField),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
