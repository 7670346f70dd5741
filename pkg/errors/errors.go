// Package errors defines the sentinel errors shared by the crawl, index and
// search stages, and AppError, which tags a sentinel with a message and an
// optional HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrFetch             = errors.New("fetch failed")
	ErrRobotsUnavailable = errors.New("robots.txt unavailable")
	ErrParse             = errors.New("page parse failed")
	ErrIndexFileMissing  = errors.New("index file missing")
	ErrCorruptIndex      = errors.New("corrupt index")
	ErrCorpusMissing     = errors.New("corpus file missing")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
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

// Recoverable reports whether err is a per-URL crawl failure that should be
// logged and skipped rather than abort the crawl.
func Recoverable(err error) bool {
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrParse)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexFileMissing), errors.Is(err, ErrCorpusMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
