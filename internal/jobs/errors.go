package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the job manager.
var (
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrProgressRegression = errors.New("progress cannot decrease")
	ErrJobNotFound        = errors.New("job not found")
)

// ErrorKind classifies a job failure. Transient kinds are eligible for
// retry via the recovery manager's retry counter; permanent kinds fail
// the job immediately.
type ErrorKind string

const (
	ErrorKindTimeout            ErrorKind = "Timeout"
	ErrorKindNetworkError       ErrorKind = "NetworkError"
	ErrorKindRateLimited        ErrorKind = "RateLimited"
	ErrorKindInvalidUrl         ErrorKind = "InvalidUrl"
	ErrorKindHttpError          ErrorKind = "HttpError"
	ErrorKindExtractionError    ErrorKind = "ExtractionError"
	ErrorKindAuthError          ErrorKind = "AuthError"
	ErrorKindApiError           ErrorKind = "ApiError"
	ErrorKindPayloadTooLarge    ErrorKind = "PayloadTooLarge"
	ErrorKindMaxRetriesExceeded ErrorKind = "MaxRetriesExceeded"
)

// ClassifiedError carries an error kind alongside the underlying cause.
// HTTP failures also record the response status code.
type ClassifiedError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the failure is worth retrying. HTTP errors
// are transient for 408, 429 and server-side status codes only.
func (e *ClassifiedError) IsTransient() bool {
	switch e.Kind {
	case ErrorKindTimeout, ErrorKindNetworkError, ErrorKindRateLimited:
		return true
	case ErrorKindHttpError, ErrorKindApiError:
		return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
	default:
		return false
	}
}

// NewError creates a classified error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewHTTPError creates a classified HTTP error carrying the status code.
func NewHTTPError(statusCode int, format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{
		Kind:       ErrorKindHttpError,
		StatusCode: statusCode,
		Message:    fmt.Sprintf(format, args...),
	}
}

// WrapError classifies an underlying error.
func WrapError(kind ErrorKind, err error) *ClassifiedError {
	return &ClassifiedError{
		Kind:    kind,
		Message: err.Error(),
		Err:     err,
	}
}

// Classify extracts the ClassifiedError from an error chain. Unclassified
// errors are treated as permanent ApiError failures.
func Classify(err error) *ClassifiedError {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}
	return &ClassifiedError{
		Kind:    ErrorKindApiError,
		Message: err.Error(),
		Err:     err,
	}
}
