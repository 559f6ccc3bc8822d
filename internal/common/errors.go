package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
)

// Classification pipeline errors.
var (
	// ErrConversion: the PDF is corrupt, encrypted without a usable password, or cannot be rasterized.
	ErrConversion = errors.New("pdf conversion failed")
	// ErrEmptyDocument: the upload has no bytes or the PDF has zero pages.
	ErrEmptyDocument = errors.New("document has no pages")
	// ErrModelUnavailable: the model registry has no loaded pipeline.
	ErrModelUnavailable = errors.New("classification model not loaded")
	// ErrModelInvocation: the loaded pipeline faulted at inference time.
	ErrModelInvocation = errors.New("classification model invocation failed")
	// ErrModelLoad: the artifact could not be read, parsed or validated.
	ErrModelLoad = errors.New("classification model load failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ConversionErrorf wraps cause as ErrConversion with a message.
func ConversionErrorf(cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrConversion, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrConversion, msg, cause)
}

// HTTPStatus maps an error from the pipeline onto an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrConversion), errors.Is(err, ErrEmptyDocument), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps an error from the pipeline onto a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrConversion), errors.Is(err, ErrEmptyDocument), errors.Is(err, ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrModelUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// ErrorMessage is the human-readable headline for a pipeline error.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyDocument):
		return "PDF has no pages"
	case errors.Is(err, ErrConversion):
		return "Could not read PDF"
	case errors.Is(err, ErrModelUnavailable):
		return "Classification model is not loaded"
	case errors.Is(err, ErrModelInvocation):
		return "Classification failed"
	case errors.Is(err, ErrInvalidInput):
		return "Invalid request"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	default:
		return "An internal error occurred"
	}
}

// gRPC error helpers
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(GRPCCode(err), err.Error())
}

func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
