// errors.go - Structured error handling for API responses
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/gifmaker-live/backend/internal/job"
	"github.com/gifmaker-live/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewInvalidFileTypeError rejects an upload whose extension is not accepted
func NewInvalidFileTypeError(allowed []string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "INVALID_FILE_TYPE",
		Message: "Invalid file type. Allowed types: " + strings.Join(allowed, ", "),
	}
}

// NewFileTooLargeError rejects an upload above the size limit
func NewFileTooLargeError(limitBytes int64) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "FILE_TOO_LARGE",
		Message: fmt.Sprintf("File too large. Maximum size is %dMB", limitBytes/(1024*1024)),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// ConversionError maps errors from the conversion pipeline to API errors.
func ConversionError(err error) *APIError {
	var apiErr *APIError
	var toolErr *convert.ToolError

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, convert.ErrTimeout):
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "CONVERSION_TIMEOUT",
			Message: "Video conversion timed out",
		}
	case errors.As(err, &toolErr):
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "FFMPEG_ERROR",
			Message: "FFmpeg error",
			Details: toolErr.Stderr,
		}
	case errors.Is(err, convert.ErrNoOutput):
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "FFMPEG_ERROR",
			Message: "FFmpeg error",
			Details: err.Error(),
		}
	case errors.Is(err, job.ErrUnavailable), errors.Is(err, context.Canceled):
		return NewServiceUnavailableError("conversion was cancelled before it finished")
	case errors.Is(err, storage.ErrTooLarge):
		return &APIError{Status: http.StatusBadRequest, Code: "FILE_TOO_LARGE", Message: "File too large"}
	case errors.Is(err, storage.ErrInvalidName):
		return NewBadRequestError("Invalid filename", nil)
	case errors.Is(err, storage.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "File not found"}
	default:
		return NewInternalError("conversion failed", err)
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
			Details: err.Error(),
		}
	}

	if apiErr.Status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"code", apiErr.Code,
			"error", err)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
