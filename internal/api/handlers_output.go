// handlers_output.go - Generated GIF download and management handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gifmaker-live/backend/internal/logging"
	"github.com/gifmaker-live/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

const defaultListLimit = 50

// OutputHandlerImpl implements the OutputHandler interface
type OutputHandlerImpl struct {
	store       storage.Store
	allowDelete bool
}

// NewOutputHandler creates a new output handler instance
func NewOutputHandler(store storage.Store, allowDelete bool) OutputHandler {
	return &OutputHandlerImpl{
		store:       store,
		allowDelete: allowDelete,
	}
}

// HandleDownload serves a generated GIF as an attachment
func (h *OutputHandlerImpl) HandleDownload(c echo.Context) error {
	name := c.Param("filename")
	if err := storage.ValidateOutputName(name); err != nil {
		return NewBadRequestError("Invalid filename", nil)
	}

	if _, err := h.store.StatOutput(name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "File not found"}
		}
		return NewInternalError("failed to read file", err)
	}

	path, err := h.store.OutputPath(name)
	if err != nil {
		return NewBadRequestError("Invalid filename", err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "image/gif")
	return c.Attachment(path, name)
}

// HandleListOutputs lists generated GIFs, newest first
func (h *OutputHandlerImpl) HandleListOutputs(c echo.Context) error {
	limit, err := parseLimit(c, defaultListLimit)
	if err != nil {
		return err
	}

	files, err := h.store.ListOutputs(limit)
	if err != nil {
		return NewInternalError("failed to list outputs", err)
	}
	return respond(c, http.StatusOK, files)
}

// HandleDeleteOutput removes a generated GIF
func (h *OutputHandlerImpl) HandleDeleteOutput(c echo.Context) error {
	if !h.allowDelete {
		return NewForbiddenError("file deletion is disabled")
	}

	name := c.Param("filename")
	if err := h.store.DeleteOutput(name); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidName):
			return NewBadRequestError("Invalid filename", nil)
		case errors.Is(err, storage.ErrNotFound):
			return NewNotFoundError("file", name)
		default:
			return NewInternalError("failed to delete file", err)
		}
	}

	logging.WithFile(name).Info("output deleted")
	return c.NoContent(http.StatusNoContent)
}

// parseLimit reads the optional ?limit= query parameter.
func parseLimit(c echo.Context, def int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, NewValidationError("limit")
	}
	return limit, nil
}
