// handlers_history.go - Conversion history and preset handlers
package api

import (
	"net/http"

	"github.com/gifmaker-live/backend/internal/history"
	"github.com/gifmaker-live/backend/internal/presets"
	"github.com/labstack/echo/v4"
)

// HistoryHandlerImpl implements the HistoryHandler interface.
// A nil reader means history is disabled.
type HistoryHandlerImpl struct {
	reader HistoryReader
}

// NewHistoryHandler creates a new history handler instance
func NewHistoryHandler(reader HistoryReader) HistoryHandler {
	return &HistoryHandlerImpl{reader: reader}
}

// HandleGetHistory returns the most recent conversions
func (h *HistoryHandlerImpl) HandleGetHistory(c echo.Context) error {
	if h.reader == nil {
		return NewServiceUnavailableError("conversion history is disabled")
	}

	limit, err := parseLimit(c, defaultListLimit)
	if err != nil {
		return err
	}

	records, err := h.reader.Recent(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to query history", err)
	}
	if records == nil {
		records = []history.Record{}
	}
	return respond(c, http.StatusOK, records)
}

// HandleGetHistoryStats returns aggregate conversion statistics
func (h *HistoryHandlerImpl) HandleGetHistoryStats(c echo.Context) error {
	if h.reader == nil {
		return NewServiceUnavailableError("conversion history is disabled")
	}

	stats, err := h.reader.Stats(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to query history stats", err)
	}
	return respond(c, http.StatusOK, stats)
}

// PresetHandlerImpl implements the PresetHandler interface
type PresetHandlerImpl struct {
	set *presets.Set
}

// NewPresetHandler creates a new preset handler instance
func NewPresetHandler(set *presets.Set) PresetHandler {
	if set == nil {
		set = presets.Builtin()
	}
	return &PresetHandlerImpl{set: set}
}

// HandleGetPresets lists the available presets sorted by name
func (h *PresetHandlerImpl) HandleGetPresets(c echo.Context) error {
	return respond(c, http.StatusOK, h.set.List())
}
