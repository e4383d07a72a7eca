// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/gifmaker-live/backend/internal/history"
	"github.com/gifmaker-live/backend/internal/job"
	"github.com/gifmaker-live/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// ConvertHandler handles video to GIF conversion
type ConvertHandler interface {
	HandleConvert(c echo.Context) error
	HandleSubmitJob(c echo.Context) error
	HandleGetJob(c echo.Context) error
}

// OutputHandler serves and manages generated GIFs
type OutputHandler interface {
	HandleDownload(c echo.Context) error
	HandleListOutputs(c echo.Context) error
	HandleDeleteOutput(c echo.Context) error
}

// HistoryHandler exposes the conversion history
type HistoryHandler interface {
	HandleGetHistory(c echo.Context) error
	HandleGetHistoryStats(c echo.Context) error
}

// PresetHandler lists conversion presets
type PresetHandler interface {
	HandleGetPresets(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// JobRunner defines the interface for the conversion manager
// This allows mocking in tests
type JobRunner interface {
	Convert(ctx context.Context, req job.Request) (*models.ConversionResult, error)
	Submit(req job.Request) job.Job
	Get(id string) (job.Job, bool)
	Subscribe(id string) (<-chan job.Job, func(), error)
}

// HistoryReader is the read side of the history store
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
	Stats(ctx context.Context) (history.Stats, error)
}

var _ JobRunner = (*job.Manager)(nil)
