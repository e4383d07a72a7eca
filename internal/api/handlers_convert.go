// handlers_convert.go - Video upload and conversion handlers
package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/gifmaker-live/backend/internal/job"
	"github.com/gifmaker-live/backend/internal/logging"
	"github.com/gifmaker-live/backend/internal/presets"
	"github.com/gifmaker-live/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// ConvertSettings controls what a conversion request may ask for.
type ConvertSettings struct {
	Defaults          convert.Params
	Limits            convert.Limits
	AllowedExtensions []string
	MaxUploadBytes    int64
}

// DefaultConvertSettings mirrors the upload page's sliders and limits.
func DefaultConvertSettings() ConvertSettings {
	return ConvertSettings{
		Defaults:          convert.Params{FPS: convert.DefaultFPS, Width: convert.DefaultWidth},
		Limits:            convert.DefaultLimits(),
		AllowedExtensions: []string{".mp4", ".avi", ".mov", ".webm", ".mkv", ".m4v"},
		MaxUploadBytes:    100 * 1024 * 1024,
	}
}

// ConvertHandlerImpl implements the ConvertHandler interface
type ConvertHandlerImpl struct {
	store    storage.Store
	jobs     JobRunner
	presets  *presets.Set
	settings ConvertSettings
}

// NewConvertHandler creates a new convert handler instance
func NewConvertHandler(store storage.Store, jobs JobRunner, set *presets.Set, settings ConvertSettings) ConvertHandler {
	if set == nil {
		set = presets.Builtin()
	}
	return &ConvertHandlerImpl{
		store:    store,
		jobs:     jobs,
		presets:  set,
		settings: settings,
	}
}

// HandleConvert uploads a video, converts it and returns the GIF's name and size
func (h *ConvertHandlerImpl) HandleConvert(c echo.Context) error {
	req, err := h.readRequest(c)
	if err != nil {
		return err
	}

	// The response waits for a conversion slot and for ffmpeg, which can
	// outlast the server's write timeout.
	rc := http.NewResponseController(c.Response().Writer)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logging.WithFile(req.Upload.Original).Debug("clearing write deadline", "error", err)
	}

	result, err := h.jobs.Convert(c.Request().Context(), req)
	if err != nil {
		logging.WithFile(req.Upload.Original).Warn("conversion failed", "error", err)
		return ConversionError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// HandleSubmitJob uploads a video and starts converting it in the background
func (h *ConvertHandlerImpl) HandleSubmitJob(c echo.Context) error {
	req, err := h.readRequest(c)
	if err != nil {
		return err
	}

	j := h.jobs.Submit(req)
	return respond(c, http.StatusAccepted, j)
}

// HandleGetJob returns the current state of a background conversion
func (h *ConvertHandlerImpl) HandleGetJob(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	j, ok := h.jobs.Get(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return respond(c, http.StatusOK, j)
}

// readRequest validates the multipart form and stores the upload.
func (h *ConvertHandlerImpl) readRequest(c echo.Context) (job.Request, error) {
	params, err := h.readParams(c)
	if err != nil {
		return job.Request{}, err
	}

	file, err := c.FormFile("file")
	if err != nil {
		if isEntityTooLarge(err) {
			return job.Request{}, NewFileTooLargeError(h.settings.MaxUploadBytes)
		}
		return job.Request{}, NewBadRequestError("no file provided", err)
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !h.allowed(ext) {
		return job.Request{}, NewInvalidFileTypeError(h.settings.AllowedExtensions)
	}
	if h.settings.MaxUploadBytes > 0 && file.Size > h.settings.MaxUploadBytes {
		return job.Request{}, NewFileTooLargeError(h.settings.MaxUploadBytes)
	}

	src, err := file.Open()
	if err != nil {
		return job.Request{}, NewBadRequestError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.SaveUpload(file.Filename, src, h.settings.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return job.Request{}, NewFileTooLargeError(h.settings.MaxUploadBytes)
		}
		return job.Request{}, NewInternalError("failed to save upload", err)
	}

	return job.Request{Upload: info, Params: params}, nil
}

// readParams layers an optional preset and then explicit form values over
// the defaults. The result is clamped, never rejected for being out of range.
func (h *ConvertHandlerImpl) readParams(c echo.Context) (convert.Params, error) {
	params := h.settings.Defaults

	if name := strings.TrimSpace(c.FormValue("preset")); name != "" {
		p, ok := h.presets.Lookup(name)
		if !ok {
			return convert.Params{}, NewBadRequestError("unknown preset: "+name, nil)
		}
		params = p.Params()
	}

	for _, field := range []struct {
		name string
		dst  *int
	}{
		{"fps", &params.FPS},
		{"width", &params.Width},
	} {
		raw := strings.TrimSpace(c.FormValue(field.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return convert.Params{}, NewValidationError(field.name)
		}
		*field.dst = v
	}

	return h.settings.Limits.Clamp(params), nil
}

func (h *ConvertHandlerImpl) allowed(ext string) bool {
	for _, a := range h.settings.AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}
