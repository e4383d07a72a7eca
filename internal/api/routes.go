// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gifmaker-live/backend/internal/presets"
	"github.com/gifmaker-live/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store             storage.Store
	Jobs              JobRunner
	History           HistoryReader
	Presets           *presets.Set
	Settings          ConvertSettings
	AllowFileDeletion bool
	Version           string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Convert   ConvertHandler
	Output    OutputHandler
	History   HistoryHandler
	Preset    PresetHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version),
		Convert:   NewConvertHandler(deps.Store, deps.Jobs, deps.Presets, deps.Settings),
		Output:    NewOutputHandler(deps.Store, deps.AllowFileDeletion),
		History:   NewHistoryHandler(deps.History),
		Preset:    NewPresetHandler(deps.Presets),
		WebSocket: NewWebSocketHandler(deps.Jobs),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// Upload page endpoints
	e.POST("/convert", handlers.Convert.HandleConvert)
	e.GET("/download/:filename", handlers.Output.HandleDownload)

	apiGroup := e.Group("/api")

	// Background conversions
	apiGroup.POST("/jobs", handlers.Convert.HandleSubmitJob)
	apiGroup.GET("/jobs/:id", handlers.Convert.HandleGetJob)

	// Generated files
	apiGroup.GET("/outputs", handlers.Output.HandleListOutputs)
	apiGroup.DELETE("/outputs/:filename", handlers.Output.HandleDeleteOutput)

	// History and presets
	apiGroup.GET("/history", handlers.History.HandleGetHistory)
	apiGroup.GET("/history/stats", handlers.History.HandleGetHistoryStats)
	apiGroup.GET("/presets", handlers.Preset.HandleGetPresets)

	RegisterWebSocketRoutes(e, handlers)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/jobs", handlers.WebSocket.HandleWebSocket)
}

// MiddlewareOptions configures SetupMiddleware
type MiddlewareOptions struct {
	EnableRequestLogging bool
	EnableCORS           bool
	AllowOrigins         string
	BodyLimit            string
	// MaxUploadBytes is reported when BodyLimit rejects a request.
	MaxUploadBytes       int64
	Extra                []echo.MiddlewareFunc
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !opts.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Millisecond),
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("request", attrs...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	for _, mw := range opts.Extra {
		e.Use(mw)
	}

	if opts.EnableCORS {
		origins := strings.Split(opts.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{"*"},
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(uploadBodyLimit(opts.BodyLimit, opts.MaxUploadBytes))
	}
}

// uploadBodyLimit wraps echo's BodyLimit so an oversized request gets the
// same FILE_TOO_LARGE response as an oversized file part.
func uploadBodyLimit(limit string, maxUpload int64) echo.MiddlewareFunc {
	if maxUpload <= 0 {
		maxUpload = DefaultConvertSettings().MaxUploadBytes
	}
	bodyLimit := middleware.BodyLimit(limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := bodyLimit(next)
		return func(c echo.Context) error {
			err := h(c)
			if isEntityTooLarge(err) {
				return NewFileTooLargeError(maxUpload)
			}
			return err
		}
	}
}

func isEntityTooLarge(err error) bool {
	var httpErr *echo.HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge
}
