package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gifmaker-live/backend/internal/api"
	"github.com/gifmaker-live/backend/internal/config"
	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/gifmaker-live/backend/internal/history"
	"github.com/gifmaker-live/backend/internal/job"
	"github.com/gifmaker-live/backend/internal/logging"
	"github.com/gifmaker-live/backend/internal/metrics"
	"github.com/gifmaker-live/backend/internal/presets"
	"github.com/gifmaker-live/backend/internal/retention"
	"github.com/gifmaker-live/backend/internal/storage"
	"github.com/gifmaker-live/backend/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// configPath resolves the config file location: GIFMAKER_CONFIG wins,
// otherwise the file sits next to the executable.
func configPath() (string, error) {
	if p := os.Getenv("GIFMAKER_CONFIG"); p != "" {
		return p, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), config.FileName), nil
}

func run() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.InitLogger(cfg.Advanced.LogLevel, cfg.Advanced.LogFormat)

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if _, err := exec.LookPath(cfg.Conversion.FFmpegPath); err != nil {
		slog.Warn("ffmpeg not found; conversions will fail until it is installed",
			"ffmpeg", cfg.Conversion.FFmpegPath, "error", err)
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir(), cfg.GetOutputDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	presetSet, err := presets.Load(cfg.Storage.PresetsFile)
	if err != nil {
		return fmt.Errorf("failed to load presets: %w", err)
	}

	var historyStore *history.Store
	if cfg.Storage.HistoryDatabase != "" {
		historyStore, err = history.Open(cfg.Storage.HistoryDatabase, history.Options{
			Threads:     cfg.Advanced.DuckDBThreads,
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer historyStore.Close()
	}

	var (
		reg         *prometheus.Registry
		httpMetrics *metrics.HTTPMetrics
		convMetrics *metrics.ConversionMetrics
	)
	if cfg.Advanced.EnableMetrics {
		reg = metrics.NewRegistry()
		httpMetrics = metrics.NewHTTPMetrics(reg)
		convMetrics = metrics.NewConversionMetrics(reg)
	}

	converter := convert.NewConverter(cfg.Conversion.FFmpegPath, cfg.ConversionTimeout())
	jobOpts := job.Options{
		MaxConcurrent: int64(cfg.Conversion.MaxConcurrentConversions),
		Metrics:       convMetrics,
	}
	if historyStore != nil {
		jobOpts.History = historyStore
	}
	jobMgr := job.NewManager(fileStore, converter, jobOpts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background cleanup
	janitor := &retention.Janitor{
		Store:        fileStore,
		Jobs:         jobMgr,
		Interval:     cfg.CleanupInterval(),
		OutputMaxAge: cfg.OutputMaxAge(),
		JobMaxAge:    cfg.JobMaxAge(),
	}
	go janitor.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	mwOpts := api.MiddlewareOptions{
		EnableRequestLogging: cfg.Advanced.EnableRequestLogging,
		EnableCORS:           cfg.Server.EnableCORS,
		AllowOrigins:         cfg.Server.AllowOrigins,
		BodyLimit:            cfg.Server.BodyLimit,
		MaxUploadBytes:       cfg.MaxUploadBytes(),
	}
	if httpMetrics != nil {
		mwOpts.Extra = append(mwOpts.Extra, httpMetrics.Middleware())
	}
	api.SetupMiddleware(e, mwOpts)

	deps := &api.Dependencies{
		Store:   fileStore,
		Jobs:    jobMgr,
		Presets: presetSet,
		Settings: api.ConvertSettings{
			Defaults:          cfg.DefaultParams(),
			Limits:            cfg.Limits(),
			AllowedExtensions: cfg.AllowedExtensions(),
			MaxUploadBytes:    cfg.MaxUploadBytes(),
		},
		AllowFileDeletion: cfg.Security.AllowFileDeletion,
		Version:           Version,
	}
	if historyStore != nil {
		deps.History = historyStore
	}
	api.RegisterRoutes(e, api.NewHandlers(deps))

	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))
	}

	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			slog.Warn("failed to register static routes", "error", err)
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:              cfg.GetServerAddr(),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	slog.Info("GIF Maker Live server starting",
		"version", Version,
		"build_time", BuildTime,
		"config", path,
		"listen", cfg.GetServerAddr(),
		"data_dir", cfg.GetDataDir(),
		"presets", presetSet.Len(),
		"history", historyStore != nil,
		"metrics", reg != nil)

	serverErr := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if err := jobMgr.Shutdown(shutdownCtx); err != nil {
		slog.Warn("job shutdown", "error", err)
	}
	return nil
}
