// Package config provides XML-based configuration management.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/labstack/gommon/bytes"
)

// FileName is the default configuration file name.
const FileName = "GifMakerLive.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"GifMakerLive"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Conversion configuration
	Conversion ConversionConfig `xml:"Conversion"`

	// Retention of generated files and jobs
	Retention RetentionConfig `xml:"Retention"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	// ReadTimeout bounds the whole request including the upload body.
	ReadTimeout       int    `xml:"ReadTimeoutSeconds"`
	ReadHeaderTimeout int    `xml:"ReadHeaderTimeoutSeconds"`
	// WriteTimeout does not apply to POST /convert, which clears its own
	// deadline while it waits for ffmpeg.
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	OutputDirectory  string `xml:"OutputDirectory"`
	HistoryDatabase  string `xml:"HistoryDatabase"`
	PresetsFile      string `xml:"PresetsFile"`
}

// ConversionConfig controls the ffmpeg invocation and accepted input
type ConversionConfig struct {
	FFmpegPath               string `xml:"FFmpegPath"`
	DefaultFPS               int    `xml:"DefaultFPS"`
	MinFPS                   int    `xml:"MinFPS"`
	MaxFPS                   int    `xml:"MaxFPS"`
	DefaultWidth             int    `xml:"DefaultWidth"`
	MinWidth                 int    `xml:"MinWidth"`
	MaxWidth                 int    `xml:"MaxWidth"`
	TimeoutSeconds           int    `xml:"TimeoutSeconds"`
	MaxUploadSizeMB          int    `xml:"MaxUploadSizeMB"`
	AllowedExtensions        string `xml:"AllowedExtensions"`
	MaxConcurrentConversions int    `xml:"MaxConcurrentConversions"`
}

// RetentionConfig controls how long outputs and finished jobs are kept
type RetentionConfig struct {
	OutputMaxAgeMinutes    int `xml:"OutputMaxAgeMinutes"`
	JobMaxAgeMinutes       int `xml:"JobMaxAgeMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFileDeletion bool `xml:"AllowFileDeletion"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	LogFormat            string `xml:"LogFormat"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	EnableMetrics        bool   `xml:"EnableMetrics"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8000,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:       600,
			ReadHeaderTimeout: 10,
			WriteTimeout:      180,
			IdleTimeout:       120,
			BodyLimit:         "110M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			OutputDirectory:  "./data/output",
			HistoryDatabase:  "./data/history.duckdb",
			PresetsFile:      "./presets.yaml",
		},
		Conversion: ConversionConfig{
			FFmpegPath:               "ffmpeg",
			DefaultFPS:               convert.DefaultFPS,
			MinFPS:                   1,
			MaxFPS:                   30,
			DefaultWidth:             convert.DefaultWidth,
			MinWidth:                 100,
			MaxWidth:                 800,
			TimeoutSeconds:           int(convert.DefaultTimeout / time.Second),
			MaxUploadSizeMB:          100,
			AllowedExtensions:        ".mp4,.avi,.mov,.webm,.mkv,.m4v",
			MaxConcurrentConversions: 2,
		},
		Retention: RetentionConfig{
			OutputMaxAgeMinutes:    60,
			JobMaxAgeMinutes:       30,
			CleanupIntervalMinutes: 5,
		},
		Security: SecurityConfig{
			AllowFileDeletion: true,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			LogFormat:            "text",
			EnableRequestLogging: true,
			EnableMetrics:        true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "256MB",
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- GIF Maker Live Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects settings the server cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	conv := c.Conversion

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("Server.Port %d out of range", c.Server.Port))
	}
	if err := c.Limits().Validate(); err != nil {
		errs = append(errs, err)
	}
	if conv.DefaultFPS < conv.MinFPS || conv.DefaultFPS > conv.MaxFPS {
		errs = append(errs, fmt.Errorf("Conversion.DefaultFPS %d outside [%d, %d]", conv.DefaultFPS, conv.MinFPS, conv.MaxFPS))
	}
	if conv.DefaultWidth < conv.MinWidth || conv.DefaultWidth > conv.MaxWidth {
		errs = append(errs, fmt.Errorf("Conversion.DefaultWidth %d outside [%d, %d]", conv.DefaultWidth, conv.MinWidth, conv.MaxWidth))
	}
	if conv.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("Conversion.TimeoutSeconds must be positive"))
	}
	if conv.MaxUploadSizeMB <= 0 {
		errs = append(errs, errors.New("Conversion.MaxUploadSizeMB must be positive"))
	}
	if conv.MaxConcurrentConversions <= 0 {
		errs = append(errs, errors.New("Conversion.MaxConcurrentConversions must be positive"))
	}
	if strings.TrimSpace(conv.FFmpegPath) == "" {
		errs = append(errs, errors.New("Conversion.FFmpegPath is empty"))
	}
	if len(c.AllowedExtensions()) == 0 {
		errs = append(errs, errors.New("Conversion.AllowedExtensions is empty"))
	}
	if c.Server.BodyLimit != "" && conv.MaxUploadSizeMB > 0 {
		limit, err := bytes.Parse(c.Server.BodyLimit)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("Server.BodyLimit %q: %w", c.Server.BodyLimit, err))
		case limit < c.MaxUploadBytes():
			errs = append(errs, fmt.Errorf("Server.BodyLimit %s is below Conversion.MaxUploadSizeMB %d", c.Server.BodyLimit, conv.MaxUploadSizeMB))
		}
	}
	if c.Server.ReadTimeout < 0 || c.Server.ReadHeaderTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("Server timeouts must not be negative"))
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= conv.TimeoutSeconds {
		errs = append(errs, fmt.Errorf("Server.WriteTimeoutSeconds %d must exceed Conversion.TimeoutSeconds %d", c.Server.WriteTimeout, conv.TimeoutSeconds))
	}
	if c.Retention.CleanupIntervalMinutes <= 0 {
		errs = append(errs, errors.New("Retention.CleanupIntervalMinutes must be positive"))
	}

	return errors.Join(errs...)
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves every storage path that still lives under the default data dir
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.OutputDirectory = filepath.Join(dataDir, "output")
		if c.Storage.HistoryDatabase != "" {
			c.Storage.HistoryDatabase = filepath.Join(dataDir, "history.duckdb")
		}
	}

	if ffmpeg := os.Getenv("FFMPEG_PATH"); ffmpeg != "" {
		c.Conversion.FFmpegPath = ffmpeg
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Advanced.LogFormat = format
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.OutputDirectory,
		&c.Storage.HistoryDatabase,
		&c.Storage.PresetsFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetOutputDir returns the absolute output directory path
func (c *AppConfig) GetOutputDir() string {
	return c.Storage.OutputDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// ConversionTimeout is the per-conversion ffmpeg deadline.
func (c *AppConfig) ConversionTimeout() time.Duration {
	return time.Duration(c.Conversion.TimeoutSeconds) * time.Second
}

// MaxUploadBytes is the upload size limit in bytes.
func (c *AppConfig) MaxUploadBytes() int64 {
	return int64(c.Conversion.MaxUploadSizeMB) * 1024 * 1024
}

// AllowedExtensions returns the accepted upload extensions, lowercased
// and dot-prefixed.
func (c *AppConfig) AllowedExtensions() []string {
	var exts []string
	for _, ext := range strings.Split(c.Conversion.AllowedExtensions, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return exts
}

// DefaultParams returns the fps/width used when a request omits them.
func (c *AppConfig) DefaultParams() convert.Params {
	return convert.Params{FPS: c.Conversion.DefaultFPS, Width: c.Conversion.DefaultWidth}
}

// Limits returns the clamp bounds for fps and width.
func (c *AppConfig) Limits() convert.Limits {
	return convert.Limits{
		MinFPS:   c.Conversion.MinFPS,
		MaxFPS:   c.Conversion.MaxFPS,
		MinWidth: c.Conversion.MinWidth,
		MaxWidth: c.Conversion.MaxWidth,
	}
}

// Retention durations.
func (c *AppConfig) OutputMaxAge() time.Duration {
	return time.Duration(c.Retention.OutputMaxAgeMinutes) * time.Minute
}

func (c *AppConfig) JobMaxAge() time.Duration {
	return time.Duration(c.Retention.JobMaxAgeMinutes) * time.Minute
}

func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Retention.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.OutputDirectory,
	}
	if c.Storage.HistoryDatabase != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.HistoryDatabase))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
