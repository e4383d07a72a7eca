// Package main provides the gifmaker command line tool.
//
// Usage:
//
//	gifmaker convert <video> [--fps 10] [--width 320] [--preset name]
//	gifmaker record [--max-frames 150] [--fps 8] [--name recording]
//	gifmaker presets
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/gifmaker-live/backend/internal/logging"
	"github.com/gifmaker-live/backend/internal/presets"
	"github.com/spf13/cobra"
)

const appName = "gifmaker"

// app carries what the subcommands share. Tests swap the runner and clock.
type app struct {
	ffmpeg      string
	timeout     time.Duration
	presetsFile string
	verbose     bool

	runner convert.Runner
	now    func() time.Time
}

func (a *app) converter() *convert.Converter {
	c := convert.NewConverter(a.ffmpeg, a.timeout)
	if a.runner != nil {
		c.Runner = a.runner
	}
	return c
}

func (a *app) presets() (*presets.Set, error) {
	set, err := presets.Load(a.presetsFile)
	if err != nil {
		return nil, fmt.Errorf("loading presets from %s: %w", a.presetsFile, err)
	}
	return set, nil
}

// defaultPresetsFile is presets.yaml in the per-user config directory.
func defaultPresetsFile() string {
	return filepath.Join(xdg.ConfigHome, appName, "presets.yaml")
}

func defaultFFmpeg() string {
	if p := os.Getenv("FFMPEG_PATH"); p != "" {
		return p
	}
	return "ffmpeg"
}

// NewRootCmd creates the root command for gifmaker.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{now: time.Now})
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Turn videos and camera recordings into animated GIFs",
		Long: `gifmaker converts video files to animated GIFs with ffmpeg.

It can also record a short clip from a camera and save the GIF to your
Downloads folder.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if a.verbose {
				level = "debug"
			}
			logging.InitLoggerTo(cmd.ErrOrStderr(), level, "text")
		},
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().StringVar(&a.ffmpeg, "ffmpeg", defaultFFmpeg(), "Path to the ffmpeg binary")
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", convert.DefaultTimeout, "Maximum time for one ffmpeg run")
	cmd.PersistentFlags().StringVar(&a.presetsFile, "presets-file", defaultPresetsFile(), "YAML file with conversion presets")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(newConvertCmd(a))
	cmd.AddCommand(newRecordCmd(a))
	cmd.AddCommand(newPresetsCmd(a))

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
