package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/spf13/cobra"
)

const defaultRecordFPS = 8

type recordOptions struct {
	device    string
	maxFrames int
	fps       int
	width     int
	name      string
	outputDir string
}

func newRecordCmd(a *app) *cobra.Command {
	opts := &recordOptions{}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a clip from the camera and save it as a GIF",
		Long: `Record up to --max-frames frames from a camera and convert them to a GIF.

The GIF is named <name>_<YYYYmmdd_HHMMSS>.gif and saved to your Downloads
folder unless --output-dir is given. The camera is read through ffmpeg
(v4l2 on Linux, avfoundation on macOS, dshow on Windows).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.device, "device", "d", "", "Camera device (default: the platform's first camera)")
	cmd.Flags().IntVar(&opts.maxFrames, "max-frames", convert.DefaultCaptureFrames,
		fmt.Sprintf("Frames to record (%d-%d)", convert.MinCaptureFrames, convert.MaxCaptureFrames))
	cmd.Flags().IntVar(&opts.fps, "fps", defaultRecordFPS, "GIF frames per second")
	cmd.Flags().IntVar(&opts.width, "width", convert.DefaultWidth, "GIF width in pixels")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "recording", "Output file name prefix")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory to save the GIF in (default: Downloads)")

	return cmd
}

func runRecord(cmd *cobra.Command, a *app, opts *recordOptions) error {
	name := strings.TrimSpace(opts.name)
	if name == "" {
		return fmt.Errorf("output name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("output name %q must not contain path separators", name)
	}

	dir := opts.outputDir
	if dir == "" {
		dir = xdg.UserDirs.Download
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	frames := clampFrames(opts.maxFrames)
	params := convert.DefaultLimits().Clamp(convert.Params{FPS: opts.fps, Width: opts.width})
	dev := convert.CaptureDeviceFor(runtime.GOOS, opts.device)
	output := filepath.Join(dir, recordingName(name, a.now()))

	tmpDir, err := os.MkdirTemp("", appName+"-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	clip := filepath.Join(tmpDir, "capture.mp4")

	out := cmd.OutOrStdout()
	conv := a.converter()

	fmt.Fprintf(out, "Recording %d frames from %s...\n", frames, dev.Name)
	if err := conv.Capture(cmd.Context(), dev, frames, clip); err != nil {
		return fmt.Errorf("recording failed: %w", err)
	}

	fmt.Fprintln(out, "Converting video to GIF...")
	if err := conv.ConvertRecording(cmd.Context(), clip, output, params); err != nil {
		return fmt.Errorf("GIF creation failed: %w", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("reading output: %w", err)
	}

	fmt.Fprintln(out, "GIF created successfully!")
	fmt.Fprintf(out, "File: %s\n", filepath.Base(output))
	fmt.Fprintf(out, "Frames: %d\n", frames)
	fmt.Fprintf(out, "Size: %.1f MB\n", float64(info.Size())/(1024*1024))
	fmt.Fprintf(out, "Location: %s\n", dir)
	return nil
}

// recordingName is <name>_<YYYYmmdd_HHMMSS>.gif.
func recordingName(name string, t time.Time) string {
	return fmt.Sprintf("%s_%s.gif", name, t.Format("20060102_150405"))
}

func clampFrames(n int) int {
	if n < convert.MinCaptureFrames {
		return convert.MinCaptureFrames
	}
	if n > convert.MaxCaptureFrames {
		return convert.MaxCaptureFrames
	}
	return n
}
