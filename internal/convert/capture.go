package convert

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
)

// Recording length bounds for camera capture, in frames.
const (
	MinCaptureFrames     = 30
	MaxCaptureFrames     = 300
	DefaultCaptureFrames = 150
)

// CaptureDevice names a camera and the ffmpeg input format that reads it.
type CaptureDevice struct {
	Format string
	Name   string
}

// DefaultCaptureDevice returns the first camera for the current platform.
func DefaultCaptureDevice() CaptureDevice {
	return CaptureDeviceFor(runtime.GOOS, "")
}

// CaptureDeviceFor resolves a device name for goos. An empty name selects
// the platform's first camera.
func CaptureDeviceFor(goos, name string) CaptureDevice {
	switch goos {
	case "darwin":
		if name == "" {
			name = "0"
		}
		return CaptureDevice{Format: "avfoundation", Name: name}
	case "windows":
		if name == "" {
			name = "Integrated Camera"
		}
		return CaptureDevice{Format: "dshow", Name: "video=" + name}
	default:
		if name == "" {
			name = "/dev/video0"
		}
		return CaptureDevice{Format: "v4l2", Name: name}
	}
}

// CaptureArgs builds the ffmpeg arguments that record maxFrames frames from
// the camera into an intermediate video file.
func CaptureArgs(dev CaptureDevice, maxFrames int, output string) []string {
	maxFrames = clamp(maxFrames, MinCaptureFrames, MaxCaptureFrames)
	return []string{
		"-y",
		"-f", dev.Format,
		"-i", dev.Name,
		"-frames:v", strconv.Itoa(maxFrames),
		"-an",
		output,
	}
}

// RecordingArgs is BuildArgs for camera recordings. Frame sampling rounds
// up so short clips keep their last frame.
func RecordingArgs(input, output string, p Params) []string {
	return []string{
		"-y",
		"-i", input,
		"-vf", fmt.Sprintf("fps=fps=%d:round=up,scale=%d:-1:flags=lanczos", p.FPS, p.Width),
		"-loop", "0",
		output,
	}
}

// Capture records from dev into output.
func (c *Converter) Capture(ctx context.Context, dev CaptureDevice, maxFrames int, output string) error {
	return c.run(ctx, CaptureArgs(dev, maxFrames, output), output)
}

// ConvertRecording converts a captured clip into a GIF.
func (c *Converter) ConvertRecording(ctx context.Context, input, output string, p Params) error {
	return c.run(ctx, RecordingArgs(input, output, p), output)
}
