// Package convert wraps the ffmpeg command line used to turn videos into GIFs.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single ffmpeg run.
const DefaultTimeout = 120 * time.Second

var (
	// ErrTimeout is returned when ffmpeg does not finish within the converter timeout.
	ErrTimeout = errors.New("video conversion timed out")
	// ErrNoOutput is returned when ffmpeg exits cleanly but wrote nothing.
	ErrNoOutput = errors.New("ffmpeg produced no output file")
)

// ToolError carries a failed ffmpeg invocation's exit code and stderr.
type ToolError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("FFmpeg error (exit %d): %s", e.ExitCode, msg)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Runner executes an external command and returns its stderr output.
type Runner interface {
	Run(ctx context.Context, name string, args []string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. Stdin is the null device so ffmpeg
// never blocks on an interactive prompt.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args []string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil
	cmd.Stdout = &bytes.Buffer{}
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// Converter turns a video file into an animated GIF with ffmpeg.
type Converter struct {
	Binary  string
	Timeout time.Duration
	Runner  Runner
}

// NewConverter creates a converter for the given ffmpeg binary.
func NewConverter(binary string, timeout time.Duration) *Converter {
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Converter{
		Binary:  binary,
		Timeout: timeout,
		Runner:  ExecRunner{},
	}
}

// BuildArgs returns the fixed ffmpeg argument template for a conversion.
func BuildArgs(input, output string, p Params) []string {
	return []string{
		"-y",
		"-i", input,
		"-vf", "fps=" + strconv.Itoa(p.FPS) + ",scale=" + strconv.Itoa(p.Width) + ":-1:flags=lanczos",
		"-loop", "0",
		output,
	}
}

// Convert runs ffmpeg on input and writes the GIF to output.
func (c *Converter) Convert(ctx context.Context, input, output string, p Params) error {
	return c.run(ctx, BuildArgs(input, output, p), output)
}

func (c *Converter) run(ctx context.Context, args []string, output string) error {
	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	stderr, err := c.Runner.Run(runCtx, c.Binary, args)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrTimeout
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		toolErr := &ToolError{ExitCode: -1, Stderr: string(stderr), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		return toolErr
	}

	if _, err := os.Stat(output); err != nil {
		return ErrNoOutput
	}
	return nil
}
