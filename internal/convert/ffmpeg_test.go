package convert

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records invocations and optionally writes the last argument as
// the output file, the way ffmpeg does.
type fakeRunner struct {
	calls       [][]string
	writeOutput bool
	stderr      string
	err         error
	block       bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.writeOutput {
		if err := os.WriteFile(args[len(args)-1], []byte("GIF89a"), 0644); err != nil {
			return nil, err
		}
	}
	return []byte(f.stderr), f.err
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs("in.mp4", "out.gif", Params{FPS: 12, Width: 480})
	assert.Equal(t, []string{
		"-y",
		"-i", "in.mp4",
		"-vf", "fps=12,scale=480:-1:flags=lanczos",
		"-loop", "0",
		"out.gif",
	}, args)
}

func TestLimits_Clamp(t *testing.T) {
	l := DefaultLimits()
	tests := []struct {
		name string
		in   Params
		want Params
	}{
		{"in range", Params{FPS: 10, Width: 320}, Params{FPS: 10, Width: 320}},
		{"below minimum", Params{FPS: 0, Width: 50}, Params{FPS: 1, Width: 100}},
		{"above maximum", Params{FPS: 60, Width: 1920}, Params{FPS: 30, Width: 800}},
		{"negative", Params{FPS: -5, Width: -1}, Params{FPS: 1, Width: 100}},
		{"bounds kept", Params{FPS: 30, Width: 100}, Params{FPS: 30, Width: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Clamp(tt.in))
		})
	}
}

func TestLimits_Validate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())
	assert.Error(t, Limits{MinFPS: 10, MaxFPS: 5, MinWidth: 1, MaxWidth: 2}.Validate())
	assert.Error(t, Limits{MinFPS: 1, MaxFPS: 5, MinWidth: 0, MaxWidth: 2}.Validate())
}

func TestConverter_Convert(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.gif")

	t.Run("success", func(t *testing.T) {
		runner := &fakeRunner{writeOutput: true}
		c := NewConverter("/usr/bin/ffmpeg", time.Second)
		c.Runner = runner

		require.NoError(t, c.Convert(context.Background(), "in.mp4", out, Params{FPS: 10, Width: 320}))
		require.Len(t, runner.calls, 1)
		assert.Equal(t, "/usr/bin/ffmpeg", runner.calls[0][0])
		assert.FileExists(t, out)
	})

	t.Run("tool failure carries stderr", func(t *testing.T) {
		runner := &fakeRunner{stderr: "in.mp4: Invalid data found when processing input\n", err: errors.New("exit status 1")}
		c := NewConverter("", time.Second)
		c.Runner = runner

		err := c.Convert(context.Background(), "in.mp4", filepath.Join(dir, "bad.gif"), Params{FPS: 10, Width: 320})
		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, -1, toolErr.ExitCode)
		assert.Contains(t, toolErr.Error(), "Invalid data found")
		assert.Contains(t, toolErr.Error(), "FFmpeg error")
	})

	t.Run("timeout", func(t *testing.T) {
		c := NewConverter("", 20*time.Millisecond)
		c.Runner = &fakeRunner{block: true}

		err := c.Convert(context.Background(), "in.mp4", filepath.Join(dir, "slow.gif"), Params{FPS: 10, Width: 320})
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		c := NewConverter("", time.Minute)
		c.Runner = &fakeRunner{block: true}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := c.Convert(ctx, "in.mp4", filepath.Join(dir, "cancelled.gif"), Params{FPS: 10, Width: 320})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("clean exit without output", func(t *testing.T) {
		c := NewConverter("", time.Second)
		c.Runner = &fakeRunner{}

		err := c.Convert(context.Background(), "in.mp4", filepath.Join(dir, "missing.gif"), Params{FPS: 10, Width: 320})
		assert.ErrorIs(t, err, ErrNoOutput)
	})
}

func TestExecRunner_ExitCode(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	c := NewConverter(sh, time.Second)

	err = c.run(context.Background(), []string{"-c", "echo boom >&2; exit 3"}, filepath.Join(t.TempDir(), "x"))
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Equal(t, "boom\n", toolErr.Stderr)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "0 bytes", HumanSize(0))
	assert.Equal(t, "1023 bytes", HumanSize(1023))
	assert.Equal(t, "1.0 KB", HumanSize(1024))
	assert.Equal(t, "1.5 KB", HumanSize(1536))
	assert.Equal(t, "1.0 MB", HumanSize(1024*1024))
	assert.Equal(t, "2.5 MB", HumanSize(5*1024*1024/2))
}

func TestCaptureArgs(t *testing.T) {
	dev := CaptureDeviceFor("linux", "")
	assert.Equal(t, CaptureDevice{Format: "v4l2", Name: "/dev/video0"}, dev)

	args := CaptureArgs(dev, 1000, "clip.mp4")
	assert.Equal(t, []string{"-y", "-f", "v4l2", "-i", "/dev/video0", "-frames:v", "300", "-an", "clip.mp4"}, args)

	assert.Equal(t, "avfoundation", CaptureDeviceFor("darwin", "").Format)
	assert.Equal(t, "video=Logitech", CaptureDeviceFor("windows", "Logitech").Name)
}

func TestRecordingArgs(t *testing.T) {
	args := RecordingArgs("clip.mp4", "clip.gif", Params{FPS: 8, Width: 320})
	assert.Contains(t, args, "fps=fps=8:round=up,scale=320:-1:flags=lanczos")
}
