package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestInitLoggerTo_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev); Logger = prev })

	var buf bytes.Buffer
	InitLoggerTo(&buf, "info", "json")

	WithJob("job-1").Info("converted", "fps", 10)
	WithError(errors.New("boom")).Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "converted", entry["msg"])
	assert.Equal(t, "job-1", entry["job_id"])
	assert.Equal(t, float64(10), entry["fps"])
}

func TestInitLoggerTo_Text(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev); Logger = prev })

	var buf bytes.Buffer
	InitLoggerTo(&buf, "debug", "text")
	WithFile("output_x.gif").Debug("served")

	assert.Contains(t, buf.String(), "filename=output_x.gif")
	assert.Contains(t, buf.String(), "level=DEBUG")
}
