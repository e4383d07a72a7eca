// handlers_convert_test.go - Tests for conversion handlers
package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/gifmaker-live/backend/internal/job"
	"github.com/gifmaker-live/backend/internal/models"
	"github.com/gifmaker-live/backend/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestConvertHandler_HandleConvert(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		fields     map[string]string
		wantFPS    int
		wantWidth  int
		wantStatus int
		errCode    string
	}{
		{
			name:       "defaults",
			filename:   "clip.mp4",
			wantFPS:    10,
			wantWidth:  320,
			wantStatus: http.StatusOK,
		},
		{
			name:       "explicit values",
			filename:   "clip.webm",
			fields:     map[string]string{"fps": "15", "width": "480"},
			wantFPS:    15,
			wantWidth:  480,
			wantStatus: http.StatusOK,
		},
		{
			name:       "out of range values are clamped",
			filename:   "clip.mov",
			fields:     map[string]string{"fps": "99", "width": "20"},
			wantFPS:    30,
			wantWidth:  100,
			wantStatus: http.StatusOK,
		},
		{
			name:       "negative values are clamped",
			filename:   "clip.mkv",
			fields:     map[string]string{"fps": "-5", "width": "5000"},
			wantFPS:    1,
			wantWidth:  800,
			wantStatus: http.StatusOK,
		},
		{
			name:       "preset",
			filename:   "clip.avi",
			fields:     map[string]string{"preset": "smooth"},
			wantFPS:    20,
			wantWidth:  480,
			wantStatus: http.StatusOK,
		},
		{
			name:       "form values override preset",
			filename:   "clip.m4v",
			fields:     map[string]string{"preset": "Smooth", "fps": "5"},
			wantFPS:    5,
			wantWidth:  480,
			wantStatus: http.StatusOK,
		},
		{
			name:       "extension is case insensitive",
			filename:   "CLIP.MP4",
			wantFPS:    10,
			wantWidth:  320,
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid extension",
			filename:   "notes.txt",
			wantStatus: http.StatusBadRequest,
			errCode:    "INVALID_FILE_TYPE",
		},
		{
			name:       "no extension",
			filename:   "video",
			wantStatus: http.StatusBadRequest,
			errCode:    "INVALID_FILE_TYPE",
		},
		{
			name:       "missing file",
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
		{
			name:       "non numeric fps",
			filename:   "clip.mp4",
			fields:     map[string]string{"fps": "fast"},
			wantStatus: http.StatusBadRequest,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "unknown preset",
			filename:   "clip.mp4",
			fields:     map[string]string{"preset": "huge"},
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			handler := NewConvertHandler(env.store, env.jobs, nil, DefaultConvertSettings())

			e := echo.New()
			req := newMultipartRequest(t, "/convert", tt.filename, []byte("fake video"), tt.fields)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler.HandleConvert(c)

			if tt.errCode != "" {
				requireAPIError(t, err, tt.wantStatus, tt.errCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var result models.ConversionResult
			decodeJSON(t, rec, &result)
			assert.True(t, strings.HasPrefix(result.Filename, "output_"), result.Filename)
			assert.True(t, strings.HasSuffix(result.Filename, ".gif"), result.Filename)
			assert.Equal(t, "11 bytes", result.FileSize)
			assert.Equal(t, tt.wantFPS, result.FPS)
			assert.Equal(t, tt.wantWidth, result.Width)
			assert.Equal(t, convert.Params{FPS: tt.wantFPS, Width: tt.wantWidth}, env.conv.params())

			_, err = env.store.StatOutput(result.Filename)
			assert.NoError(t, err)
		})
	}
}

func TestConvertHandler_FileTooLarge(t *testing.T) {
	env := newTestEnv(t)
	settings := DefaultConvertSettings()
	settings.MaxUploadBytes = 4
	handler := NewConvertHandler(env.store, env.jobs, nil, settings)

	e := echo.New()
	req := newMultipartRequest(t, "/convert", "clip.mp4", []byte("ten bytes!"), nil)
	rec := httptest.NewRecorder()

	err := handler.HandleConvert(e.NewContext(req, rec))
	apiErr := requireAPIError(t, err, http.StatusBadRequest, "FILE_TOO_LARGE")
	assert.Contains(t, apiErr.Message, "File too large")
}

func TestConvertHandler_ConversionErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
		details string
	}{
		{
			name:    "timeout",
			err:     convert.ErrTimeout,
			status:  http.StatusInternalServerError,
			code:    "CONVERSION_TIMEOUT",
			message: "Video conversion timed out",
		},
		{
			name:    "ffmpeg failure",
			err:     &convert.ToolError{ExitCode: 1, Stderr: "Invalid data found when processing input"},
			status:  http.StatusInternalServerError,
			code:    "FFMPEG_ERROR",
			message: "FFmpeg error",
			details: "Invalid data found when processing input",
		},
		{
			name:    "no output",
			err:     convert.ErrNoOutput,
			status:  http.StatusInternalServerError,
			code:    "FFMPEG_ERROR",
			message: "FFmpeg error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.conv.err = tt.err
			handler := NewConvertHandler(env.store, env.jobs, nil, DefaultConvertSettings())

			e := echo.New()
			req := newMultipartRequest(t, "/convert", "clip.mp4", []byte("fake video"), nil)
			rec := httptest.NewRecorder()

			err := handler.HandleConvert(e.NewContext(req, rec))
			apiErr := requireAPIError(t, err, tt.status, tt.code)
			assert.Equal(t, tt.message, apiErr.Message)
			if tt.details != "" {
				assert.Equal(t, tt.details, apiErr.Details)
			}

			outputs, err := env.store.ListOutputs(0)
			require.NoError(t, err)
			assert.Empty(t, outputs)
		})
	}
}

func TestConvertHandler_UploadRemovedAfterConversion(t *testing.T) {
	store := testutil.NewMockStorage()
	conv := &fakeConverter{err: convert.ErrTimeout}
	jobs := job.NewManager(store, conv, job.Options{})
	handler := NewConvertHandler(store, jobs, nil, DefaultConvertSettings())

	e := echo.New()
	req := newMultipartRequest(t, "/convert", "clip.mp4", []byte("fake video"), nil)
	rec := httptest.NewRecorder()

	err := handler.HandleConvert(e.NewContext(req, rec))
	requireAPIError(t, err, http.StatusInternalServerError, "CONVERSION_TIMEOUT")
	assert.Equal(t, 0, store.UploadCount())
}

func TestConvertHandler_SubmitAndGetJob(t *testing.T) {
	env := newTestEnv(t)
	handler := NewConvertHandler(env.store, env.jobs, nil, DefaultConvertSettings())
	e := echo.New()

	req := newMultipartRequest(t, "/api/jobs", "clip.mp4", []byte("fake video"), map[string]string{"width": "640"})
	rec := httptest.NewRecorder()
	require.NoError(t, handler.HandleSubmitJob(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var submitted job.Job
	decodeJSON(t, rec, &submitted)
	require.NotEmpty(t, submitted.ID)
	assert.Equal(t, "clip.mp4", submitted.SourceName)
	assert.Equal(t, 640, submitted.Params.Width)

	require.Eventually(t, func() bool {
		j, ok := env.jobs.Get(submitted.ID)
		return ok && j.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	// JSON
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted.ID, nil)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(submitted.ID)
	require.NoError(t, handler.HandleGetJob(c))

	var got job.Job
	decodeJSON(t, rec, &got)
	assert.Equal(t, job.StatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 640, got.Result.Width)

	// MessagePack
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted.ID, nil)
	req.Header.Set(echo.HeaderAccept, MIMEApplicationMsgpack)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(submitted.ID)
	require.NoError(t, handler.HandleGetJob(c))
	assert.Equal(t, MIMEApplicationMsgpack, rec.Header().Get(echo.HeaderContentType))

	var packed job.Job
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Equal(t, submitted.ID, packed.ID)
	assert.Equal(t, job.StatusComplete, packed.Status)
	require.NotNil(t, packed.Result)
	assert.Equal(t, got.Result.Filename, packed.Result.Filename)
}

func TestConvertHandler_GetJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	handler := NewConvertHandler(env.store, env.jobs, nil, DefaultConvertSettings())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	requireAPIError(t, handler.HandleGetJob(c), http.StatusNotFound, "NOT_FOUND")
}
