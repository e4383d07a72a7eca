package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/gifmaker-live/backend/internal/job"
	"github.com/gifmaker-live/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// fakeConverter stands in for ffmpeg and writes a tiny GIF.
type fakeConverter struct {
	mu      sync.Mutex
	err     error
	release chan struct{}
	last    convert.Params
}

func (f *fakeConverter) Convert(ctx context.Context, input, output string, p convert.Params) error {
	f.mu.Lock()
	f.last = p
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(output, []byte("GIF89a-test"), 0644)
}

func (f *fakeConverter) params() convert.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type testEnv struct {
	store *storage.LocalStore
	conv  *fakeConverter
	jobs  *job.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "output"))
	require.NoError(t, err)

	conv := &fakeConverter{}
	jobs := job.NewManager(store, conv, job.Options{MaxConcurrent: 2})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		jobs.Shutdown(ctx)
	})

	return &testEnv{store: store, conv: conv, jobs: jobs}
}

// writeOutput places a GIF in the store's output directory.
func (env *testEnv) writeOutput(t *testing.T, name string, data []byte) {
	t.Helper()
	path, err := env.store.OutputPath(name)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// newMultipartRequest builds a multipart/form-data request with an
// optional file and extra form fields.
func newMultipartRequest(t *testing.T, target, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func requireAPIError(t *testing.T, err error, status int, code string) *APIError {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T: %v", err, err)
	require.Equal(t, status, apiErr.Status, "message: %s", apiErr.Message)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}
