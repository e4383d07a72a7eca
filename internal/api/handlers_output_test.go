// handlers_output_test.go - Tests for download and output handlers
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gifmaker-live/backend/internal/models"
	"github.com/gifmaker-live/backend/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func newFilenameContext(e *echo.Echo, method, target, filename string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("filename")
	c.SetParamValues(filename)
	return c, rec
}

func TestOutputHandler_HandleDownload(t *testing.T) {
	env := newTestEnv(t)
	env.writeOutput(t, "output_abcd1234.gif", []byte("GIF89a-data"))
	handler := NewOutputHandler(env.store, true)
	e := echo.New()

	t.Run("serves gif as attachment", func(t *testing.T) {
		c, rec := newFilenameContext(e, http.MethodGet, "/download/output_abcd1234.gif", "output_abcd1234.gif")
		require.NoError(t, handler.HandleDownload(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/gif", rec.Header().Get(echo.HeaderContentType))
		assert.Equal(t, `attachment; filename="output_abcd1234.gif"`, rec.Header().Get(echo.HeaderContentDisposition))
		assert.Equal(t, "GIF89a-data", rec.Body.String())
	})

	for _, name := range []string{"../secret.gif", "..", "a/b.gif", `a\b.gif`} {
		t.Run("rejects "+name, func(t *testing.T) {
			c, _ := newFilenameContext(e, http.MethodGet, "/download/x", name)
			apiErr := requireAPIError(t, handler.HandleDownload(c), http.StatusBadRequest, "BAD_REQUEST")
			assert.Equal(t, "Invalid filename", apiErr.Message)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		c, _ := newFilenameContext(e, http.MethodGet, "/download/output_nope.gif", "output_nope.gif")
		apiErr := requireAPIError(t, handler.HandleDownload(c), http.StatusNotFound, "NOT_FOUND")
		assert.Equal(t, "File not found", apiErr.Message)
	})
}

func TestOutputHandler_HandleListOutputs(t *testing.T) {
	store := testutil.NewMockStorage()
	now := time.Now()
	store.PutOutput("output_old.gif", []byte("1"), now.Add(-time.Hour))
	store.PutOutput("output_mid.gif", []byte("22"), now.Add(-time.Minute))
	store.PutOutput("output_new.gif", []byte("333"), now)
	handler := NewOutputHandler(store, true)
	e := echo.New()

	t.Run("json newest first", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/outputs", nil)
		rec := httptest.NewRecorder()
		require.NoError(t, handler.HandleListOutputs(e.NewContext(req, rec)))

		var files []models.FileInfo
		decodeJSON(t, rec, &files)
		require.Len(t, files, 3)
		assert.Equal(t, "output_new.gif", files[0].Name)
		assert.Equal(t, int64(3), files[0].Size)
		assert.Equal(t, "output_old.gif", files[2].Name)
	})

	t.Run("limit with msgpack", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/outputs?limit=2", nil)
		req.Header.Set(echo.HeaderAccept, "application/x-msgpack")
		rec := httptest.NewRecorder()
		require.NoError(t, handler.HandleListOutputs(e.NewContext(req, rec)))

		var files []models.FileInfo
		require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &files))
		require.Len(t, files, 2)
		assert.Equal(t, "output_mid.gif", files[1].Name)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/outputs?limit=abc", nil)
		rec := httptest.NewRecorder()
		requireAPIError(t, handler.HandleListOutputs(e.NewContext(req, rec)), http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

func TestOutputHandler_HandleDeleteOutput(t *testing.T) {
	tests := []struct {
		name        string
		allowDelete bool
		filename    string
		wantStatus  int
		errCode     string
	}{
		{"deletes existing", true, "output_a.gif", http.StatusNoContent, ""},
		{"missing", true, "output_missing.gif", http.StatusNotFound, "NOT_FOUND"},
		{"traversal", true, "../output_a.gif", http.StatusBadRequest, "BAD_REQUEST"},
		{"disabled", false, "output_a.gif", http.StatusForbidden, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage()
			store.PutOutput("output_a.gif", []byte("gif"), time.Now())
			handler := NewOutputHandler(store, tt.allowDelete)

			c, rec := newFilenameContext(echo.New(), http.MethodDelete, "/api/outputs/x", tt.filename)
			err := handler.HandleDeleteOutput(c)

			if tt.errCode != "" {
				requireAPIError(t, err, tt.wantStatus, tt.errCode)
				_, statErr := store.StatOutput("output_a.gif")
				assert.NoError(t, statErr, "existing output must survive a rejected delete")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			_, statErr := store.StatOutput("output_a.gif")
			assert.Error(t, statErr)
		})
	}
}
