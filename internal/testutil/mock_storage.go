// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gifmaker-live/backend/internal/models"
	"github.com/gifmaker-live/backend/internal/storage"
)

// MockStorage implements storage.Store in memory. Paths point below a
// fixed root and are never created on disk.
type MockStorage struct {
	Root    string
	SaveErr error

	mu       sync.RWMutex
	uploads  map[string]*models.FileInfo
	outputs  map[string]*models.FileInfo
	fileData map[string][]byte
	counter  int
}

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		Root:     "/mock",
		uploads:  make(map[string]*models.FileInfo),
		outputs:  make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
	}
}

func (m *MockStorage) SaveUpload(name string, r io.Reader, limit int64) (*models.FileInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, storage.ErrTooLarge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	id := fmt.Sprintf("test%04d", m.counter)
	info := &models.FileInfo{
		ID:        id,
		Name:      id + strings.ToLower(filepath.Ext(name)),
		Original:  name,
		Size:      int64(len(data)),
		Kind:      models.FileKindUpload,
		CreatedAt: time.Now(),
	}
	m.uploads[id] = info
	m.fileData[id] = data
	return info, nil
}

func (m *MockStorage) UploadPath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.uploads[id]
	if !ok {
		return "", storage.ErrNotFound
	}
	return filepath.Join(m.Root, "uploads", info.Name), nil
}

func (m *MockStorage) DeleteUpload(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.uploads[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.uploads, id)
	delete(m.fileData, id)
	return nil
}

// HasUpload reports whether an upload is still tracked.
func (m *MockStorage) HasUpload(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.uploads[id]
	return ok
}

// UploadCount returns the number of tracked uploads.
func (m *MockStorage) UploadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploads)
}

func (m *MockStorage) NewOutputName(id string) string {
	return "output_" + id + ".gif"
}

func (m *MockStorage) OutputPath(name string) (string, error) {
	if err := storage.ValidateOutputName(name); err != nil {
		return "", err
	}
	return filepath.Join(m.Root, "output", name), nil
}

// PutOutput registers an output as if ffmpeg had written it.
func (m *MockStorage) PutOutput(name string, data []byte, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outputs[name] = &models.FileInfo{
		ID:        strings.TrimSuffix(strings.TrimPrefix(name, "output_"), ".gif"),
		Name:      name,
		Size:      int64(len(data)),
		Kind:      models.FileKindOutput,
		CreatedAt: createdAt,
	}
	m.fileData[name] = data
}

func (m *MockStorage) StatOutput(name string) (*models.FileInfo, error) {
	if err := storage.ValidateOutputName(name); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.outputs[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return info, nil
}

func (m *MockStorage) ListOutputs(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*models.FileInfo
	for _, info := range m.outputs {
		files = append(files, info)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (m *MockStorage) DeleteOutput(name string) error {
	if err := storage.ValidateOutputName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.outputs[name]; !ok {
		return storage.ErrNotFound
	}
	delete(m.outputs, name)
	delete(m.fileData, name)
	return nil
}

func (m *MockStorage) CleanupOutputs(olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for name, info := range m.outputs {
		if info.CreatedAt.Before(olderThan) {
			delete(m.outputs, name)
			delete(m.fileData, name)
			removed++
		}
	}
	return removed, nil
}

var _ storage.Store = (*MockStorage)(nil)
