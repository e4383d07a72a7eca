package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gifmaker-live/backend/internal/models"
	"github.com/google/uuid"
)

const (
	outputPrefix = "output_"
	outputExt    = ".gif"
	defaultExt   = ".mp4"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid filename")
	ErrTooLarge    = errors.New("file too large")
)

// Store defines the interface for upload and output file storage.
type Store interface {
	SaveUpload(name string, r io.Reader, limit int64) (*models.FileInfo, error)
	UploadPath(id string) (string, error)
	DeleteUpload(id string) error
	NewOutputName(id string) string
	OutputPath(name string) (string, error)
	StatOutput(name string) (*models.FileInfo, error)
	ListOutputs(limit int) ([]*models.FileInfo, error)
	DeleteOutput(name string) error
	CleanupOutputs(olderThan time.Time) (int, error)
}

// LocalStore implements Store using the local filesystem. Uploads are
// tracked in memory for the lifetime of a conversion; outputs are read
// back from disk so they survive restarts.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	outputDir string
	uploads   map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir, outputDir string) (*LocalStore, error) {
	for _, dir := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	return &LocalStore{
		uploadDir: uploadDir,
		outputDir: outputDir,
		uploads:   make(map[string]*models.FileInfo),
	}, nil
}

// NewID returns a short random identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// SaveUpload streams r to the uploads directory. A positive limit caps the
// number of bytes accepted; the partial file is removed when it is exceeded.
func (s *LocalStore) SaveUpload(name string, r io.Reader, limit int64) (*models.FileInfo, error) {
	id := NewID()
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = defaultExt
	}
	diskName := id + ext
	path := filepath.Join(s.uploadDir, diskName)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	size, err := io.Copy(f, src)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if limit > 0 && size > limit {
		os.Remove(path)
		return nil, ErrTooLarge
	}

	info := &models.FileInfo{
		ID:        id,
		Name:      diskName,
		Original:  name,
		Size:      size,
		Kind:      models.FileKindUpload,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[id] = info

	return info, nil
}

// UploadPath returns the absolute path to an upload.
func (s *LocalStore) UploadPath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.uploads[id]
	if !ok {
		return "", fmt.Errorf("upload %s: %w", id, ErrNotFound)
	}

	return filepath.Join(s.uploadDir, info.Name), nil
}

// DeleteUpload removes an upload from disk and forgets it.
func (s *LocalStore) DeleteUpload(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.uploads[id]
	if !ok {
		return fmt.Errorf("upload %s: %w", id, ErrNotFound)
	}

	path := filepath.Join(s.uploadDir, info.Name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.uploads, id)
	return nil
}

// NewOutputName returns the GIF file name for an upload id.
func (s *LocalStore) NewOutputName(id string) string {
	return outputPrefix + id + outputExt
}

// ValidateOutputName rejects names that could escape the output directory.
func ValidateOutputName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}

// OutputPath returns the path an output with this name lives at. The file
// does not have to exist yet.
func (s *LocalStore) OutputPath(name string) (string, error) {
	if err := ValidateOutputName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.outputDir, name), nil
}

// StatOutput returns metadata for an existing output.
func (s *LocalStore) StatOutput(name string) (*models.FileInfo, error) {
	path, err := s.OutputPath(name)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("output %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("stat output: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("output %s: %w", name, ErrNotFound)
	}

	return outputInfo(fi), nil
}

// ListOutputs returns the most recent outputs, newest first.
func (s *LocalStore) ListOutputs(limit int) ([]*models.FileInfo, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return nil, fmt.Errorf("reading output directory: %w", err)
	}

	var list []*models.FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), outputExt) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		list = append(list, outputInfo(fi))
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// DeleteOutput removes a generated GIF.
func (s *LocalStore) DeleteOutput(name string) error {
	path, err := s.OutputPath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("deleting output: %w", err)
	}
	return nil
}

// CleanupOutputs removes outputs last modified before olderThan and
// returns how many were deleted.
func (s *LocalStore) CleanupOutputs(olderThan time.Time) (int, error) {
	outputs, err := s.ListOutputs(0)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, info := range outputs {
		if !info.CreatedAt.Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(s.outputDir, info.Name)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing %s: %w", info.Name, err)
		}
		removed++
	}

	return removed, nil
}

func outputInfo(fi os.FileInfo) *models.FileInfo {
	name := fi.Name()
	id := strings.TrimSuffix(strings.TrimPrefix(name, outputPrefix), outputExt)
	return &models.FileInfo{
		ID:        id,
		Name:      name,
		Size:      fi.Size(),
		Kind:      models.FileKindOutput,
		CreatedAt: fi.ModTime(),
	}
}
