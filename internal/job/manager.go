// Package job runs conversions, either inline for a request or as
// background jobs that clients poll or subscribe to.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gifmaker-live/backend/internal/convert"
	"github.com/gifmaker-live/backend/internal/history"
	"github.com/gifmaker-live/backend/internal/logging"
	"github.com/gifmaker-live/backend/internal/metrics"
	"github.com/gifmaker-live/backend/internal/models"
	"github.com/gifmaker-live/backend/internal/storage"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"
)

// Status represents the conversion job status.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusConverting Status = "converting"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether no further updates follow this status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrUnavailable is returned when no conversion slot could be acquired.
	ErrUnavailable = errors.New("no conversion slot available")
)

// Job represents an async conversion job.
type Job struct {
	ID          string                   `json:"id" msgpack:"id"`
	UploadID    string                   `json:"uploadId" msgpack:"uploadId"`
	SourceName  string                   `json:"sourceName" msgpack:"sourceName"`
	Params      convert.Params           `json:"params" msgpack:"params"`
	Status      Status                   `json:"status" msgpack:"status"`
	Progress    float64                  `json:"progress" msgpack:"progress"`
	Stage       string                   `json:"stage" msgpack:"stage"`
	Result      *models.ConversionResult `json:"result,omitempty" msgpack:"result,omitempty"`
	Error       string                   `json:"error,omitempty" msgpack:"error,omitempty"`
	CreatedAt   time.Time                `json:"createdAt" msgpack:"createdAt"`
	CompletedAt *time.Time               `json:"completedAt,omitempty" msgpack:"completedAt,omitempty"`
}

// Request is a stored upload plus the settings to convert it with.
type Request struct {
	Upload *models.FileInfo
	Params convert.Params
}

// Converter is the part of convert.Converter the manager needs.
type Converter interface {
	Convert(ctx context.Context, input, output string, p convert.Params) error
}

// Options configures a Manager. Zero values disable the optional parts.
type Options struct {
	MaxConcurrent int64
	History       history.Recorder
	Metrics       *metrics.ConversionMetrics
	Clock         clockwork.Clock
}

// Manager runs conversions with bounded concurrency.
type Manager struct {
	store   storage.Store
	conv    Converter
	sem     *semaphore.Weighted
	history history.Recorder
	metrics *metrics.ConversionMetrics
	clock   clockwork.Clock

	mu   sync.RWMutex
	jobs map[string]*Job
	subs map[string]map[chan Job]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new conversion manager.
func NewManager(store storage.Store, conv Converter, opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		store:   store,
		conv:    conv,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		history: opts.History,
		metrics: opts.Metrics,
		clock:   opts.Clock,
		jobs:    make(map[string]*Job),
		subs:    make(map[string]map[chan Job]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Convert runs a conversion inline and blocks until it finishes or ctx ends.
func (m *Manager) Convert(ctx context.Context, req Request) (*models.ConversionResult, error) {
	return m.execute(ctx, req, func(Status, string, float64) {})
}

// Submit registers a job and starts it in the background.
func (m *Manager) Submit(req Request) Job {
	job := &Job{
		ID:         uuid.New().String(),
		UploadID:   req.Upload.ID,
		SourceName: req.Upload.Original,
		Params:     req.Params,
		Status:     StatusQueued,
		Stage:      "waiting for a conversion slot",
		CreatedAt:  m.clock.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.processJob(job.ID, req)

	return snapshot
}

// Get returns a copy of a job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Subscribe streams snapshots of a job. The current state is delivered
// first; the channel is closed after the terminal update. Call the returned
// cancel func to stop early.
func (m *Manager) Subscribe(id string) (<-chan Job, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ch := make(chan Job, 8)
	ch <- *job
	if job.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	if m.subs[id] == nil {
		m.subs[id] = make(map[chan Job]struct{})
	}
	m.subs[id][ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if set, ok := m.subs[id]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
			}
		})
	}
	return ch, cancel, nil
}

// CleanupOldJobs removes finished jobs older than maxAge and returns how
// many were dropped.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// Shutdown cancels running background jobs and waits for them to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) processJob(id string, req Request) {
	defer m.wg.Done()
	log := logging.WithJob(id)
	log.Info("job started", "source", req.Upload.Original, "fps", req.Params.FPS, "width", req.Params.Width)

	result, err := m.execute(m.ctx, req, func(status Status, stage string, progress float64) {
		m.update(id, func(j *Job) {
			j.Status = status
			j.Stage = stage
			j.Progress = progress
		})
	})

	now := m.clock.Now()
	m.update(id, func(j *Job) {
		j.CompletedAt = &now
		if err != nil {
			j.Status = StatusError
			j.Stage = "failed"
			j.Error = err.Error()
			return
		}
		j.Status = StatusComplete
		j.Stage = "done"
		j.Progress = 100
		j.Result = result
	})

	if err != nil {
		log.Warn("job failed", "error", err)
		return
	}
	log.Info("job complete", "output", result.Filename, "size", result.FileSize)
}

// update applies fn under the lock and fans the new snapshot out.
func (m *Manager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	snapshot := *job

	for ch := range m.subs[id] {
		select {
		case ch <- snapshot:
		default:
		}
		if snapshot.Status.Terminal() {
			close(ch)
		}
	}
	if snapshot.Status.Terminal() {
		delete(m.subs, id)
	}
}

// execute is the shared conversion path. The upload is always removed
// once it returns.
func (m *Manager) execute(ctx context.Context, req Request, progress func(Status, string, float64)) (*models.ConversionResult, error) {
	log := logging.WithFile(req.Upload.Name)
	defer func() {
		if err := m.store.DeleteUpload(req.Upload.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warn("failed to remove upload", "error", err)
		}
	}()

	m.metrics.Queued(1)
	err := m.sem.Acquire(ctx, 1)
	m.metrics.Queued(-1)
	if err != nil {
		m.metrics.Observe(ResultCancelled, 0, 0)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer m.sem.Release(1)

	progress(StatusConverting, "converting", 10)

	input, err := m.store.UploadPath(req.Upload.ID)
	if err != nil {
		return nil, err
	}
	outputName := m.store.NewOutputName(req.Upload.ID)
	output, err := m.store.OutputPath(outputName)
	if err != nil {
		return nil, err
	}

	rec := history.Record{
		ID:         req.Upload.ID,
		SourceName: req.Upload.Original,
		SourceSize: req.Upload.Size,
		FPS:        req.Params.FPS,
		Width:      req.Params.Width,
		CreatedAt:  m.clock.Now(),
	}

	start := m.clock.Now()
	m.metrics.Started()
	err = m.conv.Convert(ctx, input, output, req.Params)
	m.metrics.Finished()
	elapsed := m.clock.Since(start)
	rec.DurationMs = elapsed.Milliseconds()

	if err != nil {
		m.metrics.Observe(Classify(err), elapsed, 0)
		m.removeOutput(outputName, log)
		rec.Status = history.StatusError
		rec.Error = err.Error()
		m.record(ctx, rec)
		return nil, err
	}

	progress(StatusConverting, "finalizing", 90)

	info, err := m.store.StatOutput(outputName)
	if err != nil {
		err = fmt.Errorf("reading output: %w", err)
		m.metrics.Observe(ResultFailed, elapsed, 0)
		rec.Status = history.StatusError
		rec.Error = err.Error()
		m.record(ctx, rec)
		return nil, err
	}

	m.metrics.Observe(ResultSuccess, elapsed, info.Size)
	rec.Status = history.StatusComplete
	rec.OutputName = outputName
	rec.OutputSize = info.Size
	m.record(ctx, rec)

	log.Debug("conversion finished", "output", outputName, "bytes", info.Size, "elapsed", elapsed)

	return &models.ConversionResult{
		Filename:  outputName,
		FileSize:  convert.HumanSize(info.Size),
		SizeBytes: info.Size,
		FPS:       req.Params.FPS,
		Width:     req.Params.Width,
	}, nil
}

// removeOutput deletes a partial GIF left by a failed ffmpeg run.
func (m *Manager) removeOutput(name string, log *slog.Logger) {
	if err := m.store.DeleteOutput(name); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warn("failed to remove partial output", "output", name, "error", err)
	}
}

func (m *Manager) record(ctx context.Context, rec history.Record) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.history.Record(ctx, rec); err != nil {
		logging.WithError(err).Warn("failed to record conversion history", "id", rec.ID)
	}
}

// Metric labels for conversion results.
const (
	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultTimeout   = "timeout"
	ResultCancelled = "cancelled"
)

// Classify maps a conversion error to a metric label.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, convert.ErrTimeout):
		return ResultTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, ErrUnavailable):
		return ResultCancelled
	default:
		return ResultFailed
	}
}
