// Package retention periodically removes generated GIFs and finished jobs.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/gifmaker-live/backend/internal/storage"
	"github.com/jonboulle/clockwork"
)

// JobCleaner drops finished jobs older than a max age.
type JobCleaner interface {
	CleanupOldJobs(maxAge time.Duration) int
}

// Janitor sweeps outputs and jobs on a fixed interval.
type Janitor struct {
	Store        storage.Store
	Jobs         JobCleaner
	Clock        clockwork.Clock
	Interval     time.Duration
	OutputMaxAge time.Duration
	JobMaxAge    time.Duration
}

// Run sweeps every Interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	clock := j.clock()
	ticker := clock.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			j.Sweep()
		}
	}
}

// Sweep performs one cleanup pass.
func (j *Janitor) Sweep() (outputs, jobs int) {
	now := j.clock().Now()

	if j.Store != nil && j.OutputMaxAge > 0 {
		n, err := j.Store.CleanupOutputs(now.Add(-j.OutputMaxAge))
		if err != nil {
			slog.Warn("output cleanup failed", "error", err)
		}
		outputs = n
	}
	if j.Jobs != nil && j.JobMaxAge > 0 {
		jobs = j.Jobs.CleanupOldJobs(j.JobMaxAge)
	}

	if outputs > 0 || jobs > 0 {
		slog.Info("retention sweep", "outputs_removed", outputs, "jobs_removed", jobs)
	}
	return outputs, jobs
}

func (j *Janitor) clock() clockwork.Clock {
	if j.Clock == nil {
		return clockwork.NewRealClock()
	}
	return j.Clock
}
