// Package history keeps a DuckDB log of finished conversions.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcboeker/go-duckdb"
)

// Conversion outcomes stored in the status column.
const (
	StatusComplete = "complete"
	StatusError    = "error"
)

// Record describes one finished conversion attempt.
type Record struct {
	ID         string    `json:"id" msgpack:"id"`
	SourceName string    `json:"sourceName" msgpack:"sourceName"`
	SourceSize int64     `json:"sourceSize" msgpack:"sourceSize"`
	OutputName string    `json:"outputName,omitempty" msgpack:"outputName,omitempty"`
	OutputSize int64     `json:"outputSize" msgpack:"outputSize"`
	FPS        int       `json:"fps" msgpack:"fps"`
	Width      int       `json:"width" msgpack:"width"`
	DurationMs int64     `json:"durationMs" msgpack:"durationMs"`
	Status     string    `json:"status" msgpack:"status"`
	Error      string    `json:"error,omitempty" msgpack:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt" msgpack:"createdAt"`
}

// Stats aggregates the whole history.
type Stats struct {
	Total         int64   `json:"total" msgpack:"total"`
	Failures      int64   `json:"failures" msgpack:"failures"`
	AvgDurationMs float64 `json:"avgDurationMs" msgpack:"avgDurationMs"`
	OutputBytes   int64   `json:"outputBytes" msgpack:"outputBytes"`
}

// Recorder is the write side used by the job manager.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Options tunes the DuckDB connection.
type Options struct {
	Threads     int
	MemoryLimit string
}

// Store persists conversion records in a DuckDB file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.Threads <= 0 {
		opts.Threads = 2
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "256MB"
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS conversions (
			id          VARCHAR PRIMARY KEY,
			source_name VARCHAR NOT NULL,
			source_size BIGINT NOT NULL,
			output_name VARCHAR NOT NULL,
			output_size BIGINT NOT NULL,
			fps         INTEGER NOT NULL,
			width       INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL,
			status      VARCHAR NOT NULL,
			error       VARCHAR NOT NULL,
			created_at  TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	slog.Debug("history database ready", "path", path)
	return &Store{db: db}, nil
}

// Record inserts a conversion record.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversions
			(id, source_name, source_size, output_name, output_size, fps, width, duration_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourceName, rec.SourceSize, rec.OutputName, rec.OutputSize,
		rec.FPS, rec.Width, rec.DurationMs, rec.Status, rec.Error, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting conversion %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_name, source_size, output_name, output_size, fps, width,
		       duration_ms, status, error, created_at
		FROM conversions
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.SourceName, &r.SourceSize, &r.OutputName, &r.OutputSize,
			&r.FPS, &r.Width, &r.DurationMs, &r.Status, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats aggregates all recorded conversions.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(AVG(duration_ms) FILTER (WHERE status = 'complete'), 0)::DOUBLE,
			COALESCE(SUM(output_size), 0)::BIGINT
		FROM conversions`).Scan(&st.Total, &st.Failures, &st.AvgDurationMs, &st.OutputBytes)
	if err != nil {
		return Stats{}, fmt.Errorf("querying stats: %w", err)
	}
	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
