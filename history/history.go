// Package history keeps every task outcome in a SQLite database so a
// publisher's behaviour can be followed across runs. The consolidated JSON
// record stays the source of truth; history is append-only diagnostics.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unirank/unirank/models"
	"github.com/unirank/unirank/simhash"
)

//go:embed schema.sql
var schema string

// Entry is one stored outcome.
type Entry struct {
	RunID      string
	RecordedAt time.Time
	models.Outcome
}

// Store appends outcomes to a SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// One writer; SQLite serializes anyway and this keeps ":memory:" coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one outcome under runID.
func (s *Store) Append(ctx context.Context, runID string, o models.Outcome) error {
	var fp string
	if o.Fingerprint != 0 {
		fp = simhash.Format(o.Fingerprint)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, recorded_at, publisher, year, status, rank_value, reason, attempts, fingerprint, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.now().UnixMilli(), o.Publisher, o.Year, string(o.Status), o.Rank, o.Reason, o.Attempts, fp, o.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("append outcome %s/%s: %w", o.Publisher, o.Year, err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first. An empty publisher
// means every publisher.
func (s *Store) Recent(ctx context.Context, publisher string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, recorded_at, publisher, year, status, rank_value, reason, attempts, fingerprint, duration_ms
		 FROM outcomes
		 WHERE ? = '' OR publisher = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		publisher, publisher, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			at     int64
			status string
			fp     string
		)
		if err := rows.Scan(&e.RunID, &at, &e.Publisher, &e.Year, &status, &e.Rank, &e.Reason, &e.Attempts, &fp, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.RecordedAt = time.UnixMilli(at).UTC()
		e.Status = models.Status(status)
		if fp != "" {
			if v, err := simhash.Parse(fp); err == nil {
				e.Fingerprint = v
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sink returns an observability sink that appends every outcome under runID.
func (s *Store) Sink(runID string) *Sink {
	return &Sink{store: s, runID: runID}
}

// Sink adapts Store to the outcome reporting interface. Write failures are
// logged, never returned: losing history must not fail a run.
type Sink struct {
	store *Store
	runID string
}

func (k *Sink) Report(ctx context.Context, o models.Outcome) {
	if err := k.store.Append(context.WithoutCancel(ctx), k.runID, o); err != nil {
		slog.Warn("history: outcome not stored", "run", k.runID, "error", err)
	}
}
