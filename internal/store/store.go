// Package store keeps local run history and the price-adjustment journal in
// SQLite. The journal is the idempotency record for the daily pricing pass:
// one row per listing per day, so a rerun after a crash never double-drops a
// price.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrAlreadyAdjusted reports that a listing already has a journal entry for
// the given day.
var ErrAlreadyAdjusted = errors.New("listing already adjusted today")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP,
	failed_step TEXT
);

CREATE TABLE IF NOT EXISTS price_adjustments (
	listing_id TEXT NOT NULL,
	day        TEXT NOT NULL,
	old_price  INTEGER NOT NULL,
	new_price  INTEGER NOT NULL,
	applied_at TIMESTAMP NOT NULL,
	PRIMARY KEY (listing_id, day)
);

CREATE TABLE IF NOT EXISTS sourcing_decisions (
	item_url    TEXT NOT NULL,
	decided_at  TIMESTAMP NOT NULL,
	accepted    INTEGER NOT NULL,
	margin_pct  REAL NOT NULL,
	sales_3day  INTEGER NOT NULL,
	source_url  TEXT
);
`

// Store wraps the SQLite handle.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the database at path and applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunRecord is one row of run history.
type RunRecord struct {
	ID         string
	Stage      string
	Status     string
	StartedAt  time.Time
	EndedAt    time.Time
	FailedStep string
}

// BeginRun records a run as started.
func (s *Store) BeginRun(ctx context.Context, id, stage string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, stage, status, started_at) VALUES (?, ?, 'running', ?)`,
		id, stage, startedAt)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal status. failedStep is empty on success.
func (s *Store) FinishRun(ctx context.Context, id, status, failedStep string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, failed_step = ?, ended_at = ? WHERE id = ?`,
		status, failedStep, endedAt, id)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, status, started_at, COALESCE(ended_at, started_at), COALESCE(failed_step, '')
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Stage, &r.Status, &r.StartedAt, &r.EndedAt, &r.FailedStep); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// dayKey normalizes a timestamp to the journal's day granularity.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// RecordAdjustment journals one price change. ErrAlreadyAdjusted is returned
// when the (listing, day) pair already exists; callers treat that as a no-op
// signal, not a failure.
func (s *Store) RecordAdjustment(ctx context.Context, listingID string, oldPrice, newPrice int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_adjustments (listing_id, day, old_price, new_price, applied_at)
		 VALUES (?, ?, ?, ?, ?)`,
		listingID, dayKey(at), oldPrice, newPrice, at)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyAdjusted
		}
		return fmt.Errorf("journal adjustment: %w", err)
	}
	s.logger.Info("price adjustment journaled",
		zap.String("listing_id", listingID),
		zap.Int("old_price", oldPrice),
		zap.Int("new_price", newPrice),
	)
	return nil
}

// AdjustedToday reports whether the listing already has a journal entry for
// the day containing `at`.
func (s *Store) AdjustedToday(ctx context.Context, listingID string, at time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM price_adjustments WHERE listing_id = ? AND day = ?`,
		listingID, dayKey(at)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query adjustment journal: %w", err)
	}
	return n > 0, nil
}

// RecordDecision stores a sourcing accept/reject outcome for later review.
func (s *Store) RecordDecision(ctx context.Context, itemURL string, accepted bool, marginPct float64, sales3Day int, sourceURL string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sourcing_decisions (item_url, decided_at, accepted, margin_pct, sales_3day, source_url)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		itemURL, at, accepted, marginPct, sales3Day, sourceURL)
	if err != nil {
		return fmt.Errorf("record sourcing decision: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrConstraint
	}
	return false
}
