package suite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists suite run history in SQLite.
type Store struct {
	db *sql.DB
}

// RunRecord is one historical suite run as read back from the store.
type RunRecord struct {
	RunID      string `json:"run_id"`
	Suite      string `json:"suite"`
	StartedAt  int64  `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
	Passed     bool   `json:"passed"`
	Stages     int    `json:"stages"`
	Failed     int    `json:"failed"`
}

// NewStore opens (creating if needed) the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	// WAL so a reader (`nitest run --history`) does not block a writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS suite_runs (
		run_id TEXT PRIMARY KEY,
		suite TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		stages INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS stage_results (
		run_id TEXT NOT NULL,
		stage_id TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		timed_out INTEGER NOT NULL,
		log_path TEXT,
		output_dir TEXT,
		error TEXT,
		checks TEXT,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, stage_id)
	);
	CREATE INDEX IF NOT EXISTS idx_suite_runs_suite ON suite_runs(suite);
	CREATE INDEX IF NOT EXISTS idx_suite_runs_started ON suite_runs(started_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// RecordRun persists a summary and all its stage results in one transaction.
func (s *Store) RecordRun(ctx context.Context, summary *Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO suite_runs (run_id, suite, started_at, duration_ms, passed, stages, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.Suite, summary.StartedAt.Unix(), summary.Duration.Milliseconds(),
		boolToInt(summary.Passed), len(summary.Results), summary.FailedCount(),
	)
	if err != nil {
		return fmt.Errorf("insert suite run: %w", err)
	}

	for _, r := range summary.Results {
		checksJSON, _ := json.Marshal(r.Checks)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stage_results (run_id, stage_id, status, exit_code, timed_out, log_path, output_dir, error, checks, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			summary.RunID, r.StageID, r.Status, r.ExitCode, boolToInt(r.TimedOut),
			r.LogPath, r.OutputDir, r.Error, string(checksJSON), r.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert stage result %s: %w", r.StageID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, suite, started_at, duration_ms, passed, stages, failed
		FROM suite_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query suite runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var passed int
		if err := rows.Scan(&rec.RunID, &rec.Suite, &rec.StartedAt, &rec.DurationMS,
			&passed, &rec.Stages, &rec.Failed); err != nil {
			return nil, fmt.Errorf("scan suite run: %w", err)
		}
		rec.Passed = passed != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

// StageResults returns the stage results of one recorded run in insertion
// order.
func (s *Store) StageResults(ctx context.Context, runID string) ([]StageResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage_id, status, exit_code, timed_out, log_path, output_dir, error, checks, duration_ms
		FROM stage_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	var results []StageResult
	for rows.Next() {
		var (
			r          StageResult
			timedOut   int
			checksJSON string
			durationMS int64
		)
		if err := rows.Scan(&r.StageID, &r.Status, &r.ExitCode, &timedOut,
			&r.LogPath, &r.OutputDir, &r.Error, &checksJSON, &durationMS); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		r.RunID = runID
		r.TimedOut = timedOut != 0
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if checksJSON != "" {
			json.Unmarshal([]byte(checksJSON), &r.Checks)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
