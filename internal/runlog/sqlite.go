package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout сортируется лексически, что нужно для Cleanup.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS Flows (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL,
	location  TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	UNIQUE (name, location)
);
CREATE TABLE IF NOT EXISTS Runs (
	id       TEXT PRIMARY KEY,
	flow_id  INTEGER NOT NULL REFERENCES Flows (id) ON DELETE CASCADE,
	name     TEXT NOT NULL,
	result   TEXT,
	started  TEXT NOT NULL,
	finished TEXT
);
CREATE TABLE IF NOT EXISTS Steps (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run         TEXT NOT NULL REFERENCES Runs (id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	step        TEXT,
	step_number INTEGER NOT NULL DEFAULT 0,
	status      TEXT,
	result      TEXT,
	timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_steps_run ON Steps (run);
CREATE INDEX IF NOT EXISTS idx_runs_started ON Runs (started);
`

// SQLiteSink пишет журнал в локальный файл SQLite.
type SQLiteSink struct {
	db   *sql.DB
	opts options
}

// OpenSQLite открывает (и при необходимости создаёт) базу журнала.
// Включаются WAL и busy timeout, чтобы несколько процессов могли писать одновременно.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create log schema: %w", err)
	}
	return &SQLiteSink{db: db, opts: buildOptions(opts)}, nil
}

// Append реализует Sink.
func (s *SQLiteSink) Append(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO Steps (run, name, step, step_number, status, result, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.FlowName,
		rec.StepName,
		rec.StepNumber,
		rec.Status,
		rec.Result,
		s.opts.timestamp(rec.Timestamp).Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// RecordFlowStart реализует Sink.
func (s *SQLiteSink) RecordFlowStart(ctx context.Context, name, location string) (string, error) {
	now := s.opts.now().UTC().Format(timeLayout)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO Flows (name, location, timestamp) VALUES (?, ?, ?)
		ON CONFLICT (name, location) DO NOTHING
	`, name, location, now)
	if err != nil {
		return "", fmt.Errorf("insert flow: %w", err)
	}

	var flowID int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM Flows WHERE name = ? AND location = ?`, name, location,
	).Scan(&flowID)
	if err != nil {
		return "", fmt.Errorf("select flow: %w", err)
	}

	runID := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO Runs (id, flow_id, name, result, started) VALUES (?, ?, ?, ?, ?)
	`, runID, flowID, name, ResultAborted, now)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// RecordFlowEnd реализует Sink.
func (s *SQLiteSink) RecordFlowEnd(ctx context.Context, runID, result string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE Runs SET result = ?, finished = ? WHERE id = ?`,
		result, s.opts.now().UTC().Format(timeLayout), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// Cleanup реализует Sink.
func (s *SQLiteSink) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.opts.now().UTC().Add(-olderThan).Format(timeLayout)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM Steps WHERE timestamp < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("delete steps: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM Runs WHERE started < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Close реализует Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Runs реализует Reader.
func (s *SQLiteSink) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, f.location, COALESCE(r.result, ''), r.started, r.finished
		FROM Runs r JOIN Flows f ON f.id = r.flow_id
		ORDER BY r.started DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.FlowName, &run.Location, &run.Result, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.Started, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started: %w", err)
		}
		if finished.Valid {
			t, err := time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished: %w", err)
			}
			run.Finished = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Steps реализует Reader.
func (s *SQLiteSink) Steps(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run, name, COALESCE(step, ''), step_number, COALESCE(status, ''), COALESCE(result, ''), timestamp
		FROM Steps
		WHERE run = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec Record
			ts  string
		)
		if err := rows.Scan(&rec.RunID, &rec.FlowName, &rec.StepName, &rec.StepNumber, &rec.Status, &rec.Result, &ts); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if rec.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM Runs WHERE id = ?`, runID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
	}
	return records, nil
}
