package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS flows (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	location   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, location)
);
CREATE TABLE IF NOT EXISTS runs (
	id       UUID PRIMARY KEY,
	flow_id  BIGINT NOT NULL REFERENCES flows (id) ON DELETE CASCADE,
	name     TEXT NOT NULL,
	result   TEXT,
	started  TIMESTAMPTZ NOT NULL,
	finished TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS steps (
	id          BIGSERIAL PRIMARY KEY,
	run         UUID NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	step        TEXT,
	step_number INTEGER NOT NULL DEFAULT 0,
	status      TEXT,
	result      TEXT,
	timestamp   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_steps_run ON steps (run);
`

// NewPool создаёт пул соединений PostgreSQL и проверяет доступность базы.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// PostgresSink пишет журнал в PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
	opts options
}

// OpenPostgres подключается к базе и создаёт схему журнала.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresSink, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create log schema: %w", err)
	}
	return &PostgresSink{pool: pool, opts: buildOptions(opts)}, nil
}

// Append реализует Sink.
func (s *PostgresSink) Append(ctx context.Context, rec Record) error {
	runID, err := uuid.Parse(rec.RunID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}

	query := `
		INSERT INTO steps (run, name, step, step_number, status, result, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.pool.Exec(ctx, query,
		runID,
		rec.FlowName,
		rec.StepName,
		rec.StepNumber,
		rec.Status,
		rec.Result,
		s.opts.timestamp(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// RecordFlowStart реализует Sink.
func (s *PostgresSink) RecordFlowStart(ctx context.Context, name, location string) (string, error) {
	var flowID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO flows (name, location) VALUES ($1, $2)
		ON CONFLICT (name, location) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name, location).Scan(&flowID)
	if err != nil {
		return "", fmt.Errorf("upsert flow: %w", err)
	}

	runID := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (id, flow_id, name, result, started) VALUES ($1, $2, $3, $4, $5)
	`, runID, flowID, name, ResultAborted, s.opts.now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID.String(), nil
}

// RecordFlowEnd реализует Sink.
func (s *PostgresSink) RecordFlowEnd(ctx context.Context, runID, result string) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $2, finished = $3 WHERE id = $1`,
		id, result, s.opts.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// Cleanup реализует Sink.
func (s *PostgresSink) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.opts.now().UTC().Add(-olderThan)

	if _, err := s.pool.Exec(ctx, `DELETE FROM steps WHERE timestamp < $1`, cutoff); err != nil {
		return 0, fmt.Errorf("delete steps: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM runs WHERE started < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close реализует Sink.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

// Runs реализует Reader.
func (s *PostgresSink) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, f.location, COALESCE(r.result, ''), r.started, r.finished
		FROM runs r JOIN flows f ON f.id = r.flow_id
		ORDER BY r.started DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run Run
			id  uuid.UUID
		)
		if err := rows.Scan(&id, &run.FlowName, &run.Location, &run.Result, &run.Started, &run.Finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.ID = id.String()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Steps реализует Reader.
func (s *PostgresSink) Steps(ctx context.Context, runID string) ([]Record, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT true FROM runs WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT name, COALESCE(step, ''), step_number, COALESCE(status, ''), COALESCE(result, ''), timestamp
		FROM steps
		WHERE run = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := Record{RunID: runID}
		if err := rows.Scan(&rec.FlowName, &rec.StepName, &rec.StepNumber, &rec.Status, &rec.Result, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
