package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/regionstat/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const outcomesTable = "cycle_outcomes"

var outcomeColumns = []string{
	"cycle_id", "position", "region_id", "ok", "reason", "value", "sample_count", "total_requested",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS refresh_cycles (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	trigger_name TEXT NOT NULL,
	forced       BOOLEAN NOT NULL DEFAULT false,
	window_start DOUBLE PRECISION NOT NULL,
	window_end   DOUBLE PRECISION NOT NULL,
	selected     INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_outcomes (
	cycle_id        TEXT NOT NULL REFERENCES refresh_cycles(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	region_id       TEXT NOT NULL,
	ok              BOOLEAN NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	value           DOUBLE PRECISION,
	sample_count    INTEGER NOT NULL DEFAULT 0,
	total_requested INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (cycle_id, position)
);

CREATE INDEX IF NOT EXISTS idx_refresh_cycles_started_at ON refresh_cycles(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_cycle_outcomes_region_id ON cycle_outcomes(region_id);
`

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the journal tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveCycle implements Store. Outcomes are written with COPY in the same
// transaction as the cycle row.
func (s *PostgresStore) SaveCycle(ctx context.Context, c *CycleRecord) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save cycle")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_cycles (id, trigger_name, forced, window_start, window_end, selected, succeeded, failed, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Trigger, c.Force, c.WindowStart, c.WindowEnd,
		c.Selected, c.Succeeded, c.Failed, c.StartedAt.UTC(), c.FinishedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert cycle %s", c.ID)
	}

	rows := make([][]any, 0, len(c.Outcomes))
	for i, o := range c.Outcomes {
		rows = append(rows, []any{c.ID, i, o.RegionID, o.OK, o.Reason, o.Value, o.SampleCount, o.TotalRequested})
	}
	if _, err := db.CopyFrom(ctx, tx, outcomesTable, outcomeColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy outcomes %s", c.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save cycle")
}

// GetCycle implements Store.
func (s *PostgresStore) GetCycle(ctx context.Context, id string) (*CycleRecord, error) {
	var c CycleRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, trigger_name, forced, window_start, window_end, selected, succeeded, failed, started_at, finished_at
		 FROM refresh_cycles WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Trigger, &c.Force, &c.WindowStart, &c.WindowEnd,
		&c.Selected, &c.Succeeded, &c.Failed, &c.StartedAt, &c.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get cycle %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cycle %s", id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT region_id, ok, reason, value, sample_count, total_requested
		 FROM cycle_outcomes WHERE cycle_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list outcomes %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var o OutcomeRecord
		if err := rows.Scan(&o.RegionID, &o.OK, &o.Reason, &o.Value, &o.SampleCount, &o.TotalRequested); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		c.Outcomes = append(c.Outcomes, o)
	}
	return &c, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

// ListCycles implements Store.
func (s *PostgresStore) ListCycles(ctx context.Context, filter CycleFilter) ([]CycleRecord, error) {
	query := `SELECT id, trigger_name, forced, window_start, window_end, selected, succeeded, failed, started_at, finished_at
		 FROM refresh_cycles`
	var args []any
	if !filter.StartedAfter.IsZero() {
		args = append(args, filter.StartedAfter.UTC())
		query += ` WHERE started_at >= $1`
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, filter.limit(), max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cycles")
	}
	defer rows.Close()

	var cycles []CycleRecord
	for rows.Next() {
		var c CycleRecord
		if err := rows.Scan(&c.ID, &c.Trigger, &c.Force, &c.WindowStart, &c.WindowEnd,
			&c.Selected, &c.Succeeded, &c.Failed, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cycle")
		}
		cycles = append(cycles, c)
	}
	return cycles, eris.Wrap(rows.Err(), "postgres: list cycles iterate")
}
