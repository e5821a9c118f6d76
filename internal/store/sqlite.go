package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS refresh_cycles (
	id           TEXT PRIMARY KEY,
	trigger_name TEXT NOT NULL,
	forced       INTEGER NOT NULL DEFAULT 0,
	window_start REAL NOT NULL,
	window_end   REAL NOT NULL,
	selected     INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_outcomes (
	cycle_id        TEXT NOT NULL REFERENCES refresh_cycles(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	region_id       TEXT NOT NULL,
	ok              INTEGER NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	value           REAL,
	sample_count    INTEGER NOT NULL DEFAULT 0,
	total_requested INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (cycle_id, position)
);

CREATE INDEX IF NOT EXISTS idx_refresh_cycles_started_at ON refresh_cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_cycle_outcomes_region_id ON cycle_outcomes(region_id);
`

// Migrate creates the journal tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCycle implements Store.
func (s *SQLiteStore) SaveCycle(ctx context.Context, c *CycleRecord) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save cycle")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_cycles (id, trigger_name, forced, window_start, window_end, selected, succeeded, failed, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Trigger, c.Force, c.WindowStart, c.WindowEnd,
		c.Selected, c.Succeeded, c.Failed, c.StartedAt.UTC(), c.FinishedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert cycle %s", c.ID)
	}

	for i, o := range c.Outcomes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cycle_outcomes (cycle_id, position, region_id, ok, reason, value, sample_count, total_requested)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, i, o.RegionID, o.OK, o.Reason, nullFloat(o.Value), o.SampleCount, o.TotalRequested,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert outcome %s/%s", c.ID, o.RegionID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save cycle")
}

// GetCycle implements Store.
func (s *SQLiteStore) GetCycle(ctx context.Context, id string) (*CycleRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, trigger_name, forced, window_start, window_end, selected, succeeded, failed, started_at, finished_at
		 FROM refresh_cycles WHERE id = ?`,
		id,
	)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get cycle %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cycle %s", id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT region_id, ok, reason, value, sample_count, total_requested
		 FROM cycle_outcomes WHERE cycle_id = ? ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list outcomes %s", id)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var o OutcomeRecord
		var value sql.NullFloat64
		if err := rows.Scan(&o.RegionID, &o.OK, &o.Reason, &value, &o.SampleCount, &o.TotalRequested); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		if value.Valid {
			v := value.Float64
			o.Value = &v
		}
		c.Outcomes = append(c.Outcomes, o)
	}
	return c, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

// ListCycles implements Store.
func (s *SQLiteStore) ListCycles(ctx context.Context, filter CycleFilter) ([]CycleRecord, error) {
	query := `SELECT id, trigger_name, forced, window_start, window_end, selected, succeeded, failed, started_at, finished_at
		 FROM refresh_cycles`
	var args []any
	if !filter.StartedAfter.IsZero() {
		query += ` WHERE started_at >= ?`
		args = append(args, filter.StartedAfter.UTC())
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cycles")
	}
	defer rows.Close() //nolint:errcheck

	var cycles []CycleRecord
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cycle")
		}
		cycles = append(cycles, *c)
	}
	return cycles, eris.Wrap(rows.Err(), "sqlite: list cycles iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCycle(row scannable) (*CycleRecord, error) {
	var c CycleRecord
	var started, finished time.Time
	err := row.Scan(&c.ID, &c.Trigger, &c.Force, &c.WindowStart, &c.WindowEnd,
		&c.Selected, &c.Succeeded, &c.Failed, &started, &finished)
	if err != nil {
		return nil, err
	}
	c.StartedAt = started.UTC()
	c.FinishedAt = finished.UTC()
	return &c, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
