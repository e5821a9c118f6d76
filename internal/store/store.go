// Package store journals refresh cycles so that past runs and their
// per-region outcomes can be inspected.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a cycle does not exist.
var ErrNotFound = eris.New("store: cycle not found")

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// CycleRecord is one journaled refresh cycle.
type CycleRecord struct {
	ID          string          `json:"id"`
	Trigger     string          `json:"trigger"`
	Force       bool            `json:"force"`
	WindowStart float64         `json:"window_start"`
	WindowEnd   float64         `json:"window_end"`
	Selected    int             `json:"selected"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Outcomes    []OutcomeRecord `json:"outcomes,omitempty"`
}

// OutcomeRecord is the result of one region within a cycle.
type OutcomeRecord struct {
	RegionID       string   `json:"region_id"`
	OK             bool     `json:"ok"`
	Reason         string   `json:"reason,omitempty"`
	Value          *float64 `json:"value,omitempty"`
	SampleCount    int      `json:"sample_count"`
	TotalRequested int      `json:"total_requested"`
}

// CycleFilter pages through cycles, newest first.
type CycleFilter struct {
	// StartedAfter, when set, excludes cycles that started earlier.
	StartedAfter time.Time `json:"started_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}

const defaultListLimit = 50

func (f CycleFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store persists refresh cycles.
type Store interface {
	// SaveCycle writes a cycle and its outcomes. An empty ID is assigned.
	SaveCycle(ctx context.Context, c *CycleRecord) error
	// GetCycle returns one cycle with its outcomes.
	GetCycle(ctx context.Context, id string) (*CycleRecord, error)
	// ListCycles returns cycle summaries without outcomes.
	ListCycles(ctx context.Context, filter CycleFilter) ([]CycleRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured journal and runs its migration. The none
// driver returns a nil Store.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case DriverNone, "":
		return nil, nil
	case DriverSQLite:
		if dsn == "" {
			dsn = "regionstat.db"
		}
		s, err = NewSQLite(dsn)
	case DriverPostgres:
		s, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
