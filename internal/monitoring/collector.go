// Package monitoring watches the refresh journal and raises webhook alerts
// when regions keep failing.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regionstat/internal/store"
)

// CycleLister is the part of store.Store the collector reads.
type CycleLister interface {
	ListCycles(ctx context.Context, filter store.CycleFilter) ([]store.CycleRecord, error)
}

// MetricsSnapshot holds a point-in-time view of refresh health.
type MetricsSnapshot struct {
	Cycles           int     `json:"cycles"`
	ForcedCycles     int     `json:"forced_cycles"`
	RegionsSelected  int     `json:"regions_selected"`
	RegionsSucceeded int     `json:"regions_succeeded"`
	RegionsFailed    int     `json:"regions_failed"`
	FailRate         float64 `json:"fail_rate"`
	AvgDurationMs    int64   `json:"avg_duration_ms"`

	// Latest is the most recent cycle in the window, nil when there is none.
	Latest *store.CycleRecord `json:"latest,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the cycle journal.
type Collector struct {
	store CycleLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st CycleLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect summarizes the cycles journaled within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cycles, err := c.store.ListCycles(ctx, store.CycleFilter{
		StartedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list cycles")
	}

	var total time.Duration
	for i := range cycles {
		cy := &cycles[i]
		snap.Cycles++
		if cy.Force {
			snap.ForcedCycles++
		}
		snap.RegionsSelected += cy.Selected
		snap.RegionsSucceeded += cy.Succeeded
		snap.RegionsFailed += cy.Failed
		total += cy.FinishedAt.Sub(cy.StartedAt)

		if snap.Latest == nil || cy.StartedAt.After(snap.Latest.StartedAt) {
			snap.Latest = cy
		}
	}

	if snap.RegionsSelected > 0 {
		snap.FailRate = float64(snap.RegionsFailed) / float64(snap.RegionsSelected)
	}
	if snap.Cycles > 0 {
		snap.AvgDurationMs = (total / time.Duration(snap.Cycles)).Milliseconds()
	}

	return snap, nil
}
