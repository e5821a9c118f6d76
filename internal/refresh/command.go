package refresh

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regionstat/internal/classify"
	"github.com/sells-group/regionstat/internal/region"
	"github.com/sells-group/regionstat/internal/store"
)

// ErrCycleInFlight is returned when a refresh is requested while another
// cycle is running. The request is dropped, not queued.
var ErrCycleInFlight = eris.New("refresh: cycle already in flight")

// State is the phase of the running cycle.
type State int32

// Cycle phases.
const (
	StateIdle State = iota
	StatePlanning
	StateFetching
	StateAggregating
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateFetching:
		return "fetching"
	case StateAggregating:
		return "aggregating"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// Command is an input to Orchestrator.Handle.
type Command interface {
	trigger() string
}

// RefreshCommand refreshes regions that have a data source. Without Force
// only regions lacking a value are refreshed.
type RefreshCommand struct {
	Force bool
}

// SetTimeWindowCommand replaces the time window and force-refreshes every
// region with a data source.
type SetTimeWindowCommand struct {
	Window region.TimeWindow
}

// SetRulesCommand replaces the threshold rules and recolors every region.
type SetRulesCommand struct {
	Rules []classify.Rule
}

// RegionChangedCommand reports that a region was added, edited or assigned a
// data source.
type RegionChangedCommand struct {
	ID string
}

func (RefreshCommand) trigger() string       { return "refresh" }
func (SetTimeWindowCommand) trigger() string { return "timewindow" }
func (SetRulesCommand) trigger() string      { return "rules" }
func (RegionChangedCommand) trigger() string { return "region" }

// triggerFollowUp names cycles started on behalf of dropped requests.
const triggerFollowUp = "followup"

// Failure reasons recorded on an Outcome.
const (
	ReasonNoDataSource   = "no data source"
	ReasonHasData        = "already has data"
	ReasonNoGridPoints   = "no valid grid points"
	ReasonNoValidData    = "no valid data"
	ReasonAggregation    = "aggregation failed"
	ReasonLabel          = "label generation failed"
	ReasonRegionChanged  = "region changed during refresh"
	ReasonCycleCancelled = "cycle cancelled"
)

// Outcome is the result for one region in a cycle.
type Outcome struct {
	RegionID       string   `json:"region_id"`
	OK             bool     `json:"ok"`
	Reason         string   `json:"reason,omitempty"`
	Value          *float64 `json:"value,omitempty"`
	Label          string   `json:"label,omitempty"`
	SampleCount    int      `json:"sample_count"`
	TotalRequested int      `json:"total_requested"`
}

// Report summarizes one handled command.
type Report struct {
	CycleID    string            `json:"cycle_id,omitempty"`
	Generation uint64            `json:"generation"`
	Trigger    string            `json:"trigger"`
	Force      bool              `json:"force"`
	Window     region.TimeWindow `json:"window"`
	Selected   int               `json:"selected"`
	Outcomes   []Outcome         `json:"outcomes"`
	Recolored  int               `json:"recolored"`
	Skipped    bool              `json:"skipped,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`

	// FollowUp is the cycle run after this one for requests dropped while it
	// was in flight, or for regions that changed under it.
	FollowUp *Report `json:"follow_up,omitempty"`
}

// Succeeded counts outcomes that committed a value.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

// Failed counts selected regions that did not commit a value.
func (r *Report) Failed() int {
	return r.Selected - r.Succeeded()
}

func (r *Report) record() *store.CycleRecord {
	c := &store.CycleRecord{
		Trigger:     r.Trigger,
		Force:       r.Force,
		WindowStart: r.Window.Start,
		WindowEnd:   r.Window.End,
		Selected:    r.Selected,
		Succeeded:   r.Succeeded(),
		Failed:      r.Failed(),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Outcomes:    make([]store.OutcomeRecord, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		c.Outcomes = append(c.Outcomes, store.OutcomeRecord{
			RegionID:       o.RegionID,
			OK:             o.OK,
			Reason:         o.Reason,
			Value:          o.Value,
			SampleCount:    o.SampleCount,
			TotalRequested: o.TotalRequested,
		})
	}
	return c
}
