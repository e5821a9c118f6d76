// Package region holds the region data model and the in-memory registry that
// acts as the source of truth for region geometry and computed results.
package region

import (
	"math"
	"time"

	"github.com/sells-group/regionstat/internal/geometry"
)

// Vertex limits for a region boundary.
const (
	MinVertices = 3
	MaxVertices = 12
)

// Quality describes the sample set behind a region's value.
type Quality struct {
	SampleCount    int       `json:"sample_count"`
	TotalRequested int       `json:"total_requested"`
	QualityPercent float64   `json:"quality_percent"`
	MinValue       float64   `json:"min_value"`
	MaxValue       float64   `json:"max_value"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Region is a user-drawn polygon under management. Value, Label and Metadata
// are either all set or all empty.
type Region struct {
	ID         string            `json:"id"`
	Points     []geometry.LatLng `json:"points"`
	DataSource string            `json:"data_source,omitempty"`
	Value      *float64          `json:"value,omitempty"`
	Color      string            `json:"color,omitempty"`
	Label      string            `json:"label,omitempty"`
	Metadata   *Quality          `json:"metadata,omitempty"`

	// Version increments on every geometry or data source change.
	Version uint64 `json:"version"`
}

// HasValue reports whether the region carries a committed result.
func (r Region) HasValue() bool {
	return r.Value != nil
}

// clone returns a deep copy so callers never share slices or pointers with
// the registry.
func (r *Region) clone() Region {
	out := *r
	out.Points = append([]geometry.LatLng(nil), r.Points...)
	if r.Value != nil {
		v := *r.Value
		out.Value = &v
	}
	if r.Metadata != nil {
		m := *r.Metadata
		out.Metadata = &m
	}
	return out
}

func (r *Region) clearResult() {
	r.Value = nil
	r.Label = ""
	r.Metadata = nil
	r.Color = ""
}

// TimeWindow is a pair of hour offsets from now. Start may exceed End.
type TimeWindow struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// DefaultTimeWindow covers the next seven days.
func DefaultTimeWindow() TimeWindow {
	return TimeWindow{Start: 0, End: 168}
}

// Normalized returns the offsets in ascending order.
func (w TimeWindow) Normalized() (float64, float64) {
	return math.Min(w.Start, w.End), math.Max(w.Start, w.End)
}

// SpanHours is the absolute width of the window in hours.
func (w TimeWindow) SpanHours() float64 {
	return math.Abs(w.End - w.Start)
}

// Times resolves the window against now.
func (w TimeWindow) Times(now time.Time) (time.Time, time.Time) {
	lo, hi := w.Normalized()
	return now.Add(hoursToDuration(lo)), now.Add(hoursToDuration(hi))
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
