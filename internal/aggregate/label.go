package aggregate

import (
	"fmt"
	"math"
	"strings"
)

// LabelInput carries everything shown in a region label.
type LabelInput struct {
	DataSource  string
	Value       float64
	SampleCount int
	Min         float64
	Max         float64
	AreaKm2     float64
	// WindowHours is the absolute width of the time window in hour offsets.
	WindowHours float64
}

// BuildLabel renders a summary such as
// "temperature 2m: 12.3° (10.1-14.8) [9 pts] [~42.0 km²] (24.0h avg)".
// It returns false when the data source is empty or the value is not finite,
// in which case no result should be committed.
func BuildLabel(in LabelInput) (string, bool) {
	if in.DataSource == "" || math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %.1f°", strings.ReplaceAll(in.DataSource, "_", " "), in.Value)

	if in.SampleCount > 1 && math.Abs(in.Max-in.Min) > 1.0 {
		fmt.Fprintf(&b, " (%.1f-%.1f)", in.Min, in.Max)
	}
	if in.SampleCount > 1 {
		fmt.Fprintf(&b, " [%d pts]", in.SampleCount)
	}
	if in.AreaKm2 > 1 {
		fmt.Fprintf(&b, " [~%.1f km²]", in.AreaKm2)
	}
	if hours := math.Abs(in.WindowHours); hours > 1 {
		fmt.Fprintf(&b, " (%.1fh avg)", hours)
	}
	return b.String(), true
}
