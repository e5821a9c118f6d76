// Package aggregate reduces a region's sample values to one robust value with
// quality metadata and renders the result as a short label.
package aggregate

import (
	"math"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Mode selects how the surviving samples are reduced.
type Mode string

// Supported modes. WeightedAverage applies no weighting and equals Average.
const (
	Average         Mode = "average"
	Min             Mode = "min"
	Max             Mode = "max"
	Median          Mode = "median"
	WeightedAverage Mode = "weighted_average"
)

// Modes lists every supported mode.
var Modes = []Mode{Average, Min, Max, Median, WeightedAverage}

// Outlier filter parameters.
const (
	minOutlierSamples = 5
	iqrFactor         = 1.5
	minSurvivalRatio  = 0.7
)

// ErrNoData is returned when no finite values remain to aggregate.
var ErrNoData = eris.New("aggregate: no valid data")

// ParseMode parses a mode name case-insensitively. An empty name selects
// Average.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return Average, nil
	}
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Modes, m) {
		return "", eris.Errorf("aggregate: unknown mode %q", s)
	}
	return m, nil
}

// Result is the reduction of one sample set.
type Result struct {
	Value float64 `json:"value"`
	// Min and Max span every valid value, before outlier filtering.
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	// ValidCount is the number of finite inputs.
	ValidCount int `json:"valid_count"`
	// UsedCount is the number of values the mode was applied to.
	UsedCount int `json:"used_count"`
	Dropped   int `json:"dropped"`
}

// Aggregate discards non-finite values, trims IQR outliers when at least
// five values remain and reduces the rest by mode. The result does not depend
// on input order.
func Aggregate(values []float64, mode Mode) (Result, error) {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return Result{}, ErrNoData
	}
	slices.Sort(valid)

	used := FilterOutliers(valid)

	var value float64
	switch mode {
	case Average, WeightedAverage, "":
		value = mean(used)
	case Min:
		value = used[0]
	case Max:
		value = used[len(used)-1]
	case Median:
		value = median(used)
	default:
		return Result{}, eris.Errorf("aggregate: unknown mode %q", mode)
	}

	return Result{
		Value:      value,
		Min:        valid[0],
		Max:        valid[len(valid)-1],
		ValidCount: len(valid),
		UsedCount:  len(used),
		Dropped:    len(valid) - len(used),
	}, nil
}

// FilterOutliers drops values outside [Q1-1.5·IQR, Q3+1.5·IQR] of a sorted
// slice, with Q1 and Q3 taken at index floor(n·p). The filter is skipped for
// fewer than five values and rejected if it would keep less than 70% of them.
func FilterOutliers(sorted []float64) []float64 {
	n := len(sorted)
	if n < minOutlierSamples {
		return sorted
	}

	q1 := sorted[int(math.Floor(float64(n)*0.25))]
	q3 := sorted[int(math.Floor(float64(n)*0.75))]
	iqr := q3 - q1
	lo, hi := q1-iqrFactor*iqr, q3+iqrFactor*iqr

	filtered := make([]float64, 0, n)
	for _, v := range sorted {
		if v >= lo && v <= hi {
			filtered = append(filtered, v)
		}
	}
	if len(filtered) < int(math.Ceil(float64(n)*minSurvivalRatio)) {
		return sorted
	}
	return filtered
}

// QualityPercent is the share of requested points that produced a value.
func QualityPercent(valid, requested int) float64 {
	if requested <= 0 {
		return 0
	}
	return float64(valid) / float64(requested) * 100
}

// mean sums in ascending order so permuted inputs give identical results.
func mean(sorted []float64) float64 {
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
