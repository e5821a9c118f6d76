// Package sampling plans where inside a region the remote service is queried.
package sampling

import "math"

const (
	// MinResolution is the smallest grid side length.
	MinResolution = 2
	// MaxResolution caps the grid at MaxResolution² remote calls per region.
	MaxResolution = 8

	// targetDensity is the number of sample points wanted per square kilometer.
	targetDensity = 0.3
)

// areaBrackets maps an inclusive upper area bound in km² to a grid side length.
var areaBrackets = []struct {
	maxKm2     float64
	resolution int
}{
	{1, 2},
	{10, 3},
	{50, 4},
	{200, 5},
	{500, 6},
}

const largeAreaResolution = 7

// ChooseGridResolution returns the grid side length n for a region of the
// given area. It takes the larger of a bracket lookup and a density-derived
// size clamped to [MinResolution, MaxResolution]; the result is monotonically
// non-decreasing in area.
func ChooseGridResolution(areaKm2 float64) int {
	bracket := largeAreaResolution
	for _, b := range areaBrackets {
		if areaKm2 <= b.maxKm2 {
			bracket = b.resolution
			break
		}
	}

	density := MinResolution
	if areaKm2 > 0 {
		density = int(math.Ceil(math.Sqrt(areaKm2 * targetDensity)))
	}
	density = max(MinResolution, min(MaxResolution, density))

	return max(bracket, density)
}
