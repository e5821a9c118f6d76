package aggregate

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_EmptyIsNoDataForEveryMode(t *testing.T) {
	for _, m := range Modes {
		t.Run(string(m), func(t *testing.T) {
			_, err := Aggregate(nil, m)
			assert.ErrorIs(t, err, ErrNoData)

			_, err = Aggregate([]float64{math.NaN(), math.Inf(1), math.Inf(-1)}, m)
			assert.ErrorIs(t, err, ErrNoData)
		})
	}
}

func TestAggregate_DropsOutlier(t *testing.T) {
	res, err := Aggregate([]float64{1, 2, 3, 4, 5, 100}, Average)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, res.Value, 1e-9)
	assert.Equal(t, 6, res.ValidCount)
	assert.Equal(t, 5, res.UsedCount)
	assert.Equal(t, 1, res.Dropped)
	// min/max describe the pre-filter set
	assert.InDelta(t, 1.0, res.Min, 1e-9)
	assert.InDelta(t, 100.0, res.Max, 1e-9)
}

func TestAggregate_Modes(t *testing.T) {
	values := []float64{7, 3, 5, 1, 9, 11}

	tests := []struct {
		mode Mode
		want float64
	}{
		{Average, 6},
		{WeightedAverage, 6},
		{Min, 1},
		{Max, 11},
		{Median, 6},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			res, err := Aggregate(values, tt.mode)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Value, 1e-9)
		})
	}
}

func TestAggregate_MedianOdd(t *testing.T) {
	res, err := Aggregate([]float64{9, 1, 4}, Median)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res.Value, 1e-9)
}

func TestAggregate_SkipsNonFinite(t *testing.T) {
	res, err := Aggregate([]float64{2, math.NaN(), 4, math.Inf(1)}, Average)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, res.Value, 1e-9)
	assert.Equal(t, 2, res.ValidCount)
}

func TestAggregate_NoFilterBelowFive(t *testing.T) {
	res, err := Aggregate([]float64{1, 2, 3, 1000}, Average)
	require.NoError(t, err)
	assert.InDelta(t, 251.5, res.Value, 1e-9)
	assert.Zero(t, res.Dropped)
}

func TestAggregate_UnknownMode(t *testing.T) {
	_, err := Aggregate([]float64{1}, Mode("mode"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
}

func TestAggregate_PermutationInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	base := make([]float64, 40)
	for i := range base {
		base[i] = r.NormFloat64()*5 + 20
	}
	base[3] = 400
	base[17] = -300

	for _, m := range Modes {
		want, err := Aggregate(base, m)
		require.NoError(t, err)

		for range 20 {
			shuffled := append([]float64(nil), base...)
			r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

			got, err := Aggregate(shuffled, m)
			require.NoError(t, err)
			assert.Equal(t, want, got, "mode %s", m)
		}
	}
}

func TestAggregate_DoesNotModifyInput(t *testing.T) {
	in := []float64{5, 1, 3}
	_, err := Aggregate(in, Median)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 1, 3}, in)
}

func TestFilterOutliers_KeepsSeventyPercent(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		n := 5 + r.IntN(60)
		values := make([]float64, n)
		for i := range values {
			if r.IntN(3) == 0 {
				values[i] = r.Float64() * 1000
			} else {
				values[i] = r.Float64()
			}
		}
		sortFloats(values)

		kept := FilterOutliers(values)
		assert.GreaterOrEqual(t, float64(len(kept)), 0.7*float64(n))
	}
}

func TestFilterOutliers_BimodalKeptWhole(t *testing.T) {
	// Q1=Q3=5 so IQR=0 and the filter would keep only six of ten.
	sorted := []float64{-100, -100, 5, 5, 5, 5, 5, 5, 100, 100}
	assert.Equal(t, sorted, FilterOutliers(sorted))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Average, m)

	m, err = ParseMode(" Median ")
	require.NoError(t, err)
	assert.Equal(t, Median, m)

	_, err = ParseMode("mode")
	assert.Error(t, err)
}

func TestQualityPercent(t *testing.T) {
	assert.InDelta(t, 75.0, QualityPercent(3, 4), 1e-9)
	assert.Zero(t, QualityPercent(3, 0))
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}
