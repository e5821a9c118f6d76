package openmeteo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestHourlyAverages(t *testing.T) {
	base := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	s := &Series{
		Field: "temperature_2m",
		Times: []time.Time{
			base.Add(2 * time.Hour),
			base,
			base.Add(30 * time.Minute),
			base.Add(time.Hour),
			base.Add(5 * time.Hour),
		},
		Values: []*float64{ptr(30), ptr(10), ptr(11), nil, ptr(99)},
	}

	got := s.HourlyAverages(base.Add(3*time.Hour), base) // reversed on purpose
	require.Len(t, got, 2)
	assert.Equal(t, "2026-10-16 00:00", got[0].Label)
	assert.InDelta(t, 10.5, got[0].Value, 1e-9)
	assert.Equal(t, "2026-10-16 02:00", got[1].Label)
	assert.InDelta(t, 30, got[1].Value, 1e-9)
}

func TestSeriesMean_AllNull(t *testing.T) {
	s := &Series{Times: []time.Time{time.Now()}, Values: []*float64{nil}}
	_, err := s.Mean()
	assert.ErrorIs(t, err, ErrNoData)
}
