package openmeteo

import (
	"math"
	"sort"
	"time"
)

// HourlyAverage is the mean of all values observed within one clock hour.
type HourlyAverage struct {
	Hour  time.Time `json:"hour"`
	Label string    `json:"label"`
	Value float64   `json:"value"`
}

// HourlyAverages buckets the non-null values inside [from, to] by UTC hour
// and returns one rounded average per bucket in chronological order. Labels
// use the "2006-01-02 15:00" form.
func (s *Series) HourlyAverages(from, to time.Time) []HourlyAverage {
	from, to = orderedWindow(from, to)

	type bucket struct {
		sum float64
		n   int
	}
	buckets := make(map[time.Time]*bucket)

	for i, v := range s.Values {
		if v == nil || math.IsNaN(*v) {
			continue
		}
		ts := s.Times[i]
		if ts.Before(from) || ts.After(to) {
			continue
		}
		hour := ts.UTC().Truncate(time.Hour)
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{}
			buckets[hour] = b
		}
		b.sum += *v
		b.n++
	}

	out := make([]HourlyAverage, 0, len(buckets))
	for hour, b := range buckets {
		out = append(out, HourlyAverage{
			Hour:  hour,
			Label: hour.Format("2006-01-02 15:00"),
			Value: roundTenth(b.sum / float64(b.n)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}
