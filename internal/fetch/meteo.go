package fetch

import (
	"context"
	"time"

	"github.com/sells-group/regionstat/internal/geometry"
	"github.com/sells-group/regionstat/internal/region"
	"github.com/sells-group/regionstat/pkg/openmeteo"
)

// MeteoSource adapts an Open-Meteo client to ValueSource, resolving the
// hour-offset window against the current time.
type MeteoSource struct {
	client openmeteo.Client
	now    func() time.Time
}

// NewMeteoSource wraps client. A nil now uses time.Now.
func NewMeteoSource(client openmeteo.Client, now func() time.Time) *MeteoSource {
	if now == nil {
		now = time.Now
	}
	return &MeteoSource{client: client, now: now}
}

// PointValue implements ValueSource.
func (m *MeteoSource) PointValue(ctx context.Context, p geometry.LatLng, dataSource string, w region.TimeWindow) (float64, error) {
	from, to := w.Times(m.now().UTC())
	return m.client.PointValue(ctx, openmeteo.Query{
		Latitude:  p.Lat,
		Longitude: p.Lng,
		Field:     dataSource,
		From:      from,
		To:        to,
	})
}
