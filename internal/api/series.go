package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/regionstat/internal/geometry"
	"github.com/sells-group/regionstat/internal/region"
	"github.com/sells-group/regionstat/pkg/openmeteo"
)

// SeriesSource returns raw hourly series. openmeteo.Client satisfies it.
type SeriesSource interface {
	Hourly(ctx context.Context, q openmeteo.Query) (*openmeteo.Series, error)
}

// WithSeries enables GET /regions/{id}/series.
func WithSeries(src SeriesSource) Option {
	return func(srv *Server) { srv.series = src }
}

// regionSeries is the hour-by-hour view of a region's field at its centroid
// over the current time window.
type regionSeries struct {
	RegionID   string                    `json:"region_id"`
	DataSource string                    `json:"data_source"`
	Point      geometry.LatLng           `json:"point"`
	Window     region.TimeWindow         `json:"window"`
	From       time.Time                 `json:"from"`
	To         time.Time                 `json:"to"`
	Hours      []openmeteo.HourlyAverage `json:"hours"`
}

func (s *Server) getRegionSeries(w http.ResponseWriter, r *http.Request) {
	if s.series == nil {
		writeError(w, http.StatusNotFound, "series source disabled")
		return
	}
	reg, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "region not found")
		return
	}
	if reg.DataSource == "" {
		writeError(w, http.StatusConflict, "region has no data source")
		return
	}

	window := s.engine.Window()
	from, to := window.Times(s.now().UTC())
	point := geometry.Centroid(reg.Points)

	series, err := s.series.Hourly(r.Context(), openmeteo.Query{
		Latitude:  point.Lat,
		Longitude: point.Lng,
		Field:     reg.DataSource,
		From:      from,
		To:        to,
	})
	out := regionSeries{
		RegionID:   reg.ID,
		DataSource: reg.DataSource,
		Point:      point,
		Window:     window,
		From:       from,
		To:         to,
		Hours:      []openmeteo.HourlyAverage{},
	}
	switch {
	case errors.Is(err, openmeteo.ErrNoData):
	case err != nil:
		zap.L().Warn("api: series fetch failed", zap.String("region", reg.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "series source unavailable")
		return
	default:
		out.Hours = series.HourlyAverages(from, to)
	}
	writeJSON(w, http.StatusOK, out)
}
