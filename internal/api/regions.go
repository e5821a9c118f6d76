package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/regionstat/internal/geometry"
	"github.com/sells-group/regionstat/internal/refresh"
	"github.com/sells-group/regionstat/internal/region"
)

// regionRequest carries a boundary either as points or as a GeoJSON Polygon.
type regionRequest struct {
	ID         string            `json:"id"`
	Points     []geometry.LatLng `json:"points"`
	Geometry   json.RawMessage   `json:"geometry"`
	DataSource string            `json:"data_source"`
}

func (req regionRequest) boundary() ([]geometry.LatLng, error) {
	if len(req.Geometry) > 0 && string(req.Geometry) != "null" {
		return geometry.UnmarshalGeoJSON(req.Geometry)
	}
	return req.Points, nil
}

type dataSource struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func displayName(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}

func (s *Server) listDataSources(w http.ResponseWriter, _ *http.Request) {
	names := s.registry.DataSources()
	out := make([]dataSource, 0, len(names))
	for _, n := range names {
		out = append(out, dataSource{Name: n, DisplayName: displayName(n)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) checkDataSource(ds string) error {
	if ds == "" || slices.Contains(s.registry.DataSources(), ds) {
		return nil
	}
	return eris.Errorf("api: unknown data source %q", ds)
}

func (s *Server) listRegions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) getRegion(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "region not found")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) getRegionGeometry(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "region not found")
		return
	}
	data, err := geometry.MarshalGeoJSON(reg.Points)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) createRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	points, err := req.boundary()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.checkDataSource(req.DataSource); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.registry.Add(region.Region{ID: req.ID, Points: points, DataSource: req.DataSource})
	if err != nil {
		writeRegionError(w, err)
		return
	}
	zap.L().Info("api: region created", zap.String("region", created.ID))

	if created.DataSource != "" {
		s.trigger(refresh.RegionChangedCommand{ID: created.ID})
	}
	writeJSON(w, http.StatusCreated, created)
}

// updateRegion replaces the boundary and data source. A request without a
// boundary keeps the current one, so a data source can be assigned alone.
func (s *Server) updateRegion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	current, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "region not found")
		return
	}

	var req regionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	points, err := req.boundary()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(points) == 0 {
		points = current.Points
	}
	if err := s.checkDataSource(req.DataSource); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.registry.Update(region.Region{ID: id, Points: points, DataSource: req.DataSource})
	if err != nil {
		writeRegionError(w, err)
		return
	}

	if updated.DataSource != "" && !updated.HasValue() {
		s.trigger(refresh.RegionChangedCommand{ID: updated.ID})
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteRegion(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(chi.URLParam(r, "id")); err != nil {
		writeRegionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRegionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, region.ErrNotFound):
		writeError(w, http.StatusNotFound, "region not found")
	case errors.Is(err, region.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, region.ErrInvalidVertices):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("api: region write failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
