package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/regionstat/internal/classify"
	"github.com/sells-group/regionstat/internal/refresh"
	"github.com/sells-group/regionstat/internal/region"
	"github.com/sells-group/regionstat/internal/store"
)

func (s *Server) getRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Rules())
}

// putRules replaces the rule list and recolors synchronously.
func (s *Server) putRules(w http.ResponseWriter, r *http.Request) {
	var rules []classify.Rule
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.engine.Handle(r.Context(), refresh.SetRulesCommand{Rules: rules}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Rules())
}

func (s *Server) getTimeWindow(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Window())
}

// putTimeWindow stores the window and starts a forced refresh in the
// background.
func (s *Server) putTimeWindow(w http.ResponseWriter, r *http.Request) {
	var tw region.TimeWindow
	if err := json.NewDecoder(r.Body).Decode(&tw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.trigger(refresh.SetTimeWindowCommand{Window: tw})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "window": tw})
}

// postRefresh starts a refresh. With wait=true it runs inline and returns the
// report, answering 409 if a cycle is already running.
func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) {
	force, err := boolParam(r, "force")
	if err != nil {
		writeError(w, http.StatusBadRequest, "force must be a boolean")
		return
	}
	wait, err := boolParam(r, "wait")
	if err != nil {
		writeError(w, http.StatusBadRequest, "wait must be a boolean")
		return
	}

	cmd := refresh.RefreshCommand{Force: force}
	if !wait {
		s.trigger(cmd)
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "force": force})
		return
	}

	report, err := s.engine.Handle(r.Context(), cmd)
	switch {
	case errors.Is(err, refresh.ErrCycleInFlight):
		writeJSON(w, http.StatusConflict, report)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) listCycles(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "cycle journal disabled")
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	cycles, err := s.store.ListCycles(r.Context(), store.CycleFilter{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cycles == nil {
		cycles = []store.CycleRecord{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (s *Server) getCycle(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "cycle journal disabled")
		return
	}
	c, err := s.store.GetCycle(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "cycle not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
