// Package api exposes the region registry, threshold rules, time window and
// refresh journal over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/regionstat/internal/classify"
	"github.com/sells-group/regionstat/internal/refresh"
	"github.com/sells-group/regionstat/internal/region"
	"github.com/sells-group/regionstat/internal/store"
)

// Engine runs refresh commands. *refresh.Orchestrator satisfies it.
type Engine interface {
	Handle(ctx context.Context, cmd refresh.Command) (*refresh.Report, error)
	Window() region.TimeWindow
	Rules() []classify.Rule
	State() refresh.State
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the /cycles endpoints.
func WithStore(s store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(srv *Server) {
		if len(origins) > 0 {
			srv.origins = origins
		}
	}
}

// WithBaseContext sets the context background refreshes run under.
func WithBaseContext(ctx context.Context) Option {
	return func(srv *Server) {
		if ctx != nil {
			srv.base = ctx
		}
	}
}

// WithDispatcher overrides how background refreshes are started. The default
// runs each in its own goroutine.
func WithDispatcher(dispatch func(func())) Option {
	return func(srv *Server) {
		if dispatch != nil {
			srv.dispatch = dispatch
		}
	}
}

// WithClock overrides the clock used to resolve the time window.
func WithClock(now func() time.Time) Option {
	return func(srv *Server) {
		if now != nil {
			srv.now = now
		}
	}
}

// Server serves the HTTP API.
type Server struct {
	registry *region.Registry
	engine   Engine
	store    store.Store
	series   SeriesSource
	now      func() time.Time
	base     context.Context
	dispatch func(func())
	origins  []string
}

// New creates a Server.
func New(reg *region.Registry, engine Engine, opts ...Option) *Server {
	s := &Server{
		registry: reg,
		engine:   engine,
		base:     context.Background(),
		dispatch: func(f func()) { go f() },
		origins:  []string{"*"},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/state", s.state)
	r.Get("/datasources", s.listDataSources)

	r.Route("/regions", func(r chi.Router) {
		r.Get("/", s.listRegions)
		r.Post("/", s.createRegion)
		r.Get("/{id}", s.getRegion)
		r.Put("/{id}", s.updateRegion)
		r.Delete("/{id}", s.deleteRegion)
		r.Get("/{id}/geometry", s.getRegionGeometry)
		r.Get("/{id}/series", s.getRegionSeries)
	})

	r.Get("/rules", s.getRules)
	r.Put("/rules", s.putRules)
	r.Get("/timewindow", s.getTimeWindow)
	r.Put("/timewindow", s.putTimeWindow)
	r.Post("/refresh", s.postRefresh)

	r.Get("/cycles", s.listCycles)
	r.Get("/cycles/{id}", s.getCycle)

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": s.engine.State().String()})
}

// trigger runs cmd in the background. In-flight rejections are expected and
// only logged at debug level.
func (s *Server) trigger(cmd refresh.Command) {
	ctx := s.base
	s.dispatch(func() {
		report, err := s.engine.Handle(ctx, cmd)
		switch {
		case err == nil:
			zap.L().Debug("api: background refresh done",
				zap.String("trigger", report.Trigger),
				zap.Int("succeeded", report.Succeeded()),
			)
		case errors.Is(err, refresh.ErrCycleInFlight):
			zap.L().Debug("api: background refresh deferred to running cycle")
		default:
			zap.L().Error("api: background refresh failed", zap.Error(err))
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
