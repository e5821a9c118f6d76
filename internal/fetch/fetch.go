// Package fetch resolves sample points to scalar values through a remote
// point-query source, in small concurrent batches with per-point timeouts.
package fetch

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/regionstat/internal/geometry"
	"github.com/sells-group/regionstat/internal/region"
)

// ErrNonFinite is recorded for a point whose source returned NaN or Inf.
var ErrNonFinite = eris.New("fetch: non-finite value")

// ValueSource resolves one point to one scalar for a data source and window.
type ValueSource interface {
	PointValue(ctx context.Context, p geometry.LatLng, dataSource string, w region.TimeWindow) (float64, error)
}

// Sample is the outcome of one point query. Err is non-nil when the point
// could not be resolved.
type Sample struct {
	Point geometry.LatLng
	Value float64
	Err   error
}

// OK reports whether the sample carries a usable value.
func (s Sample) OK() bool {
	return s.Err == nil
}

// Config controls batching toward the remote source.
type Config struct {
	BatchSize    int
	BatchPause   time.Duration
	PointTimeout time.Duration
}

// DefaultConfig returns batches of three with a 100ms pause and a 15s
// per-point timeout.
func DefaultConfig() Config {
	return Config{
		BatchSize:    3,
		BatchPause:   100 * time.Millisecond,
		PointTimeout: 15 * time.Second,
	}
}

// Fetcher issues point queries against a ValueSource.
type Fetcher struct {
	src ValueSource
	cfg Config
}

// New creates a Fetcher. Non-positive config values fall back to
// DefaultConfig.
func New(src ValueSource, cfg Config) *Fetcher {
	d := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = d.BatchPause
	}
	if cfg.PointTimeout <= 0 {
		cfg.PointTimeout = d.PointTimeout
	}
	return &Fetcher{src: src, cfg: cfg}
}

// FetchAll queries every point and returns one Sample per point in input
// order. Points within a batch run concurrently. A failed point never cancels
// its siblings. If ctx ends, the remaining points are marked with ctx.Err().
func (f *Fetcher) FetchAll(ctx context.Context, points []geometry.LatLng, dataSource string, w region.TimeWindow) []Sample {
	samples := make([]Sample, len(points))
	for i, p := range points {
		samples[i].Point = p
	}

	for start := 0; start < len(points); start += f.cfg.BatchSize {
		if start > 0 && !f.pause(ctx) {
			for i := start; i < len(points); i++ {
				samples[i].Err = ctx.Err()
			}
			break
		}

		end := min(start+f.cfg.BatchSize, len(points))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				samples[i].Value, samples[i].Err = f.one(ctx, points[i], dataSource, w)
				return nil
			})
		}
		_ = g.Wait()
	}

	failed := 0
	for _, s := range samples {
		if !s.OK() {
			failed++
		}
	}
	if failed > 0 {
		zap.L().Debug("fetch: points failed",
			zap.String("data_source", dataSource),
			zap.Int("failed", failed),
			zap.Int("requested", len(points)),
		)
	}
	return samples
}

func (f *Fetcher) one(ctx context.Context, p geometry.LatLng, dataSource string, w region.TimeWindow) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.PointTimeout)
	defer cancel()

	v, err := f.src.PointValue(ctx, p, dataSource, w)
	if err != nil {
		return 0, eris.Wrapf(err, "fetch: point %.5f,%.5f", p.Lat, p.Lng)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonFinite
	}
	return v, nil
}

func (f *Fetcher) pause(ctx context.Context) bool {
	if f.cfg.BatchPause == 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(f.cfg.BatchPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Values returns the values of the successful samples.
func Values(samples []Sample) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.OK() {
			out = append(out, s.Value)
		}
	}
	return out
}
