package sampling

import (
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/regionstat/internal/geometry"
)

// Cell offsets. Grids up to fixedOffsetMaxResolution use the cell center so
// that small regions are sampled reproducibly; larger grids jitter each point
// within [jitterMin, jitterMin+jitterSpan) of the cell on both axes.
const (
	fixedOffsetMaxResolution = 3
	centerOffset             = 0.5
	jitterMin                = 0.3
	jitterSpan               = 0.4
)

// Fallback describes how a plan's points were produced when the grid yielded
// no interior candidates.
type Fallback string

// Fallback strategies, in the order they are attempted.
const (
	FallbackNone           Fallback = ""
	FallbackDegenerate     Fallback = "degenerate_bounds"
	FallbackCentroid       Fallback = "centroid"
	FallbackVertex         Fallback = "vertex"
	FallbackForcedCentroid Fallback = "forced_centroid"
)

// Plan is the set of sample coordinates generated for one region.
type Plan struct {
	AreaKm2    float64           `json:"area_km2"`
	Resolution int               `json:"resolution"`
	Candidates int               `json:"candidates"`
	Points     []geometry.LatLng `json:"points"`
	Fallback   Fallback          `json:"fallback,omitempty"`
}

// RandSource supplies uniform values in [0, 1).
type RandSource interface {
	Float64() float64
}

// Option configures a Planner.
type Option func(*Planner)

// WithRandSource sets the source used for per-cell jitter.
func WithRandSource(src RandSource) Option {
	return func(p *Planner) {
		if src != nil {
			p.rand = src
		}
	}
}

// WithSeed makes jittered grids reproducible. A zero seed keeps the default
// randomly seeded source.
func WithSeed(seed uint64) Option {
	return func(p *Planner) {
		if seed != 0 {
			p.rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		}
	}
}

// Planner turns region boundaries into interior sample points. It is safe for
// concurrent use.
type Planner struct {
	mu   sync.Mutex
	rand RandSource
}

// NewPlanner creates a Planner with the given options.
func NewPlanner(opts ...Option) *Planner {
	p := &Planner{
		rand: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate lays an n×n grid over the bounding box of ring, keeps the cell
// points that fall inside the ring and falls back to a single representative
// point if none do. Rings with fewer than three vertices yield an empty plan.
func (p *Planner) Generate(ring []geometry.LatLng) Plan {
	ring = geometry.OpenRing(ring)
	if len(ring) < 3 {
		return Plan{}
	}

	bounds, _ := geometry.Bounds(ring)
	area := geometry.ApproximateAreaKm2(ring)
	n := ChooseGridResolution(area)

	plan := Plan{AreaKm2: area, Resolution: n}

	if bounds.Degenerate() {
		plan.Points = []geometry.LatLng{bounds.Center()}
		plan.Fallback = FallbackDegenerate
		return plan
	}

	latStep := bounds.Height() / float64(n)
	lngStep := bounds.Width() / float64(n)

	points := make([]geometry.LatLng, 0, n*n)
	for i := range n {
		for j := range n {
			latOff, lngOff := p.offsets(n)
			candidate := geometry.LatLng{
				Lat: bounds.South + (float64(i)+latOff)*latStep,
				Lng: bounds.West + (float64(j)+lngOff)*lngStep,
			}
			plan.Candidates++
			if geometry.PointInPolygon(candidate, ring) {
				points = append(points, candidate)
			}
		}
	}

	if len(points) == 0 {
		point, fb := fallbackPoint(ring, bounds)
		zap.L().Debug("sampling: no grid points inside region, using fallback",
			zap.Int("resolution", n),
			zap.String("fallback", string(fb)),
		)
		points = append(points, point)
		plan.Fallback = fb
	}

	plan.Points = points
	return plan
}

func (p *Planner) offsets(n int) (float64, float64) {
	if n <= fixedOffsetMaxResolution {
		return centerOffset, centerOffset
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return jitterMin + p.rand.Float64()*jitterSpan, jitterMin + p.rand.Float64()*jitterSpan
}

func fallbackPoint(ring []geometry.LatLng, bounds geometry.BBox) (geometry.LatLng, Fallback) {
	center := bounds.Center()
	if geometry.PointInPolygon(center, ring) {
		return center, FallbackCentroid
	}
	for _, v := range ring {
		if geometry.PointInPolygon(v, ring) {
			return v, FallbackVertex
		}
	}
	return center, FallbackForcedCentroid
}
