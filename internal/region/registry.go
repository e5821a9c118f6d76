package region

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regionstat/internal/geometry"
)

// Registry errors.
var (
	ErrNotFound        = eris.New("region: not found")
	ErrExists          = eris.New("region: already exists")
	ErrInvalidVertices = eris.New("region: boundary must have 3 to 12 vertices")
	ErrStale           = eris.New("region: geometry changed since refresh started")
	ErrIncomplete      = eris.New("region: result requires a label")
)

// DefaultDataSources are the hourly fields offered when none are configured.
var DefaultDataSources = []string{"temperature_2m", "relativehumidity_2m"}

// Result is one computed value committed to a region as a unit.
type Result struct {
	Value    float64
	Label    string
	Metadata Quality
}

// Registry stores regions in insertion order. It is safe for concurrent use;
// all reads return copies.
type Registry struct {
	mu          sync.RWMutex
	regions     map[string]*Region
	order       []string
	dataSources []string
}

// NewRegistry creates an empty registry offering the given data sources, or
// DefaultDataSources when none are given.
func NewRegistry(dataSources ...string) *Registry {
	if len(dataSources) == 0 {
		dataSources = DefaultDataSources
	}
	return &Registry{
		regions:     make(map[string]*Region),
		dataSources: slices.Clone(dataSources),
	}
}

// DataSources returns the names of the fields a region may be assigned.
func (g *Registry) DataSources() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.dataSources)
}

// Add validates and stores a new region. An empty ID is replaced with a new
// UUID. Any result fields on r are ignored.
func (g *Registry) Add(r Region) (Region, error) {
	points, err := validatePoints(r.Points)
	if err != nil {
		return Region{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := g.regions[r.ID]; ok {
		return Region{}, eris.Wrapf(ErrExists, "region: add %s", r.ID)
	}

	stored := &Region{
		ID:         r.ID,
		Points:     points,
		DataSource: r.DataSource,
		Version:    1,
	}
	g.regions[r.ID] = stored
	g.order = append(g.order, r.ID)

	zap.L().Debug("region: added",
		zap.String("region", r.ID),
		zap.Int("vertices", len(points)),
		zap.String("data_source", r.DataSource),
	)
	return stored.clone(), nil
}

// Update replaces the boundary and data source of an existing region. A
// change to either invalidates the region's value, label, metadata and color.
func (g *Registry) Update(r Region) (Region, error) {
	points, err := validatePoints(r.Points)
	if err != nil {
		return Region{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	stored, ok := g.regions[r.ID]
	if !ok {
		return Region{}, eris.Wrapf(ErrNotFound, "region: update %s", r.ID)
	}

	if slices.Equal(stored.Points, points) && stored.DataSource == r.DataSource {
		return stored.clone(), nil
	}

	stored.Points = points
	stored.DataSource = r.DataSource
	stored.Version++
	stored.clearResult()

	zap.L().Debug("region: updated",
		zap.String("region", r.ID),
		zap.Uint64("version", stored.Version),
	)
	return stored.clone(), nil
}

// Delete removes a region.
func (g *Registry) Delete(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.regions[id]; !ok {
		return eris.Wrapf(ErrNotFound, "region: delete %s", id)
	}
	delete(g.regions, id)
	g.order = slices.DeleteFunc(g.order, func(s string) bool { return s == id })
	return nil
}

// Get returns a copy of one region.
func (g *Registry) Get(id string) (Region, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.regions[id]
	if !ok {
		return Region{}, false
	}
	return r.clone(), true
}

// List returns copies of every region in insertion order.
func (g *Registry) List() []Region {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Region, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.regions[id].clone())
	}
	return out
}

// Commit stores res on region id if its geometry is still at version. Value,
// label and metadata are replaced together under one lock.
func (g *Registry) Commit(id string, version uint64, res Result) error {
	if res.Label == "" {
		return eris.Wrapf(ErrIncomplete, "region: commit %s", id)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	stored, ok := g.regions[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "region: commit %s", id)
	}
	if stored.Version != version {
		return eris.Wrapf(ErrStale, "region: commit %s at version %d (current %d)", id, version, stored.Version)
	}

	v := res.Value
	meta := res.Metadata
	stored.Value = &v
	stored.Label = res.Label
	stored.Metadata = &meta
	return nil
}

// Recolor sets the color of every region that has a value to colorFor(value)
// and returns how many regions changed. Regions without a value keep their
// color.
func (g *Registry) Recolor(colorFor func(float64) string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	changed := 0
	for _, id := range g.order {
		r := g.regions[id]
		if r.Value == nil {
			continue
		}
		c := colorFor(*r.Value)
		if c != r.Color {
			r.Color = c
			changed++
		}
	}
	return changed
}

// validatePoints drops an explicit closing vertex and checks the vertex count.
func validatePoints(points []geometry.LatLng) ([]geometry.LatLng, error) {
	open := slices.Clone(geometry.OpenRing(points))
	if len(open) < MinVertices || len(open) > MaxVertices {
		return nil, eris.Wrapf(ErrInvalidVertices, "region: got %d vertices", len(open))
	}
	return open, nil
}
