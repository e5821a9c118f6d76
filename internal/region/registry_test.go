package region

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regionstat/internal/geometry"
)

var triangle = []geometry.LatLng{
	{Lat: 51.50, Lng: -0.12},
	{Lat: 51.52, Lng: -0.10},
	{Lat: 51.50, Lng: -0.08},
}

func committed(t *testing.T, g *Registry, id string) Region {
	t.Helper()
	r, ok := g.Get(id)
	require.True(t, ok)
	require.NoError(t, g.Commit(id, r.Version, Result{
		Value:    12.5,
		Label:    "temperature 2m: 12.5°",
		Metadata: Quality{SampleCount: 4, TotalRequested: 4, QualityPercent: 100, MinValue: 12, MaxValue: 13, LastUpdated: time.Now()},
	}))
	r, _ = g.Get(id)
	return r
}

func TestNewRegistry_DefaultDataSources(t *testing.T) {
	g := NewRegistry()
	assert.Equal(t, []string{"temperature_2m", "relativehumidity_2m"}, g.DataSources())

	g = NewRegistry("windspeed_10m")
	assert.Equal(t, []string{"windspeed_10m"}, g.DataSources())
}

func TestAdd_AssignsID(t *testing.T) {
	g := NewRegistry()
	r, err := g.Add(Region{Points: triangle, DataSource: "temperature_2m"})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, uint64(1), r.Version)
	assert.False(t, r.HasValue())
}

func TestAdd_IgnoresResultFields(t *testing.T) {
	g := NewRegistry()
	v := 9.0
	r, err := g.Add(Region{ID: "a", Points: triangle, Value: &v, Label: "x", Color: "#fff"})
	require.NoError(t, err)
	assert.Nil(t, r.Value)
	assert.Empty(t, r.Label)
	assert.Empty(t, r.Color)
}

func TestAdd_DropsClosingVertex(t *testing.T) {
	g := NewRegistry()
	closed := append(append([]geometry.LatLng{}, triangle...), triangle[0])
	r, err := g.Add(Region{ID: "a", Points: closed})
	require.NoError(t, err)
	assert.Len(t, r.Points, 3)
}

func TestAdd_VertexLimits(t *testing.T) {
	g := NewRegistry()

	_, err := g.Add(Region{Points: triangle[:2]})
	assert.ErrorIs(t, err, ErrInvalidVertices)

	many := make([]geometry.LatLng, 13)
	for i := range many {
		many[i] = geometry.LatLng{Lat: float64(i), Lng: float64(i * i)}
	}
	_, err = g.Add(Region{Points: many})
	assert.ErrorIs(t, err, ErrInvalidVertices)

	_, err = g.Add(Region{Points: many[:12]})
	assert.NoError(t, err)
}

func TestAdd_Duplicate(t *testing.T) {
	g := NewRegistry()
	_, err := g.Add(Region{ID: "a", Points: triangle})
	require.NoError(t, err)
	_, err = g.Add(Region{ID: "a", Points: triangle})
	assert.ErrorIs(t, err, ErrExists)
}

func TestGet_ReturnsCopy(t *testing.T) {
	g := NewRegistry()
	_, err := g.Add(Region{ID: "a", Points: triangle})
	require.NoError(t, err)

	r, _ := g.Get("a")
	r.Points[0].Lat = 0

	again, _ := g.Get("a")
	assert.Equal(t, triangle[0], again.Points[0])

	_, ok := g.Get("missing")
	assert.False(t, ok)
}

func TestList_InsertionOrder(t *testing.T) {
	g := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		_, err := g.Add(Region{ID: id, Points: triangle})
		require.NoError(t, err)
	}
	require.NoError(t, g.Delete("a"))

	var ids []string
	for _, r := range g.List() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"c", "b"}, ids)
}

func TestDelete_NotFound(t *testing.T) {
	g := NewRegistry()
	assert.ErrorIs(t, g.Delete("nope"), ErrNotFound)
}

func TestUpdate_GeometryChangeInvalidates(t *testing.T) {
	g := NewRegistry()
	_, err := g.Add(Region{ID: "a", Points: triangle, DataSource: "temperature_2m"})
	require.NoError(t, err)
	before := committed(t, g, "a")
	g.Recolor(func(float64) string { return "#0000ff" })

	moved := append([]geometry.LatLng{}, triangle...)
	moved[1].Lat = 51.53
	r, err := g.Update(Region{ID: "a", Points: moved, DataSource: "temperature_2m"})
	require.NoError(t, err)

	assert.Equal(t, before.Version+1, r.Version)
	assert.Nil(t, r.Value)
	assert.Nil(t, r.Metadata)
	assert.Empty(t, r.Label)
	assert.Empty(t, r.Color)
}

func TestUpdate_NoChangeKeepsResult(t *testing.T) {
	g := NewRegistry()
	_, err := g.Add(Region{ID: "a", Points: triangle, DataSource: "temperature_2m"})
	require.NoError(t, err)
	before := committed(t, g, "a")

	r, err := g.Update(Region{ID: "a", Points: triangle, DataSource: "temperature_2m"})
	require.NoError(t, err)
	assert.Equal(t, before, r)
}

func TestUpdate_DataSourceChangeInvalidates(t *testing.T) {
	g := NewRegistry()
	_, err := g.Add(Region{ID: "a", Points: triangle, DataSource: "temperature_2m"})
	require.NoError(t, err)
	committed(t, g, "a")

	r, err := g.Update(Region{ID: "a", Points: triangle, DataSource: "relativehumidity_2m"})
	require.NoError(t, err)
	assert.False(t, r.HasValue())
}

func TestUpdate_Errors(t *testing.T) {
	g := NewRegistry()
	_, err := g.Update(Region{ID: "x", Points: triangle})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = g.Add(Region{ID: "x", Points: triangle})
	require.NoError(t, err)
	_, err = g.Update(Region{ID: "x", Points: triangle[:1]})
	assert.ErrorIs(t, err, ErrInvalidVertices)
}

func TestCommit_SetsAllResultFieldsTogether(t *testing.T) {
	g := NewRegistry()
	_, err := g.Add(Region{ID: "a", Points: triangle, DataSource: "temperature_2m"})
	require.NoError(t, err)

	r := committed(t, g, "a")
	require.NotNil(t, r.Value)
	require.NotNil(t, r.Metadata)
	assert.InDelta(t, 12.5, *r.Value, 1e-9)
	assert.Equal(t, "temperature 2m: 12.5°", r.Label)
	assert.Equal(t, 4, r.Metadata.SampleCount)
}

func TestCommit_RejectsWithoutLabel(t *testing.T) {
	g := NewRegistry()
	_, err := g.Add(Region{ID: "a", Points: triangle})
	require.NoError(t, err)

	err = g.Commit("a", 1, Result{Value: 3})
	assert.ErrorIs(t, err, ErrIncomplete)

	r, _ := g.Get("a")
	assert.False(t, r.HasValue())
	assert.Nil(t, r.Metadata)
}

func TestCommit_StaleVersion(t *testing.T) {
	g := NewRegistry()
	_, err := g.Add(Region{ID: "a", Points: triangle, DataSource: "temperature_2m"})
	require.NoError(t, err)

	moved := append([]geometry.LatLng{}, triangle...)
	moved[0].Lng = -0.13
	_, err = g.Update(Region{ID: "a", Points: moved, DataSource: "temperature_2m"})
	require.NoError(t, err)

	err = g.Commit("a", 1, Result{Value: 1, Label: "x"})
	assert.ErrorIs(t, err, ErrStale)

	r, _ := g.Get("a")
	assert.False(t, r.HasValue())
}

func TestCommit_Deleted(t *testing.T) {
	g := NewRegistry()
	err := g.Commit("gone", 1, Result{Value: 1, Label: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommit_ConcurrentReadersSeeWholeResult(t *testing.T) {
	g := NewRegistry()
	_, err := g.Add(Region{ID: "a", Points: triangle, DataSource: "temperature_2m"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			r, _ := g.Get("a")
			hasValue, hasMeta, hasLabel := r.Value != nil, r.Metadata != nil, r.Label != ""
			assert.True(t, hasValue == hasMeta && hasMeta == hasLabel)
		}
	}()

	for i := range 200 {
		require.NoError(t, g.Commit("a", 1, Result{Value: float64(i), Label: "v", Metadata: Quality{SampleCount: i}}))
	}
	close(stop)
	wg.Wait()
}

func TestRecolor_SkipsRegionsWithoutValue(t *testing.T) {
	g := NewRegistry()
	for _, id := range []string{"a", "b"} {
		_, err := g.Add(Region{ID: id, Points: triangle, DataSource: "temperature_2m"})
		require.NoError(t, err)
	}
	committed(t, g, "a")

	n := g.Recolor(func(v float64) string {
		if v > 10 {
			return "#ff0000"
		}
		return "#0000ff"
	})
	assert.Equal(t, 1, n)

	a, _ := g.Get("a")
	b, _ := g.Get("b")
	assert.Equal(t, "#ff0000", a.Color)
	assert.Empty(t, b.Color)

	assert.Zero(t, g.Recolor(func(float64) string { return "#ff0000" }))
}

func TestTimeWindow(t *testing.T) {
	w := TimeWindow{Start: 48, End: 12}
	lo, hi := w.Normalized()
	assert.InDelta(t, 12, lo, 1e-9)
	assert.InDelta(t, 48, hi, 1e-9)
	assert.InDelta(t, 36, w.SpanHours(), 1e-9)

	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	from, to := w.Times(now)
	assert.Equal(t, now.Add(12*time.Hour), from)
	assert.Equal(t, now.Add(48*time.Hour), to)

	assert.Equal(t, TimeWindow{Start: 0, End: 168}, DefaultTimeWindow())
}
