package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regionstat/internal/geometry"
	"github.com/sells-group/regionstat/internal/region"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRegionFile(t *testing.T) {
	path := writeFile(t, `
regions:
  - id: boulder
    data_source: temperature_2m
    points:
      - {lat: 40.0, lng: -105.3}
      - {lat: 40.0, lng: -105.2}
      - {lat: 40.1, lng: -105.25}
      - {lat: 40.0, lng: -105.3}
  - geojson: '{"type":"Polygon","coordinates":[[[-104,39],[-103.9,39],[-103.9,39.1],[-104,39]]]}'
`)
	reg := region.NewRegistry()
	regions, err := loadRegionFile(path, reg)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, "boulder", regions[0].ID)
	assert.Equal(t, "temperature_2m", regions[0].DataSource)
	// The closing vertex is dropped.
	assert.Len(t, regions[0].Points, 3)

	assert.NotEmpty(t, regions[1].ID)
	assert.Equal(t, geometry.LatLng{Lat: 39, Lng: -104}, regions[1].Points[0])
	assert.Len(t, reg.List(), 2)
}

func TestLoadRegionFile_Errors(t *testing.T) {
	_, err := loadRegionFile(filepath.Join(t.TempDir(), "missing.yaml"), region.NewRegistry())
	assert.ErrorContains(t, err, "read region file")

	_, err = loadRegionFile(writeFile(t, "regions: [unclosed"), region.NewRegistry())
	assert.ErrorContains(t, err, "parse region file")

	_, err = loadRegionFile(writeFile(t, "regions: []"), region.NewRegistry())
	assert.ErrorContains(t, err, "defines no regions")

	_, err = loadRegionFile(writeFile(t, `
regions:
  - points:
      - {lat: 1, lng: 1}
      - {lat: 2, lng: 2}
`), region.NewRegistry())
	assert.ErrorIs(t, err, region.ErrInvalidVertices)
}

func TestLoadRegionFile_UnknownDataSource(t *testing.T) {
	path := writeFile(t, `
regions:
  - id: good
    data_source: temperature_2m
    points:
      - {lat: 40.0, lng: -105.3}
      - {lat: 40.0, lng: -105.2}
      - {lat: 40.1, lng: -105.25}
  - id: typo
    data_source: temperature_2n
    points:
      - {lat: 40.0, lng: -105.3}
      - {lat: 40.0, lng: -105.2}
      - {lat: 40.1, lng: -105.25}
`)
	reg := region.NewRegistry()
	_, err := loadRegionFile(path, reg)
	require.Error(t, err)
	assert.ErrorContains(t, err, `region 1: unknown data source "temperature_2n"`)
	assert.Empty(t, reg.List(), "no region is added when any entry is invalid")
}
