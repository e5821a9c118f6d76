package main

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/regionstat/internal/geometry"
	"github.com/sells-group/regionstat/internal/region"
)

// regionFile is the YAML layout accepted by --file:
//
//	regions:
//	  - id: boulder
//	    data_source: temperature_2m
//	    points:
//	      - {lat: 40.00, lng: -105.30}
//	      - {lat: 40.00, lng: -105.20}
//	      - {lat: 40.10, lng: -105.25}
type regionFile struct {
	Regions []regionEntry `yaml:"regions"`
}

type regionEntry struct {
	ID         string            `yaml:"id"`
	DataSource string            `yaml:"data_source"`
	Points     []geometry.LatLng `yaml:"points"`
	// GeoJSON is an alternative to Points holding a Polygon geometry.
	GeoJSON string `yaml:"geojson"`
}

func (e regionEntry) boundary() ([]geometry.LatLng, error) {
	if e.GeoJSON != "" {
		return geometry.UnmarshalGeoJSON([]byte(e.GeoJSON))
	}
	return e.Points, nil
}

// loadRegionFile reads a region file and adds every entry to reg. Data
// sources are checked before any region is added.
func loadRegionFile(path string, reg *region.Registry) ([]region.Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read region file %s", path)
	}

	var f regionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "parse region file %s", path)
	}
	if len(f.Regions) == 0 {
		return nil, eris.Errorf("region file %s defines no regions", path)
	}

	known := reg.DataSources()
	for i, e := range f.Regions {
		if e.DataSource != "" && !slices.Contains(known, e.DataSource) {
			return nil, eris.Errorf("region %d: unknown data source %q (known: %v)", i, e.DataSource, known)
		}
	}

	out := make([]region.Region, 0, len(f.Regions))
	for i, e := range f.Regions {
		points, err := e.boundary()
		if err != nil {
			return nil, eris.Wrapf(err, "region %d", i)
		}
		r, err := reg.Add(region.Region{ID: e.ID, Points: points, DataSource: e.DataSource})
		if err != nil {
			return nil, eris.Wrapf(err, "region %d", i)
		}
		out = append(out, r)
	}
	return out, nil
}
