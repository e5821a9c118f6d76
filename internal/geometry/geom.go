package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// SRID is the spatial reference used for every region geometry.
const SRID = 4326

// ErrDegenerate is returned when a ring has too few vertices to form a polygon.
var ErrDegenerate = eris.New("geometry: degenerate ring")

// ToPolygon converts an open lat/lng ring into a closed go-geom polygon with
// X = longitude and Y = latitude.
func ToPolygon(points []LatLng) (*geom.Polygon, error) {
	points = OpenRing(points)
	if len(points) < 3 {
		return nil, ErrDegenerate
	}

	coords := make([]geom.Coord, 0, len(points)+1)
	for _, p := range points {
		coords = append(coords, geom.Coord{p.Lng, p.Lat})
	}
	coords = append(coords, geom.Coord{points[0].Lng, points[0].Lat})

	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords})
	if err != nil {
		return nil, eris.Wrap(err, "geometry: build polygon")
	}
	return poly.SetSRID(SRID), nil
}

// FromPolygon extracts the exterior ring of a go-geom polygon as an open
// lat/lng ring. Interior rings are ignored.
func FromPolygon(poly *geom.Polygon) ([]LatLng, error) {
	if poly == nil || poly.NumLinearRings() == 0 {
		return nil, ErrDegenerate
	}

	coords := poly.LinearRing(0).Coords()
	points := make([]LatLng, 0, len(coords))
	for _, c := range coords {
		points = append(points, LatLng{Lat: c.Y(), Lng: c.X()})
	}

	points = OpenRing(points)
	if len(points) < 3 {
		return nil, ErrDegenerate
	}
	return points, nil
}

// MarshalGeoJSON encodes an open ring as a GeoJSON Polygon geometry.
func MarshalGeoJSON(points []LatLng) ([]byte, error) {
	poly, err := ToPolygon(points)
	if err != nil {
		return nil, err
	}
	data, err := geojson.Marshal(poly)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode geojson")
	}
	return data, nil
}

// UnmarshalGeoJSON decodes a GeoJSON Polygon geometry into an open ring.
func UnmarshalGeoJSON(data []byte) ([]LatLng, error) {
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrap(err, "geometry: decode geojson")
	}

	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("geometry: expected Polygon, got %T", g)
	}
	return FromPolygon(poly)
}
