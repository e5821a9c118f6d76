// Package geometry provides the planar helpers used to size and sample
// user-drawn regions: bounding boxes, an equirectangular area estimate and a
// ray-casting point-in-polygon test.
package geometry

import (
	"math"
)

// KMPerDegree is the approximate length of one degree of latitude in kilometers.
const KMPerDegree = 111.0

// MinAreaKm2 is the floor returned by ApproximateAreaKm2 for non-degenerate rings.
const MinAreaKm2 = 0.1

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// BBox is an axis-aligned bounding box in degrees.
type BBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Height returns the latitude span in degrees.
func (b BBox) Height() float64 { return b.North - b.South }

// Width returns the longitude span in degrees.
func (b BBox) Width() float64 { return b.East - b.West }

// Center returns the midpoint of the box.
func (b BBox) Center() LatLng {
	return LatLng{
		Lat: (b.North + b.South) / 2,
		Lng: (b.East + b.West) / 2,
	}
}

// Degenerate reports whether the box has zero (or negative) height or width.
func (b BBox) Degenerate() bool {
	return b.Height() <= 0 || b.Width() <= 0
}

// Bounds returns the bounding box of the given vertices. The second return
// value is false when points is empty.
func Bounds(points []LatLng) (BBox, bool) {
	if len(points) == 0 {
		return BBox{}, false
	}
	b := BBox{
		South: points[0].Lat,
		North: points[0].Lat,
		West:  points[0].Lng,
		East:  points[0].Lng,
	}
	for _, p := range points[1:] {
		b.South = math.Min(b.South, p.Lat)
		b.North = math.Max(b.North, p.Lat)
		b.West = math.Min(b.West, p.Lng)
		b.East = math.Max(b.East, p.Lng)
	}
	return b, true
}

// Centroid returns the center of the bounding box of points.
// An empty input yields the zero coordinate.
func Centroid(points []LatLng) LatLng {
	b, ok := Bounds(points)
	if !ok {
		return LatLng{}
	}
	return b.Center()
}

// ApproximateAreaKm2 estimates the area of the bounding box of a ring in
// square kilometers using an equirectangular projection around the mean
// latitude. Rings with fewer than three vertices have zero area; everything
// else is floored at MinAreaKm2.
func ApproximateAreaKm2(points []LatLng) float64 {
	if len(points) < 3 {
		return 0
	}
	b, _ := Bounds(points)

	meanLat := (b.North + b.South) / 2
	latKm := b.Height() * KMPerDegree
	lngKm := b.Width() * KMPerDegree * math.Cos(meanLat*math.Pi/180)

	return math.Max(latKm*lngKm, MinAreaKm2)
}

// PointInPolygon reports whether p lies inside the ring using the even-odd
// ray-casting rule. The ring may be non-convex and need not be closed.
// Fewer than three vertices always yields false.
func PointInPolygon(p LatLng, ring []LatLng) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	x, y := p.Lat, p.Lng
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lat, ring[i].Lng
		xj, yj := ring[j].Lat, ring[j].Lng

		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// OpenRing drops a trailing vertex equal to the first one so that a ring
// supplied in closed form has the same vertex count as its open form.
func OpenRing(points []LatLng) []LatLng {
	n := len(points)
	if n > 1 && points[0] == points[n-1] {
		return points[:n-1]
	}
	return points
}
