// Package geo provides great-circle distance math and bounding-box
// computation for radius queries. The repository uses the bounding box as a
// cheap SQL prefilter; exact distances are computed here and drive the
// final filter and sort.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for spherical distance.
const EarthRadiusMeters = 6371000.0

// Point is a geographic coordinate pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the point lies within WGS84 coordinate bounds.
func (p Point) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Distance returns the haversine great-circle distance between two points
// in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BoundingBox is a latitude/longitude rectangle guaranteed to contain every
// point within a given radius of its center. It may contain more; callers
// must re-check with Distance.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Bounds computes the bounding box for a radius (meters) around center.
// Near the poles or across the antimeridian the box widens to the full
// longitude range rather than wrapping.
func Bounds(center Point, radiusMeters float64) BoundingBox {
	latDelta := radiusMeters / EarthRadiusMeters * 180 / math.Pi

	box := BoundingBox{
		MinLat: math.Max(center.Latitude-latDelta, -90),
		MaxLat: math.Min(center.Latitude+latDelta, 90),
	}

	// Longitude degrees shrink with latitude; use the widest latitude the
	// box reaches so the prefilter never excludes an in-radius point.
	maxAbsLat := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))
	cosLat := math.Cos(maxAbsLat * math.Pi / 180)
	if cosLat < 1e-6 {
		box.MinLng, box.MaxLng = -180, 180
		return box
	}

	lngDelta := latDelta / cosLat
	minLng := center.Longitude - lngDelta
	maxLng := center.Longitude + lngDelta
	if minLng < -180 || maxLng > 180 {
		box.MinLng, box.MaxLng = -180, 180
		return box
	}
	box.MinLng, box.MaxLng = minLng, maxLng
	return box
}
