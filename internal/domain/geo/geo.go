package geo

import "math"

// EarthRadiusMeters is the mean radius of Earth used for Haversine distance.
const EarthRadiusMeters = 6_371_000.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within valid coordinate ranges.
func (p Point) Valid() bool {
	return ValidateCoordinates(p.Lat, p.Lng)
}

// Haversine returns the great-circle distance in meters between two points
// specified by latitude and longitude in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b Point) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// BoundingBox returns the min/max latitude and longitude of a box that
// contains the circle of the given radius around the center. Used as a cheap
// SQL prefilter before exact Haversine checks.
func BoundingBox(center Point, radiusM float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radiusM / EarthRadiusMeters * 180 / math.Pi
	minLat = center.Lat - dLat
	maxLat = center.Lat + dLat

	// Longitude degrees shrink with latitude; widen near the poles.
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 1e-6 {
		return minLat, maxLat, -180, 180
	}
	dLng := dLat / cosLat
	minLng = center.Lng - dLng
	maxLng = center.Lng + dLng
	return minLat, maxLat, minLng, maxLng
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
