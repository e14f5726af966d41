package geo

import (
	"math"
	"testing"
)

func TestHaversine_KnownDistance(t *testing.T) {
	// Da Nang city center to My Khe beach, roughly 3 km.
	d := Haversine(16.0544, 108.2022, 16.0598, 108.2478)
	if d < 2500 || d > 5500 {
		t.Errorf("expected ~3-5 km, got %.0f m", d)
	}
}

func TestHaversine_ZeroDistance(t *testing.T) {
	if d := Haversine(16.0544, 108.2428, 16.0544, 108.2428); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	a := Point{Lat: 10.776, Lng: 106.7}
	b := Point{Lat: 21.028, Lng: 105.854}
	if math.Abs(Distance(a, b)-Distance(b, a)) > 1e-6 {
		t.Error("distance should be symmetric")
	}
}

func TestBoundingBox_ContainsRadius(t *testing.T) {
	center := Point{Lat: 16.0544, Lng: 108.2428}
	minLat, maxLat, minLng, maxLng := BoundingBox(center, 1000)

	if minLat >= center.Lat || maxLat <= center.Lat {
		t.Error("latitude bounds should straddle the center")
	}
	if minLng >= center.Lng || maxLng <= center.Lng {
		t.Error("longitude bounds should straddle the center")
	}

	// A point 900 m due north must fall inside the box.
	north := Point{Lat: center.Lat + 900/EarthRadiusMeters*180/math.Pi, Lng: center.Lng}
	if north.Lat > maxLat {
		t.Error("point within the radius fell outside the box")
	}
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		lat, lng float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{91, 0, false},
		{0, 181, false},
		{-90.1, 0, false},
	}
	for _, tc := range tests {
		if got := ValidateCoordinates(tc.lat, tc.lng); got != tc.want {
			t.Errorf("ValidateCoordinates(%v, %v) = %v, want %v", tc.lat, tc.lng, got, tc.want)
		}
	}
}
