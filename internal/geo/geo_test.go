package geo

import (
	"math"
	"testing"
	"time"
)

func TestHaversine(t *testing.T) {
	// CYYZ to CYOW is roughly 363 km
	d := Haversine(43.6777, -79.6248, 45.3225, -75.6692)
	if d < 350000 || d > 380000 {
		t.Errorf("Haversine CYYZ-CYOW = %.0f m, want ~363 km", d)
	}

	if d := Haversine(51.0, 7.0, 51.0, 7.0); d != 0 {
		t.Errorf("Haversine of identical points = %f, want 0", d)
	}
}

func TestInitialBearing(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tol                    float64
	}{
		{"due north", 45.0, -75.0, 46.0, -75.0, 0, 0.01},
		{"due east at equator", 0.0, 10.0, 0.0, 11.0, 90, 0.01},
		{"due south", 46.0, -75.0, 45.0, -75.0, 180, 0.01},
		{"north-east short hop", 50.0, 8.0, 50.01, 8.01, 45, 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InitialBearing(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			diff := math.Abs(got - tt.want)
			if diff > 180 {
				diff = 360 - diff
			}
			if diff > tt.tol {
				t.Errorf("InitialBearing = %.2f, want %.2f +/- %.2f", got, tt.want, tt.tol)
			}
		})
	}
}

func TestProject(t *testing.T) {
	// 360 knots due north for 10s = 1 NM = 1/60 degree latitude
	lat, lon := Project(50.0, 8.0, 0, 360, 10*time.Second)
	if math.Abs(lat-50.0-1.0/60.0) > 1e-6 {
		t.Errorf("Project north: lat = %.6f, want %.6f", lat, 50.0+1.0/60.0)
	}
	if math.Abs(lon-8.0) > 1e-9 {
		t.Errorf("Project north: lon = %.6f, want 8.0", lon)
	}

	// Zero duration or speed is a no-op
	if lat, lon := Project(50.0, 8.0, 90, 400, 0); lat != 50.0 || lon != 8.0 {
		t.Errorf("Project with dt=0 moved the position to %.6f,%.6f", lat, lon)
	}
	if lat, lon := Project(50.0, 8.0, 90, 0, time.Minute); lat != 50.0 || lon != 8.0 {
		t.Errorf("Project with speed=0 moved the position to %.6f,%.6f", lat, lon)
	}

	// Heading east moves longitude only (at low latitudes, lat drift is tiny)
	lat, lon = Project(10.0, 20.0, 90, 300, 30*time.Second)
	if lon <= 20.0 {
		t.Errorf("Project east did not increase longitude: %.6f", lon)
	}
	if math.Abs(lat-10.0) > 1e-6 {
		t.Errorf("Project east changed latitude: %.6f", lat)
	}
}

func TestNormalizeDegrees(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{360, 0},
		{-90, 270},
		{450, 90},
		{-720, 0},
	}
	for _, tt := range tests {
		if got := NormalizeDegrees(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeDegrees(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestTrueToMagneticInRange(t *testing.T) {
	got := TrueToMagnetic(90, 43.7, -79.6, 3000, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if got < 0 || got >= 360 {
		t.Errorf("TrueToMagnetic out of range: %f", got)
	}
}
