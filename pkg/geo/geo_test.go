package geo

import (
	"math"
	"testing"
)

func TestConversions_RoundTrip(t *testing.T) {
	for _, deg := range []float64{-180, -90, -34.05, 0, 12.5, 90, 180} {
		got := ToDegrees(ToRadians(deg))
		if math.Abs(got-deg) > 1e-12 {
			t.Errorf("round-trip %v: got %v", deg, got)
		}
	}

	if got := ToRadians(180); got != math.Pi {
		t.Errorf("expected pi, got %v", got)
	}
}

func TestGreatCircleDistanceKm_SamePoint(t *testing.T) {
	points := []Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 34.05, Lon: -118.25},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 89.9, Lon: 179.9},
	}

	for _, p := range points {
		if d := GreatCircleDistanceKm(p, p); d != 0 {
			t.Errorf("distance from %v to itself: expected 0, got %v", p, d)
		}
	}
}

func TestGreatCircleDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Coordinate
		expected  float64
		tolerance float64
	}{
		{
			name:      "1 degree latitude on 6367km sphere",
			a:         Coordinate{Lat: 0, Lon: 0},
			b:         Coordinate{Lat: 1, Lon: 0},
			expected:  DistanceEarthRadiusKm * math.Pi / 180,
			tolerance: 1e-9,
		},
		{
			name:      "Los Angeles to San Francisco - roughly 559km",
			a:         Coordinate{Lat: 34.0522, Lon: -118.2437},
			b:         Coordinate{Lat: 37.7749, Lon: -122.4194},
			expected:  559,
			tolerance: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GreatCircleDistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("expected ~%.3f km (±%v), got %.3f km", tt.expected, tt.tolerance, got)
			}
			if back := GreatCircleDistanceKm(tt.b, tt.a); math.Abs(back-got) > 1e-9 {
				t.Errorf("distance not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestNewBoundingBox(t *testing.T) {
	center := Coordinate{Lat: 34.05, Lon: -118.25}
	box := NewBoundingBox(center, 10)

	height := 10 / BoundingBoxEarthRadiusKm * 180 / math.Pi
	width := height / math.Cos(34.05*math.Pi/180)

	if math.Abs(box.North-(center.Lat+height)) > 1e-12 || math.Abs(box.South-(center.Lat-height)) > 1e-12 {
		t.Errorf("unexpected latitude edges: %+v", box)
	}
	if math.Abs(box.East-(center.Lon+width)) > 1e-12 || math.Abs(box.West-(center.Lon-width)) > 1e-12 {
		t.Errorf("unexpected longitude edges: %+v", box)
	}
	if !box.Valid() {
		t.Errorf("expected valid box, got %+v", box)
	}
	if !box.Contains(center) {
		t.Error("expected box to contain its center")
	}
	if math.Abs(height-0.0899) > 0.0001 {
		t.Errorf("expected ~0.0899 degrees of height, got %v", height)
	}
}

func TestNewBoundingBox_AtPoleIsInvalid(t *testing.T) {
	box := NewBoundingBox(Coordinate{Lat: 90, Lon: 0}, 10)
	if box.Valid() {
		t.Errorf("expected degenerate box at the pole, got %+v", box)
	}
}

func TestCoordinate_Valid(t *testing.T) {
	tests := []struct {
		coord Coordinate
		valid bool
	}{
		{Coordinate{Lat: 0, Lon: 0}, true},
		{Coordinate{Lat: 90, Lon: 180}, true},
		{Coordinate{Lat: -90, Lon: -180}, true},
		{Coordinate{Lat: 90.0001, Lon: 0}, false},
		{Coordinate{Lat: 0, Lon: -180.5}, false},
		{Coordinate{Lat: math.NaN(), Lon: 0}, false},
	}

	for _, tt := range tests {
		if got := tt.coord.Valid(); got != tt.valid {
			t.Errorf("%v: expected valid=%v, got %v", tt.coord, tt.valid, got)
		}
	}
}
