package types

import (
	"errors"
	"math"
	"testing"
)

func TestPointValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Point
		ok   bool
	}{
		{"origin", Point{0, 0}, true},
		{"corners", Point{90, 180}, true},
		{"negative corners", Point{-90, -180}, true},
		{"taipei", Point{25.033, 121.565}, true},
		{"lat too high", Point{90.0001, 0}, false},
		{"lat too low", Point{-91, 0}, false},
		{"lng too high", Point{0, 180.5}, false},
		{"lng too low", Point{0, -181}, false},
		{"nan", Point{math.NaN(), 0}, false},
		{"inf", Point{0, math.Inf(1)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrInvalidCoordinate) {
					t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrInvalidCoordinate to be a validation error")
				}
			}
		})
	}
}

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		want      float64
		tolerance float64
	}{
		{"same point", Point{25.033, 121.565}, Point{25.033, 121.565}, 0, 0.001},
		{"one degree of latitude", Point{0, 0}, Point{1, 0}, 111195, 50},
		{"New York to Los Angeles", Point{40.7128, -74.0060}, Point{34.0522, -118.2437}, 3944000, 50000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceMeters() = %f, want %f (±%f)", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	a, b := Point{25.0, 121.0}, Point{26.0, 122.0}
	if d1, d2 := DistanceMeters(a, b), DistanceMeters(b, a); math.Abs(d1-d2) > 0.0001 {
		t.Errorf("distance is not symmetric: %f vs %f", d1, d2)
	}
}
