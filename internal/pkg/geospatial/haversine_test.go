package geospatial

import (
	"math"
	"testing"
)

func TestHaversine_SamePointIsZero(t *testing.T) {
	points := [][2]float64{{17.4947, 78.3996}, {90, 0}, {-90, 123}, {0, 180}, {0, -180}}
	for _, p := range points {
		if d := Haversine(p[0], p[1], p[0], p[1]); d != 0 {
			t.Errorf("distance(%v,%v) = %f, want 0", p, p, d)
		}
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	cases := [][4]float64{
		{17.4947, 78.3996, 17.4920, 78.3972},
		{43.263, -2.935, -33.86, 151.21},
		{0, 179.9, 0, -179.9},
		{89.9, 10, -89.9, -170},
	}
	for _, c := range cases {
		ab := Haversine(c[0], c[1], c[2], c[3])
		ba := Haversine(c[2], c[3], c[0], c[1])
		if math.Abs(ab-ba) > 1e-6 {
			t.Errorf("asymmetric distance for %v: %f vs %f", c, ab, ba)
		}
	}
}

func TestHaversine_Antimeridian(t *testing.T) {
	d := Haversine(0, 179.9, 0, -179.9)
	// 0.2 degrees of longitude at the equator
	want := 2 * math.Pi * EarthRadiusMeters * 0.2 / 360
	if math.Abs(d-want) > 1 {
		t.Fatalf("expected ~%.0f m across the antimeridian, got %.0f m", want, d)
	}
	if d > 25000 {
		t.Fatalf("distance %.0f m took the long way round", d)
	}
}

func TestHaversine_Poles(t *testing.T) {
	// every meridian meets at the pole
	d := Haversine(90, 0, 90, 135)
	if d > 1e-6 {
		t.Errorf("expected 0 between two north pole representations, got %f", d)
	}
	halfCircumference := math.Pi * EarthRadiusMeters
	if got := Haversine(90, 0, -90, 0); math.Abs(got-halfCircumference) > 1 {
		t.Errorf("pole to pole = %f, want %f", got, halfCircumference)
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Kukatpally to KPHB Colony sample facilities
	d := Haversine(17.4947, 78.3996, 17.4920, 78.3972)
	if d < 370 || d > 410 {
		t.Errorf("expected roughly 390 m, got %.1f m", d)
	}
}

func TestNormalizeLonDelta(t *testing.T) {
	cases := map[float64]float64{
		0:      0,
		359.8:  -0.2,
		-359.8: 0.2,
		180:    -180,
		190:    -170,
		-190:   170,
		45:     45,
	}
	for in, want := range cases {
		if got := NormalizeLonDelta(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("NormalizeLonDelta(%v) = %v, want %v", in, got, want)
		}
	}
}
