package enu

import (
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	ref := LLH{Lat: 57.78100308, Lon: 12.76925422, Height: 253.76}

	tests := []Vec3{
		{0, 0, 0},
		{100, 0, 0},
		{0, -250, 0},
		{1234.5, 987.6, 12},
		{-5000, 3000, -40},
	}

	for _, e := range tests {
		llh := ENUToLLH(ref, e)
		back := LLHToENU(ref, llh)
		if math.Abs(back.X-e.X) > 1e-3 || math.Abs(back.Y-e.Y) > 1e-3 || math.Abs(back.Z-e.Z) > 1e-3 {
			t.Errorf("round trip %v -> %v -> %v", e, llh, back)
		}
	}
}

func TestReferenceIsOrigin(t *testing.T) {
	ref := LLH{Lat: -33.8688, Lon: 151.2093, Height: 10}
	e := LLHToENU(ref, ref)
	if math.Abs(e.X) > 1e-6 || math.Abs(e.Y) > 1e-6 || math.Abs(e.Z) > 1e-6 {
		t.Errorf("reference maps to %v, want origin", e)
	}
}

func TestAxes(t *testing.T) {
	ref := LLH{Lat: 47.0, Lon: 8.0}

	north := LLHToENU(ref, LLH{Lat: 47.001, Lon: 8.0})
	if north.Y <= 100 || math.Abs(north.X) > 0.01 {
		t.Errorf("north offset = %v", north)
	}

	east := LLHToENU(ref, LLH{Lat: 47.0, Lon: 8.001})
	if east.X <= 50 || math.Abs(east.Y) > 0.1 {
		t.Errorf("east offset = %v", east)
	}
}

func TestECEF(t *testing.T) {
	r := LLHToECEF(LLH{})
	if math.Abs(r.X-semiMajor) > 1e-6 || math.Abs(r.Y) > 1e-6 || math.Abs(r.Z) > 1e-6 {
		t.Errorf("origin ecef = %v", r)
	}

	p := LLH{Lat: 57.7, Lon: 12.9, Height: 200}
	back := ECEFToLLH(LLHToECEF(p))
	if math.Abs(back.Lat-p.Lat) > 1e-8 || math.Abs(back.Lon-p.Lon) > 1e-8 || math.Abs(back.Height-p.Height) > 1e-3 {
		t.Errorf("ecef round trip %v -> %v", p, back)
	}
}
