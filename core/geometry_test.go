package core

import (
	"errors"
	"math"
	"testing"
)

func TestBuildRay_UnitDirection(t *testing.T) {
	cases := []struct {
		name     string
		obs, tgt Point3
	}{
		{"axis", P3(0, 0, 0), P3(10, 0, 0)},
		{"diagonal", P3(1, 2, 3), P3(-4, 7, 0.5)},
		{"ecef", P3(1216379.1782947562, -4736305.994587113, 4081359.5125561724), P3(1216396.0036570462, -4736309.345371385, 4081318.018882543)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ray, err := BuildRay(tc.obs, tc.tgt)
			if err != nil {
				t.Fatalf("BuildRay: %v", err)
			}
			if ray.Origin != tc.obs {
				t.Fatalf("origin = %v, want %v", ray.Origin, tc.obs)
			}
			if n := ray.Direction.Norm(); math.Abs(n-1) > 1e-12 {
				t.Fatalf("|direction| = %v, want 1", n)
			}
			// Target lies on the ray at its own distance.
			d := tc.obs.DistanceTo(tc.tgt)
			if got := ray.At(d); got.DistanceTo(tc.tgt) > 1e-9*math.Max(1, d) {
				t.Fatalf("ray.At(%v) = %v, want %v", d, got, tc.tgt)
			}
		})
	}
}

func TestBuildRay_Degenerate(t *testing.T) {
	p := P3(3, 4, 5)
	_, err := BuildRay(p, p)
	if err == nil {
		t.Fatalf("expected degenerate error for coincident points")
	}
	if !errors.Is(err, ErrDegenerateSegment) {
		t.Fatalf("errors.Is(err, ErrDegenerateSegment) = false for %v", err)
	}
	var de *DegenerateSegmentError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DegenerateSegmentError, got %T", err)
	}
	if de.Observer != p || de.Target != p {
		t.Fatalf("error endpoints = %v, %v", de.Observer, de.Target)
	}
}

func TestBuildRay_DegenerateRelativeToMagnitude(t *testing.T) {
	obs := P3(1216379.1782947562, -4736305.994587113, 4081359.5125561724)
	tgt := obs.Add(P3(1e-9, 0, 0))
	if _, err := BuildRay(obs, tgt); !errors.Is(err, ErrDegenerateSegment) {
		t.Fatalf("expected sub-nanometre ECEF offset to be degenerate, got %v", err)
	}

	// The same offset at unit scale is a valid ray.
	if _, err := BuildRay(P3(0, 0, 0), P3(1e-9, 0, 0)); err != nil {
		t.Fatalf("BuildRay at unit scale: %v", err)
	}
}

func TestBuildRay_NonFinite(t *testing.T) {
	_, err := BuildRay(P3(math.NaN(), 0, 0), P3(1, 0, 0))
	if err == nil {
		t.Fatalf("expected error for NaN observer")
	}
	if errors.Is(err, ErrDegenerateSegment) {
		t.Fatalf("NaN endpoint should not be reported as degenerate")
	}
	if !errors.Is(err, ErrNonFiniteEndpoint) {
		t.Fatalf("err = %v, want ErrNonFiniteEndpoint", err)
	}
	if _, err := BuildRay(P3(0, 0, 0), P3(0, math.Inf(-1), 0)); !errors.Is(err, ErrNonFiniteEndpoint) {
		t.Fatalf("infinite target err = %v, want ErrNonFiniteEndpoint", err)
	}
}

func TestRayProject(t *testing.T) {
	ray, err := BuildRay(P3(0, 0, 0), P3(10, 0, 0))
	if err != nil {
		t.Fatalf("BuildRay: %v", err)
	}
	tt, off := ray.Project(P3(4, 3, 0))
	if tt != 4 || off != 3 {
		t.Fatalf("Project = (%v, %v), want (4, 3)", tt, off)
	}
}

func TestPointOps(t *testing.T) {
	a, b := P3(1, 0, 0), P3(0, 1, 0)
	if got := a.Cross(b); got != P3(0, 0, 1) {
		t.Fatalf("Cross = %v", got)
	}
	if got := a.Dot(b); got != 0 {
		t.Fatalf("Dot = %v", got)
	}
	if got := P3(3, 4, 0).Norm(); got != 5 {
		t.Fatalf("Norm = %v", got)
	}
	if got := (Point3{}).Unit(); got != (Point3{}) {
		t.Fatalf("Unit of zero = %v", got)
	}
}
