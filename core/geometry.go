package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DegenerateEpsilon is the relative tolerance below which a sight line is
// treated as zero length. It is scaled by the magnitude of the endpoints so
// that ECEF coordinates (millions of metres) and unit-scale test scenes
// behave the same way.
const DegenerateEpsilon = 1e-12

// ErrDegenerateSegment matches any *DegenerateSegmentError via errors.Is.
var ErrDegenerateSegment = errors.New("degenerate sight line")

// ErrNonFiniteEndpoint is returned by BuildRay when either endpoint has a NaN
// or infinite coordinate.
var ErrNonFiniteEndpoint = errors.New("non-finite sight line endpoint")

// Point3 is a position or vector in a single Cartesian frame. The
// application uses ECEF metres throughout.
type Point3 struct {
	X, Y, Z float64
}

// P3 is shorthand for Point3{X: x, Y: y, Z: z}.
func P3(x, y, z float64) Point3 { return Point3{X: x, Y: y, Z: z} }

func (p Point3) vec() r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

func fromVec(v r3.Vec) Point3 {
	return Point3{X: v.X, Y: v.Y, Z: v.Z}
}

func (p Point3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", p.X, p.Y, p.Z)
}

// Add returns p + o.
func (p Point3) Add(o Point3) Point3 { return fromVec(r3.Add(p.vec(), o.vec())) }

// Sub returns p - o.
func (p Point3) Sub(o Point3) Point3 { return fromVec(r3.Sub(p.vec(), o.vec())) }

// Scale returns p multiplied by f.
func (p Point3) Scale(f float64) Point3 { return fromVec(r3.Scale(f, p.vec())) }

// Dot returns the dot product of two vectors.
func (p Point3) Dot(o Point3) float64 { return r3.Dot(p.vec(), o.vec()) }

// Cross returns the cross product p × o.
func (p Point3) Cross(o Point3) Point3 { return fromVec(r3.Cross(p.vec(), o.vec())) }

// Norm returns the Euclidean norm of the vector.
func (p Point3) Norm() float64 { return r3.Norm(p.vec()) }

// DistanceTo returns the straight-line distance between two points.
func (p Point3) DistanceTo(o Point3) float64 { return p.Sub(o).Norm() }

// Unit returns p scaled to unit length. The zero vector is returned as-is.
func (p Point3) Unit() Point3 {
	if p.Norm() == 0 {
		return p
	}
	return fromVec(r3.Unit(p.vec()))
}

// IsFinite reports whether every component is a finite number.
func (p Point3) IsFinite() bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Ray is an origin plus a unit direction.
type Ray struct {
	Origin    Point3
	Direction Point3
}

// At returns the point at parametric distance t along the ray.
func (r Ray) At(t float64) Point3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// Project returns the parametric distance of p's projection onto the ray
// and the perpendicular distance from p to the ray's line.
func (r Ray) Project(p Point3) (t, offset float64) {
	rel := p.Sub(r.Origin)
	t = rel.Dot(r.Direction)
	return t, rel.Sub(r.Direction.Scale(t)).Norm()
}

// DegenerateSegmentError reports an observer and target that coincide, so
// no direction can be derived between them.
type DegenerateSegmentError struct {
	Observer Point3
	Target   Point3
}

func (e *DegenerateSegmentError) Error() string {
	return fmt.Sprintf("degenerate sight line: observer %s and target %s coincide", e.Observer, e.Target)
}

// Is lets errors.Is(err, ErrDegenerateSegment) match.
func (e *DegenerateSegmentError) Is(target error) bool {
	return target == ErrDegenerateSegment
}

// BuildRay returns the ray from observer towards target.
func BuildRay(observer, target Point3) (Ray, error) {
	if !observer.IsFinite() || !target.IsFinite() {
		return Ray{}, fmt.Errorf("%w: observer=%s target=%s", ErrNonFiniteEndpoint, observer, target)
	}
	delta := target.Sub(observer)
	length := delta.Norm()

	scale := math.Max(1, math.Max(observer.Norm(), target.Norm()))
	if length <= DegenerateEpsilon*scale {
		return Ray{}, &DegenerateSegmentError{Observer: observer, Target: target}
	}

	return Ray{
		Origin:    observer,
		Direction: delta.Scale(1 / length),
	}, nil
}
