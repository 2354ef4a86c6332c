package scene

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/sightline/core"
)

// SurfaceTolerance is how far, in metres, a ray may travel inside the
// ellipsoid before it counts as occluded. It lets observers standing on the
// surface see along the horizon.
const SurfaceTolerance = 1.0

// Ellipsoid is an Earth occluder: an ellipsoid of revolution centred on the
// ECEF origin.
type Ellipsoid struct {
	name       string
	equatorial float64
	polar      float64
}

// NewWGS84Ellipsoid returns the WGS84 reference ellipsoid.
func NewWGS84Ellipsoid(name string) *Ellipsoid {
	return &Ellipsoid{name: name, equatorial: core.WGS84SemiMajorAxis, polar: core.WGS84SemiMinorAxis}
}

// NewSphere returns a spherical occluder of the given radius in metres.
func NewSphere(name string, radius float64) (*Ellipsoid, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("sphere %q: invalid radius %v", name, radius)
	}
	return &Ellipsoid{name: name, equatorial: radius, polar: radius}, nil
}

// Name returns the layer name reported on intersections.
func (e *Ellipsoid) Name() string { return e.name }

// NearestIntersection implements core.SceneQuery. The ray is scaled into
// unit-sphere space and the quadratic solved there; the roots keep their
// metre parametrisation because the direction is unit length in ECEF.
func (e *Ellipsoid) NearestIntersection(ctx context.Context, ray core.Ray) (core.Intersection, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Intersection{}, false, err
	}

	o := core.P3(ray.Origin.X/e.equatorial, ray.Origin.Y/e.equatorial, ray.Origin.Z/e.polar)
	d := core.P3(ray.Direction.X/e.equatorial, ray.Direction.Y/e.equatorial, ray.Direction.Z/e.polar)

	a := d.Dot(d)
	b := 2 * o.Dot(d)
	c := o.Dot(o) - 1

	disc := b*b - 4*a*c
	if disc < 0 {
		return core.Intersection{}, false, nil
	}
	sq := math.Sqrt(disc)
	// Numerically stable roots.
	var q float64
	if b < 0 {
		q = -0.5 * (b - sq)
	} else {
		q = -0.5 * (b + sq)
	}
	t1, t2 := q/a, c/q
	if q == 0 {
		t1, t2 = 0, 0
	}
	if t1 > t2 {
		t1, t2 = t2, t1
	}

	switch {
	case t2 <= SurfaceTolerance:
		// Body behind the observer, or only grazed at the origin.
		return core.Intersection{}, false, nil
	case t1 >= SurfaceTolerance:
		return core.Intersection{Point: ray.At(t1), T: t1, Layer: e.name}, true, nil
	case t2-math.Max(t1, 0) <= SurfaceTolerance:
		return core.Intersection{}, false, nil
	default:
		t := math.Max(t1, 0)
		return core.Intersection{Point: ray.At(t), T: t, Layer: e.name}, true, nil
	}
}
