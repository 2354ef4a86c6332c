package scene

import "github.com/signalsfoundry/sightline/core"

// Triangle is a single scene facet.
type Triangle struct {
	V0, V1, V2 core.Point3
	bbox       AABB
}

// NewTriangle creates a triangle and caches its bounding box.
func NewTriangle(v0, v1, v2 core.Point3) Triangle {
	return Triangle{V0: v0, V1: v1, V2: v2, bbox: NewAABBFromPoints(v0, v1, v2)}
}

// BoundingBox returns the cached bounding box.
func (t Triangle) BoundingBox() AABB { return t.bbox }

// Normal returns the unit face normal (counter-clockwise winding).
func (t Triangle) Normal() core.Point3 {
	return t.V1.Sub(t.V0).Cross(t.V2.Sub(t.V0)).Unit()
}

// Area returns the triangle's area; zero for degenerate facets.
func (t Triangle) Area() float64 {
	return 0.5 * t.V1.Sub(t.V0).Cross(t.V2.Sub(t.V0)).Norm()
}

// Hit intersects ray with the triangle using the Möller–Trumbore algorithm
// and returns the parametric distance when it lies in [tMin, tMax]. Both
// faces are solid.
func (t Triangle) Hit(ray core.Ray, tMin, tMax float64) (float64, bool) {
	const epsilon = 1e-12

	edge1 := t.V1.Sub(t.V0)
	edge2 := t.V2.Sub(t.V0)

	h := ray.Direction.Cross(edge2)
	a := edge1.Dot(h)
	if a > -epsilon && a < epsilon {
		// Ray parallel to the triangle plane.
		return 0, false
	}

	f := 1 / a
	s := ray.Origin.Sub(t.V0)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, false
	}

	q := s.Cross(edge1)
	v := f * ray.Direction.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, false
	}

	dist := f * edge2.Dot(q)
	if dist < tMin || dist > tMax {
		return 0, false
	}
	return dist, true
}
