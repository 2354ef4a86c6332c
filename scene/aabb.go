package scene

import (
	"math"

	"github.com/signalsfoundry/sightline/core"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min core.Point3
	Max core.Point3
}

// NewAABBFromPoints returns the smallest box containing every point.
func NewAABBFromPoints(points ...core.Point3) AABB {
	if len(points) == 0 {
		return AABB{}
	}

	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		lo.Z = math.Min(lo.Z, p.Z)

		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
		hi.Z = math.Max(hi.Z, p.Z)
	}
	return AABB{Min: lo, Max: hi}
}

// Hit reports whether ray passes through the box for some t in [tMin, tMax]
// (slab test).
func (b AABB) Hit(ray core.Ray, tMin, tMax float64) bool {
	for axis := 0; axis < 3; axis++ {
		lo, hi := component(b.Min, axis), component(b.Max, axis)
		origin, dir := component(ray.Origin, axis), component(ray.Direction, axis)

		if math.Abs(dir) < 1e-12 {
			if origin < lo || origin > hi {
				return false
			}
			continue
		}

		inv := 1 / dir
		t1 := (lo - origin) * inv
		t2 := (hi - origin) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return false
		}
	}
	return true
}

// Union returns the box bounding both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: core.Point3{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y), Z: math.Min(b.Min.Z, o.Min.Z)},
		Max: core.Point3{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y), Z: math.Max(b.Max.Z, o.Max.Z)},
	}
}

// Expand grows the box by amount on every side.
func (b AABB) Expand(amount float64) AABB {
	d := core.P3(amount, amount, amount)
	return AABB{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Center returns the midpoint of the box.
func (b AABB) Center() core.Point3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the extent along each axis.
func (b AABB) Size() core.Point3 {
	return b.Max.Sub(b.Min)
}

// LongestAxis returns 0, 1 or 2 for the axis with the largest extent.
func (b AABB) LongestAxis() int {
	s := b.Size()
	if s.X > s.Y && s.X > s.Z {
		return 0
	}
	if s.Y > s.Z {
		return 1
	}
	return 2
}

func component(p core.Point3, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}
