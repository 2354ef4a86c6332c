package scene

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/sightline/core"
)

// DefaultMinT is the smallest accepted hit distance, in metres. It keeps an
// observer placed exactly on a mesh surface from occluding itself.
const DefaultMinT = 1e-3

// ErrEmptyMesh is returned when a mesh is built without usable triangles.
var ErrEmptyMesh = errors.New("mesh has no triangles")

// Mesh is a triangle-soup occluder accelerated by a BVH.
type Mesh struct {
	name string
	bvh  *BVH
	minT float64
}

// MeshOption configures a Mesh.
type MeshOption func(*Mesh)

// WithMinT overrides DefaultMinT.
func WithMinT(t float64) MeshOption {
	return func(m *Mesh) {
		if t >= 0 {
			m.minT = t
		}
	}
}

// NewMesh builds a mesh layer. Degenerate (zero-area) and non-finite
// triangles are dropped; ErrEmptyMesh is returned when none remain.
func NewMesh(name string, tris []Triangle, opts ...MeshOption) (*Mesh, error) {
	kept := make([]Triangle, 0, len(tris))
	for _, t := range tris {
		if !t.V0.IsFinite() || !t.V1.IsFinite() || !t.V2.IsFinite() || t.Area() == 0 {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("mesh %q: %w", name, ErrEmptyMesh)
	}

	m := &Mesh{name: name, bvh: NewBVH(kept), minT: DefaultMinT}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Name returns the layer name reported on intersections.
func (m *Mesh) Name() string { return m.name }

// Len returns the number of triangles.
func (m *Mesh) Len() int { return m.bvh.Len() }

// Bounds returns the mesh bounding box.
func (m *Mesh) Bounds() AABB { return m.bvh.Bounds() }

// NearestIntersection implements core.SceneQuery.
func (m *Mesh) NearestIntersection(ctx context.Context, ray core.Ray) (core.Intersection, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Intersection{}, false, err
	}
	t, ok := m.bvh.Nearest(ray, m.minT, math.Inf(1))
	if !ok {
		return core.Intersection{}, false, nil
	}
	return core.Intersection{Point: ray.At(t), T: t, Layer: m.name}, true, nil
}
