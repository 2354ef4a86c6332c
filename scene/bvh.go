package scene

import (
	"math"

	"github.com/signalsfoundry/sightline/core"
)

// leafThreshold is the largest triangle count stored in a single leaf.
const leafThreshold = 8

// bvhNode is a node of the bounding volume hierarchy. Leaves carry
// triangles; internal nodes carry both children.
type bvhNode struct {
	box         AABB
	left, right *bvhNode
	tris        []Triangle
}

// BVH accelerates nearest-hit queries over a fixed triangle set. It is
// immutable after construction and safe for concurrent queries.
type BVH struct {
	root  *bvhNode
	count int
}

// NewBVH builds a hierarchy over tris using median splits on the longest
// axis. The input slice is copied.
func NewBVH(tris []Triangle) *BVH {
	if len(tris) == 0 {
		return &BVH{}
	}
	cp := make([]Triangle, len(tris))
	copy(cp, tris)
	return &BVH{root: buildBVH(cp), count: len(cp)}
}

func buildBVH(tris []Triangle) *bvhNode {
	box := tris[0].BoundingBox()
	for _, t := range tris[1:] {
		box = box.Union(t.BoundingBox())
	}
	// Pad so that hits on facet edges survive the slab test's rounding.
	box = box.Expand(1e-9 * math.Max(1, box.Center().Norm()))

	if len(tris) <= leafThreshold {
		return &bvhNode{box: box, tris: tris}
	}

	axis := box.LongestAxis()
	lo, hi := component(box.Min, axis), component(box.Max, axis)
	if hi <= lo {
		return &bvhNode{box: box, tris: tris}
	}
	split := (lo + hi) * 0.5

	var left, right []Triangle
	for _, t := range tris {
		if component(t.BoundingBox().Center(), axis) < split {
			left = append(left, t)
		} else {
			right = append(right, t)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &bvhNode{box: box, tris: tris}
	}

	return &bvhNode{
		box:   box,
		left:  buildBVH(left),
		right: buildBVH(right),
	}
}

// Len returns the number of triangles in the hierarchy.
func (b *BVH) Len() int { return b.count }

// Bounds returns the bounding box of every triangle.
func (b *BVH) Bounds() AABB {
	if b.root == nil {
		return AABB{}
	}
	return b.root.box
}

// Nearest returns the smallest parametric distance in [tMin, tMax] at which
// ray hits a triangle.
func (b *BVH) Nearest(ray core.Ray, tMin, tMax float64) (float64, bool) {
	if b.root == nil {
		return 0, false
	}
	return b.hitNode(b.root, ray, tMin, tMax)
}

func (b *BVH) hitNode(node *bvhNode, ray core.Ray, tMin, tMax float64) (float64, bool) {
	if !node.box.Hit(ray, tMin, tMax) {
		return 0, false
	}

	closest := tMax
	hit := false

	if node.tris != nil {
		for _, t := range node.tris {
			if d, ok := t.Hit(ray, tMin, closest); ok {
				hit = true
				closest = d
			}
		}
		return closest, hit
	}

	if d, ok := b.hitNode(node.left, ray, tMin, closest); ok {
		hit = true
		closest = d
	}
	if d, ok := b.hitNode(node.right, ray, tMin, closest); ok {
		hit = true
		closest = d
	}
	return closest, hit
}

// depth returns the height of the tree; used by tests.
func (b *BVH) depth() int {
	var walk func(n *bvhNode) int
	walk = func(n *bvhNode) int {
		if n == nil {
			return 0
		}
		return 1 + max(walk(n.left), walk(n.right))
	}
	return walk(b.root)
}
