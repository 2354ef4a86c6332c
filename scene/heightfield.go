package scene

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/sightline/core"
)

// Heightfield describes a regular terrain grid in the local east-north-up
// frame of Origin. Heights[r][c] is the height in metres above Origin of the
// sample Spacing*c metres east and Spacing*r metres north of it.
type Heightfield struct {
	Origin  core.Geodetic
	Spacing float64
	Heights [][]float64
}

// Validate checks the grid shape and values.
func (h Heightfield) Validate() error {
	if !(h.Spacing > 0) || math.IsInf(h.Spacing, 0) {
		return fmt.Errorf("heightfield: spacing must be positive, got %v", h.Spacing)
	}
	if len(h.Heights) < 2 {
		return fmt.Errorf("heightfield: need at least 2 rows, got %d", len(h.Heights))
	}
	cols := len(h.Heights[0])
	if cols < 2 {
		return fmt.Errorf("heightfield: need at least 2 columns, got %d", cols)
	}
	for r, row := range h.Heights {
		if len(row) != cols {
			return fmt.Errorf("heightfield: row %d has %d samples, want %d", r, len(row), cols)
		}
		for c, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("heightfield: non-finite height at [%d][%d]", r, c)
			}
		}
	}
	return nil
}

// Triangles converts the grid to ECEF triangles, two per cell.
func (h Heightfield) Triangles() ([]Triangle, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	frame := core.NewLocalFrame(h.Origin)
	rows, cols := len(h.Heights), len(h.Heights[0])

	vertex := func(r, c int) core.Point3 {
		return frame.ToECEF(float64(c)*h.Spacing, float64(r)*h.Spacing, h.Heights[r][c])
	}

	tris := make([]Triangle, 0, 2*(rows-1)*(cols-1))
	for r := 0; r < rows-1; r++ {
		for c := 0; c < cols-1; c++ {
			sw, se := vertex(r, c), vertex(r, c+1)
			nw, ne := vertex(r+1, c), vertex(r+1, c+1)
			tris = append(tris, NewTriangle(sw, se, ne), NewTriangle(sw, ne, nw))
		}
	}
	return tris, nil
}

// NewHeightfield builds a terrain mesh layer from a grid.
func NewHeightfield(name string, h Heightfield, opts ...MeshOption) (*Mesh, error) {
	tris, err := h.Triangles()
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", name, err)
	}
	return NewMesh(name, tris, opts...)
}
