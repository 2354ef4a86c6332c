package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/signalsfoundry/sightline/core"
	"github.com/signalsfoundry/sightline/scene"
)

// Layer types accepted in scene.layers[].type.
const (
	LayerWGS84       = "wgs84"
	LayerSphere      = "sphere"
	LayerHeightfield = "heightfield"
	LayerSTL         = "stl"
)

// SceneConfig lists the occluding layers of the scene.
type SceneConfig struct {
	RequireLayers bool          `yaml:"require_layers" mapstructure:"require_layers"`
	Layers        []LayerConfig `yaml:"layers" mapstructure:"layers"`
}

// LayerConfig describes one scene layer.
type LayerConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Type string `yaml:"type" mapstructure:"type"`
	// Disabled layers are loaded but not queried.
	Disabled bool `yaml:"disabled,omitempty" mapstructure:"disabled"`
	// MinT overrides the mesh self-hit distance in metres.
	MinT float64 `yaml:"min_t,omitempty" mapstructure:"min_t"`

	Radius      float64            `yaml:"radius,omitempty" mapstructure:"radius"`
	Heightfield *HeightfieldConfig `yaml:"heightfield,omitempty" mapstructure:"heightfield"`
	STL         *STLConfig         `yaml:"stl,omitempty" mapstructure:"stl"`
}

// HeightfieldConfig is a terrain grid anchored at a geodetic origin.
type HeightfieldConfig struct {
	Origin  GeodeticConfig `yaml:"origin" mapstructure:"origin"`
	Spacing float64        `yaml:"spacing" mapstructure:"spacing"`
	Heights [][]float64    `yaml:"heights" mapstructure:"heights"`
}

// STLConfig loads a mesh file. Without Anchor the file is read as ECEF
// metres; with Anchor it is read as east/north/up metres around it.
type STLConfig struct {
	Path   string          `yaml:"path" mapstructure:"path"`
	Anchor *GeodeticConfig `yaml:"anchor,omitempty" mapstructure:"anchor"`
	Scale  float64         `yaml:"scale,omitempty" mapstructure:"scale"`
}

// Validate checks layer names and type-specific fields without loading data.
func (s SceneConfig) Validate() error {
	seen := make(map[string]bool, len(s.Layers))
	for i, l := range s.Layers {
		if l.Name == "" {
			return fmt.Errorf("%w: scene.layers[%d] needs a name", ErrInvalidConfig, i)
		}
		if seen[l.Name] {
			return fmt.Errorf("%w: duplicate scene layer %q", ErrInvalidConfig, l.Name)
		}
		seen[l.Name] = true

		switch strings.ToLower(l.Type) {
		case LayerWGS84:
		case LayerSphere:
			if !(l.Radius > 0) {
				return fmt.Errorf("%w: layer %q: sphere radius must be positive", ErrInvalidConfig, l.Name)
			}
		case LayerHeightfield:
			if l.Heightfield == nil {
				return fmt.Errorf("%w: layer %q: heightfield section is required", ErrInvalidConfig, l.Name)
			}
		case LayerSTL:
			if l.STL == nil || l.STL.Path == "" {
				return fmt.Errorf("%w: layer %q: stl.path is required", ErrInvalidConfig, l.Name)
			}
		default:
			return fmt.Errorf("%w: layer %q has unknown type %q", ErrInvalidConfig, l.Name, l.Type)
		}
	}
	return nil
}

// BuildRegistry loads every configured layer into a new registry. Relative
// STL paths resolve against baseDir.
func (s SceneConfig) BuildRegistry(baseDir string, opts ...scene.RegistryOption) (*scene.Registry, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	opts = append([]scene.RegistryOption{scene.WithRequireLayers(s.RequireLayers)}, opts...)
	reg := scene.NewRegistry(opts...)
	for _, l := range s.Layers {
		q, err := l.build(baseDir)
		if err != nil {
			return nil, err
		}
		if err := reg.Add(l.Name, q); err != nil {
			return nil, err
		}
		if l.Disabled {
			if err := reg.SetEnabled(l.Name, false); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

func (l LayerConfig) build(baseDir string) (core.SceneQuery, error) {
	var opts []scene.MeshOption
	if l.MinT > 0 {
		opts = append(opts, scene.WithMinT(l.MinT))
	}

	switch strings.ToLower(l.Type) {
	case LayerWGS84:
		return scene.NewWGS84Ellipsoid(l.Name), nil
	case LayerSphere:
		return scene.NewSphere(l.Name, l.Radius)
	case LayerHeightfield:
		hf := scene.Heightfield{
			Origin:  l.Heightfield.Origin.geodetic(),
			Spacing: l.Heightfield.Spacing,
			Heights: l.Heightfield.Heights,
		}
		return scene.NewHeightfield(l.Name, hf, opts...)
	case LayerSTL:
		path := l.STL.Path
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		var place scene.Placement = scene.PlaceECEF
		if l.STL.Anchor != nil {
			place = scene.PlaceENU(core.NewLocalFrame(l.STL.Anchor.geodetic()), l.STL.Scale)
		}
		tris, err := scene.LoadSTL(path, place)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		return scene.NewMesh(l.Name, tris, opts...)
	}
	return nil, fmt.Errorf("%w: layer %q has unknown type %q", ErrInvalidConfig, l.Name, l.Type)
}

func (g GeodeticConfig) geodetic() core.Geodetic {
	return core.Geodetic{LatDeg: g.Lat, LonDeg: g.Lon, Height: g.Height}
}
