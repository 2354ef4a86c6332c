package core

import "math"

// WGS84 ellipsoid parameters, metres.
const (
	WGS84SemiMajorAxis = 6378137.0
	WGS84Flattening    = 1 / 298.257223563
	WGS84SemiMinorAxis = WGS84SemiMajorAxis * (1 - WGS84Flattening)

	// EarthMeanRadius is the mean Earth radius in metres, used by the
	// spherical occluder.
	EarthMeanRadius = 6371000.0
)

const degToRad = math.Pi / 180

// Geodetic is a WGS84 latitude/longitude in degrees and an ellipsoidal
// height in metres.
type Geodetic struct {
	LatDeg float64
	LonDeg float64
	Height float64
}

// GeodeticToECEF converts a WGS84 geodetic position to ECEF metres.
func GeodeticToECEF(g Geodetic) Point3 {
	lat := g.LatDeg * degToRad
	lon := g.LonDeg * degToRad
	e2 := WGS84Flattening * (2 - WGS84Flattening)

	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	n := WGS84SemiMajorAxis / math.Sqrt(1-e2*sinLat*sinLat)

	return Point3{
		X: (n + g.Height) * cosLat * cosLon,
		Y: (n + g.Height) * cosLat * sinLon,
		Z: (n*(1-e2) + g.Height) * sinLat,
	}
}

// LocalFrame is an east-north-up tangent frame anchored at a geodetic
// origin. It places locally authored geometry (terrain grids, meshes) in ECEF.
type LocalFrame struct {
	Origin Point3
	East   Point3
	North  Point3
	Up     Point3
}

// NewLocalFrame builds the ENU frame at g.
func NewLocalFrame(g Geodetic) LocalFrame {
	sinLat, cosLat := math.Sincos(g.LatDeg * degToRad)
	sinLon, cosLon := math.Sincos(g.LonDeg * degToRad)
	return LocalFrame{
		Origin: GeodeticToECEF(g),
		East:   Point3{X: -sinLon, Y: cosLon},
		North:  Point3{X: -sinLat * cosLon, Y: -sinLat * sinLon, Z: cosLat},
		Up:     Point3{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat},
	}
}

// ToECEF maps local east/north/up offsets (metres) to ECEF.
func (f LocalFrame) ToECEF(e, n, u float64) Point3 {
	return f.Origin.
		Add(f.East.Scale(e)).
		Add(f.North.Scale(n)).
		Add(f.Up.Scale(u))
}

// ENUToECEF places an east/north/up offset from origin in ECEF.
func ENUToECEF(origin Geodetic, e, n, u float64) Point3 {
	return NewLocalFrame(origin).ToECEF(e, n, u)
}

// SlantRange returns the straight-line distance between two positions.
func SlantRange(a, b Point3) float64 {
	return a.DistanceTo(b)
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target Point3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}

	// Local zenith at observer is its normalised position vector.
	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := observer.Scale(1 / r)

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	gammaDeg := math.Acos(cosGamma) * 180.0 / math.Pi

	return 90.0 - gammaDeg
}
