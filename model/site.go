package model

// PositionSource indicates how a site's position is determined.
type PositionSource int

const (
	PositionSourceECEF     PositionSource = iota // fixed ECEF coordinates
	PositionSourceGeodetic                       // WGS84 latitude/longitude/height
	PositionSourceTLE                            // SGP4 propagation at the session epoch
)

func (s PositionSource) String() string {
	switch s {
	case PositionSourceGeodetic:
		return "geodetic"
	case PositionSourceTLE:
		return "tle"
	default:
		return "ecef"
	}
}

// Coordinates represents a position in ECEF metres.
type Coordinates struct {
	X float64
	Y float64
	Z float64
}

// GeodeticCoordinates is a WGS84 position in degrees and metres.
type GeodeticCoordinates struct {
	LatDeg float64
	LonDeg float64
	Height float64
}

// TLE holds the two element lines of a satellite.
type TLE struct {
	Line1 string
	Line2 string
}

// Site is a named point taking part in a sight-line analysis. Only the
// field matching Source is consulted when resolving its position.
type Site struct {
	ID   string
	Name string

	Source      PositionSource
	Coordinates Coordinates
	Geodetic    GeodeticCoordinates
	TLE         TLE

	NoradID uint32 // optional; informational when Source is PositionSourceTLE
}

// Observer is the ray origin shared by every sight line of a session.
type Observer struct {
	Site
}

// Target is one ray destination. A session holds targets in order; the
// order determines "Target i" labels.
type Target struct {
	Site
}

// ECEFTarget is shorthand for a fixed-position target.
func ECEFTarget(id string, x, y, z float64) Target {
	return Target{Site: Site{
		ID:          id,
		Source:      PositionSourceECEF,
		Coordinates: Coordinates{X: x, Y: y, Z: z},
	}}
}

// ECEFObserver is shorthand for a fixed-position observer.
func ECEFObserver(id string, x, y, z float64) Observer {
	return Observer{Site: Site{
		ID:          id,
		Source:      PositionSourceECEF,
		Coordinates: Coordinates{X: x, Y: y, Z: z},
	}}
}
