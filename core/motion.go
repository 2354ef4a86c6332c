package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/sightline/model"
)

// ErrInvalidSite is returned when a site's position cannot be resolved.
var ErrInvalidSite = errors.New("invalid site")

// PositionModel resolves a site's ECEF position at an instant.
type PositionModel interface {
	PositionAt(epoch time.Time) (Point3, error)
}

// StaticPositionModel always returns the same position.
type StaticPositionModel struct {
	Position Point3
}

// PositionAt returns the fixed position.
func (m StaticPositionModel) PositionAt(time.Time) (Point3, error) {
	return m.Position, nil
}

// OrbitalSGP4PositionModel uses a TLE and SGP4 to place a satellite.
type OrbitalSGP4PositionModel struct {
	sat satellite.Satellite
}

// NewOrbitalModelFromTLE constructs an orbital model from TLE lines.
func NewOrbitalModelFromTLE(line1, line2 string) (*OrbitalSGP4PositionModel, error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if len(line1) < 69 || len(line2) < 69 || line1[0] != '1' || line2[0] != '2' {
		return nil, fmt.Errorf("%w: malformed TLE", ErrInvalidSite)
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &OrbitalSGP4PositionModel{sat: sat}, nil
}

// PositionAt propagates the satellite to epoch and returns ECEF metres.
// go-satellite works in kilometres.
func (m *OrbitalSGP4PositionModel) PositionAt(epoch time.Time) (Point3, error) {
	epoch = epoch.UTC()
	year, month, day := epoch.Date()
	hour, min, sec := epoch.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	p := Point3{X: posECEF.X * kmToM, Y: posECEF.Y * kmToM, Z: posECEF.Z * kmToM}
	if !p.IsFinite() || (p.X == 0 && p.Y == 0 && p.Z == 0) {
		return Point3{}, fmt.Errorf("%w: SGP4 propagation failed at %s", ErrInvalidSite, epoch.Format(time.RFC3339))
	}
	return p, nil
}

// NewPositionModel chooses a PositionModel for the site.
func NewPositionModel(s model.Site) (PositionModel, error) {
	switch s.Source {
	case model.PositionSourceECEF:
		p := Point3{X: s.Coordinates.X, Y: s.Coordinates.Y, Z: s.Coordinates.Z}
		if !p.IsFinite() {
			return nil, fmt.Errorf("%w: %q has non-finite ECEF coordinates", ErrInvalidSite, s.ID)
		}
		return StaticPositionModel{Position: p}, nil
	case model.PositionSourceGeodetic:
		g := s.Geodetic
		if !(Point3{X: g.LatDeg, Y: g.LonDeg, Z: g.Height}).IsFinite() {
			return nil, fmt.Errorf("%w: %q has non-finite geodetic coordinates", ErrInvalidSite, s.ID)
		}
		if math.Abs(g.LatDeg) > 90 || math.Abs(g.LonDeg) > 360 {
			return nil, fmt.Errorf("%w: %q geodetic position out of range", ErrInvalidSite, s.ID)
		}
		return StaticPositionModel{Position: GeodeticToECEF(Geodetic{LatDeg: g.LatDeg, LonDeg: g.LonDeg, Height: g.Height})}, nil
	case model.PositionSourceTLE:
		m, err := NewOrbitalModelFromTLE(s.TLE.Line1, s.TLE.Line2)
		if err != nil {
			return nil, fmt.Errorf("site %q: %w", s.ID, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q has unknown position source %d", ErrInvalidSite, s.ID, s.Source)
	}
}

// ResolvePosition returns the site's ECEF position at epoch.
func ResolvePosition(s model.Site, epoch time.Time) (Point3, error) {
	m, err := NewPositionModel(s)
	if err != nil {
		return Point3{}, err
	}
	p, err := m.PositionAt(epoch)
	if err != nil {
		return Point3{}, fmt.Errorf("site %q: %w", s.ID, err)
	}
	return p, nil
}
