package core

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrVisibilityQuery matches any *VisibilityQueryFailure via errors.Is.
	ErrVisibilityQuery = errors.New("visibility query failed")
	// ErrSceneNotReady is returned by scene queries that cannot answer yet.
	ErrSceneNotReady = errors.New("scene not ready")
	// ErrIntersectionBehindObserver flags a scene hit at negative ray distance.
	ErrIntersectionBehindObserver = errors.New("intersection behind observer")
	// ErrIntersectionOffRay flags a scene hit that does not lie on the ray.
	ErrIntersectionOffRay = errors.New("intersection not on ray")
)

// DefaultMarkerOffset is the displacement of the occluded marker segment
// emitted for fully visible sight lines.
var DefaultMarkerOffset = Point3{X: 0.1, Y: 0.1, Z: 0.1}

// MaxMarkerLength bounds the length of the occluded marker segment.
const MaxMarkerLength = 0.2

// defaultOnRayTolerance is relative to the distance of the hit from the
// ray origin.
const defaultOnRayTolerance = 1e-6

// Intersection is the nearest scene hit along a ray.
type Intersection struct {
	Point Point3
	// T is the parametric distance from the ray origin.
	T float64
	// Layer names the scene layer that produced the hit, if known.
	Layer string
}

// SceneQuery answers nearest-intersection queries against scene geometry.
// Implementations must be safe for concurrent use. A miss is reported as
// ok == false with a nil error; err is reserved for engine faults.
type SceneQuery interface {
	NearestIntersection(ctx context.Context, ray Ray) (hit Intersection, ok bool, err error)
}

// SceneQueryFunc adapts a function to SceneQuery.
type SceneQueryFunc func(ctx context.Context, ray Ray) (Intersection, bool, error)

// NearestIntersection calls f.
func (f SceneQueryFunc) NearestIntersection(ctx context.Context, ray Ray) (Intersection, bool, error) {
	return f(ctx, ray)
}

// VisibilityQueryFailure wraps a scene query that could not complete for a
// single observer–target pair.
type VisibilityQueryFailure struct {
	Ray Ray
	Err error
}

func (e *VisibilityQueryFailure) Error() string {
	return fmt.Sprintf("visibility query failed: %v", e.Err)
}

func (e *VisibilityQueryFailure) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrVisibilityQuery) match.
func (e *VisibilityQueryFailure) Is(target error) bool {
	return target == ErrVisibilityQuery
}

// Style tags a polyline for presentation.
type Style int

const (
	StyleVisible Style = iota
	StyleOccluded
)

func (s Style) String() string {
	switch s {
	case StyleVisible:
		return "visible"
	case StyleOccluded:
		return "occluded"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

// Polyline is an ordered sequence of points with a style tag.
type Polyline struct {
	Points []Point3
	Style  Style
}

// Length returns the summed length of the polyline's segments.
func (p Polyline) Length() float64 {
	total := 0.0
	for i := 1; i < len(p.Points); i++ {
		total += p.Points[i].DistanceTo(p.Points[i-1])
	}
	return total
}

// Outcome is the terminal state of a successful classification.
type Outcome int

const (
	// OutcomeVisible: no obstruction along the ray.
	OutcomeVisible Outcome = iota
	// OutcomeOccluded: the sight line is split at the first obstruction.
	OutcomeOccluded
)

func (o Outcome) String() string {
	if o == OutcomeOccluded {
		return "occluded"
	}
	return "visible"
}

// SegmentClassification is the visible/occluded decomposition of one
// sight line. Visible and Occluded are always both populated unless the
// classifier was built with WithOmitMarker, in which case a fully visible
// line carries an empty Occluded polyline.
type SegmentClassification struct {
	Observer Point3
	Target   Point3
	Outcome  Outcome
	Visible  Polyline
	Occluded Polyline
	// Obstruction is the first scene hit; nil when Outcome is OutcomeVisible.
	Obstruction *Intersection
}

// VisibleFraction returns the share of the observer–target distance that is
// unobstructed, in [0, 1].
func (c SegmentClassification) VisibleFraction() float64 {
	if c.Obstruction == nil {
		return 1
	}
	total := c.Observer.DistanceTo(c.Target)
	if total == 0 {
		return 0
	}
	return math.Min(1, c.Observer.DistanceTo(c.Obstruction.Point)/total)
}

// ObstructionBeyondTarget reports whether the first obstruction lies past
// the target along the ray. The occluded polyline then runs backwards from
// the obstruction to the target.
func (c SegmentClassification) ObstructionBeyondTarget() bool {
	if c.Obstruction == nil {
		return false
	}
	return c.Observer.DistanceTo(c.Obstruction.Point) > c.Observer.DistanceTo(c.Target)
}

// Classifier turns one scene query into a SegmentClassification. It is
// stateless per call and safe for concurrent use.
type Classifier struct {
	markerOffset   Point3
	omitMarker     bool
	clipToTarget   bool
	onRayTolerance float64
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithMarkerOffset sets the displacement of the occluded marker used for
// fully visible lines. Offsets longer than MaxMarkerLength are scaled down.
func WithMarkerOffset(offset Point3) ClassifierOption {
	return func(c *Classifier) {
		if n := offset.Norm(); n > MaxMarkerLength {
			offset = offset.Scale(MaxMarkerLength / n)
		}
		c.markerOffset = offset
	}
}

// WithOmitMarker leaves the occluded polyline empty for fully visible lines
// instead of emitting a marker segment.
func WithOmitMarker(omit bool) ClassifierOption {
	return func(c *Classifier) { c.omitMarker = omit }
}

// WithClipToTarget ignores obstructions that lie beyond the target.
func WithClipToTarget(clip bool) ClassifierOption {
	return func(c *Classifier) { c.clipToTarget = clip }
}

// WithOnRayTolerance sets the relative tolerance used to validate that scene
// hits lie on the queried ray.
func WithOnRayTolerance(tol float64) ClassifierOption {
	return func(c *Classifier) {
		if tol > 0 {
			c.onRayTolerance = tol
		}
	}
}

// NewClassifier constructs a Classifier.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		markerOffset:   DefaultMarkerOffset,
		onRayTolerance: defaultOnRayTolerance,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify queries scene along ray and splits the sight line to target into
// visible and occluded parts. Scene faults, cancellation and invalid hits are
// returned as *VisibilityQueryFailure.
func (c *Classifier) Classify(ctx context.Context, ray Ray, target Point3, scene SceneQuery) (SegmentClassification, error) {
	if scene == nil {
		return SegmentClassification{}, &VisibilityQueryFailure{Ray: ray, Err: ErrSceneNotReady}
	}
	if err := ctx.Err(); err != nil {
		return SegmentClassification{}, &VisibilityQueryFailure{Ray: ray, Err: err}
	}

	hit, ok, err := queryScene(ctx, scene, ray)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return SegmentClassification{}, &VisibilityQueryFailure{Ray: ray, Err: err}
	}

	observer := ray.Origin
	if ok {
		t, offset := ray.Project(hit.Point)
		tol := c.onRayTolerance * math.Max(1, hit.Point.DistanceTo(observer))
		if t < -tol {
			return SegmentClassification{}, &VisibilityQueryFailure{
				Ray: ray,
				Err: fmt.Errorf("%w: t=%g at %s", ErrIntersectionBehindObserver, t, hit.Point),
			}
		}
		if offset > tol {
			return SegmentClassification{}, &VisibilityQueryFailure{
				Ray: ray,
				Err: fmt.Errorf("%w: %g from ray at %s", ErrIntersectionOffRay, offset, hit.Point),
			}
		}
		if t < 0 {
			t = 0
		}
		hit.T = t
		if c.clipToTarget && t > observer.DistanceTo(target)+tol {
			ok = false
		}
	}

	if ok {
		obstruction := hit
		return SegmentClassification{
			Observer:    observer,
			Target:      target,
			Outcome:     OutcomeOccluded,
			Visible:     Polyline{Points: []Point3{observer, hit.Point}, Style: StyleVisible},
			Occluded:    Polyline{Points: []Point3{hit.Point, target}, Style: StyleOccluded},
			Obstruction: &obstruction,
		}, nil
	}

	occluded := Polyline{Style: StyleOccluded}
	if !c.omitMarker {
		occluded.Points = []Point3{target, target.Add(c.markerOffset)}
	}
	return SegmentClassification{
		Observer: observer,
		Target:   target,
		Outcome:  OutcomeVisible,
		Visible:  Polyline{Points: []Point3{observer, target}, Style: StyleVisible},
		Occluded: occluded,
	}, nil
}

// queryScene invokes the scene, converting panics into errors.
func queryScene(ctx context.Context, scene SceneQuery, ray Ray) (hit Intersection, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			hit, ok = Intersection{}, false
			err = fmt.Errorf("scene query panicked: %v", r)
		}
	}()
	return scene.NearestIntersection(ctx, ray)
}
