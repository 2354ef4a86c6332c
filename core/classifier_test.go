package core

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

// fakeScene answers every query from a function and counts calls.
type fakeScene struct {
	calls atomic.Int64
	fn    func(ctx context.Context, ray Ray) (Intersection, bool, error)
}

func (f *fakeScene) NearestIntersection(ctx context.Context, ray Ray) (Intersection, bool, error) {
	f.calls.Add(1)
	if f.fn == nil {
		return Intersection{}, false, nil
	}
	return f.fn(ctx, ray)
}

func hitAt(p Point3) *fakeScene {
	return &fakeScene{fn: func(context.Context, Ray) (Intersection, bool, error) {
		return Intersection{Point: p}, true, nil
	}}
}

func classify(t *testing.T, c *Classifier, obs, tgt Point3, scene SceneQuery) SegmentClassification {
	t.Helper()
	ray, err := BuildRay(obs, tgt)
	if err != nil {
		t.Fatalf("BuildRay: %v", err)
	}
	cls, err := c.Classify(context.Background(), ray, tgt, scene)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	return cls
}

func TestClassify_Obstructed(t *testing.T) {
	obs, tgt, p := P3(0, 0, 0), P3(10, 0, 0), P3(4, 0, 0)
	cls := classify(t, NewClassifier(), obs, tgt, hitAt(p))

	if cls.Outcome != OutcomeOccluded {
		t.Fatalf("outcome = %v, want occluded", cls.Outcome)
	}
	wantVisible := []Point3{obs, p}
	wantOccluded := []Point3{p, tgt}
	if !samePoints(cls.Visible.Points, wantVisible) {
		t.Fatalf("visible = %v, want %v", cls.Visible.Points, wantVisible)
	}
	if !samePoints(cls.Occluded.Points, wantOccluded) {
		t.Fatalf("occluded = %v, want %v", cls.Occluded.Points, wantOccluded)
	}
	if cls.Visible.Style != StyleVisible || cls.Occluded.Style != StyleOccluded {
		t.Fatalf("styles = %v/%v", cls.Visible.Style, cls.Occluded.Style)
	}
	if cls.Obstruction == nil || cls.Obstruction.T != 4 {
		t.Fatalf("obstruction = %+v, want T=4", cls.Obstruction)
	}
	if got := cls.VisibleFraction(); got != 0.4 {
		t.Fatalf("VisibleFraction = %v, want 0.4", got)
	}
}

func TestClassify_SplitReconstructsEndpoints(t *testing.T) {
	obs := P3(1216379.1782947562, -4736305.994587113, 4081359.5125561724)
	tgt := P3(1216333.057784025, -4736281.086708096, 4081394.1726688854)
	ray, err := BuildRay(obs, tgt)
	if err != nil {
		t.Fatalf("BuildRay: %v", err)
	}
	p := ray.At(0.3 * obs.DistanceTo(tgt))

	cls := classify(t, NewClassifier(), obs, tgt, hitAt(p))
	v, o := cls.Visible.Points, cls.Occluded.Points
	if v[0] != obs || o[len(o)-1] != tgt {
		t.Fatalf("outer endpoints = %v, %v; want %v, %v", v[0], o[len(o)-1], obs, tgt)
	}
	if v[len(v)-1] != o[0] || v[len(v)-1] != p {
		t.Fatalf("shared midpoint = %v / %v, want %v", v[len(v)-1], o[0], p)
	}
}

func TestClassify_FullyVisible(t *testing.T) {
	obs, tgt := P3(0, 0, 0), P3(10, 0, 0)
	cls := classify(t, NewClassifier(), obs, tgt, &fakeScene{})

	if cls.Outcome != OutcomeVisible {
		t.Fatalf("outcome = %v, want visible", cls.Outcome)
	}
	if !samePoints(cls.Visible.Points, []Point3{obs, tgt}) {
		t.Fatalf("visible = %v", cls.Visible.Points)
	}
	if len(cls.Occluded.Points) != 2 || cls.Occluded.Points[0] != tgt {
		t.Fatalf("occluded marker = %v, want segment starting at target", cls.Occluded.Points)
	}
	if l := cls.Occluded.Length(); l > MaxMarkerLength {
		t.Fatalf("marker length = %v, want <= %v", l, MaxMarkerLength)
	}
	if cls.Obstruction != nil {
		t.Fatalf("obstruction = %+v, want nil", cls.Obstruction)
	}
	if cls.VisibleFraction() != 1 {
		t.Fatalf("VisibleFraction = %v, want 1", cls.VisibleFraction())
	}
}

func TestClassify_OmitMarker(t *testing.T) {
	cls := classify(t, NewClassifier(WithOmitMarker(true)), P3(0, 0, 0), P3(10, 0, 0), &fakeScene{})
	if len(cls.Occluded.Points) != 0 {
		t.Fatalf("occluded = %v, want empty", cls.Occluded.Points)
	}
	if cls.Occluded.Style != StyleOccluded {
		t.Fatalf("occluded style = %v", cls.Occluded.Style)
	}
}

func TestWithMarkerOffset_Clamped(t *testing.T) {
	c := NewClassifier(WithMarkerOffset(P3(10, 0, 0)))
	cls := classify(t, c, P3(0, 0, 0), P3(10, 0, 0), &fakeScene{})
	if l := cls.Occluded.Length(); math.Abs(l-MaxMarkerLength) > 1e-12 {
		t.Fatalf("marker length = %v, want %v", l, MaxMarkerLength)
	}
}

func TestClassify_ObstructionBeyondTarget(t *testing.T) {
	obs, tgt, p := P3(0, 0, 0), P3(10, 0, 0), P3(15, 0, 0)

	cls := classify(t, NewClassifier(), obs, tgt, hitAt(p))
	if cls.Outcome != OutcomeOccluded || !cls.ObstructionBeyondTarget() {
		t.Fatalf("expected occluded outcome with obstruction beyond target, got %+v", cls)
	}
	if cls.VisibleFraction() != 1 {
		t.Fatalf("VisibleFraction = %v, want 1", cls.VisibleFraction())
	}

	clipped := classify(t, NewClassifier(WithClipToTarget(true)), obs, tgt, hitAt(p))
	if clipped.Outcome != OutcomeVisible {
		t.Fatalf("clipped outcome = %v, want visible", clipped.Outcome)
	}
}

func TestClassify_RejectsHitBehindObserver(t *testing.T) {
	ray, _ := BuildRay(P3(0, 0, 0), P3(10, 0, 0))
	_, err := NewClassifier().Classify(context.Background(), ray, P3(10, 0, 0), hitAt(P3(-2, 0, 0)))
	if !errors.Is(err, ErrVisibilityQuery) || !errors.Is(err, ErrIntersectionBehindObserver) {
		t.Fatalf("err = %v, want behind-observer visibility failure", err)
	}
}

func TestClassify_RejectsHitOffRay(t *testing.T) {
	ray, _ := BuildRay(P3(0, 0, 0), P3(10, 0, 0))
	_, err := NewClassifier().Classify(context.Background(), ray, P3(10, 0, 0), hitAt(P3(4, 1, 0)))
	if !errors.Is(err, ErrIntersectionOffRay) {
		t.Fatalf("err = %v, want off-ray failure", err)
	}
}

func TestClassify_HitAtObserver(t *testing.T) {
	obs, tgt := P3(0, 0, 0), P3(10, 0, 0)
	cls := classify(t, NewClassifier(), obs, tgt, hitAt(obs))
	if cls.Outcome != OutcomeOccluded || cls.Visible.Length() != 0 {
		t.Fatalf("expected zero-length visible part, got %+v", cls.Visible)
	}
}

func TestClassify_SceneError(t *testing.T) {
	engineErr := errors.New("pick failed")
	scene := &fakeScene{fn: func(context.Context, Ray) (Intersection, bool, error) {
		return Intersection{}, false, engineErr
	}}
	ray, _ := BuildRay(P3(0, 0, 0), P3(1, 1, 1))
	_, err := NewClassifier().Classify(context.Background(), ray, P3(1, 1, 1), scene)

	var vqf *VisibilityQueryFailure
	if !errors.As(err, &vqf) {
		t.Fatalf("err = %T %v, want *VisibilityQueryFailure", err, err)
	}
	if !errors.Is(err, engineErr) {
		t.Fatalf("failure does not wrap engine error: %v", err)
	}
	if vqf.Ray != ray {
		t.Fatalf("failure ray = %+v, want %+v", vqf.Ray, ray)
	}
}

func TestClassify_ScenePanic(t *testing.T) {
	scene := &fakeScene{fn: func(context.Context, Ray) (Intersection, bool, error) {
		panic("engine exploded")
	}}
	ray, _ := BuildRay(P3(0, 0, 0), P3(1, 0, 0))
	_, err := NewClassifier().Classify(context.Background(), ray, P3(1, 0, 0), scene)
	if !errors.Is(err, ErrVisibilityQuery) {
		t.Fatalf("err = %v, want visibility failure", err)
	}
}

func TestClassify_NilScene(t *testing.T) {
	ray, _ := BuildRay(P3(0, 0, 0), P3(1, 0, 0))
	_, err := NewClassifier().Classify(context.Background(), ray, P3(1, 0, 0), nil)
	if !errors.Is(err, ErrSceneNotReady) {
		t.Fatalf("err = %v, want ErrSceneNotReady", err)
	}
}

func TestClassify_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scene := &fakeScene{}
	ray, _ := BuildRay(P3(0, 0, 0), P3(1, 0, 0))
	_, err := NewClassifier().Classify(ctx, ray, P3(1, 0, 0), scene)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := scene.calls.Load(); n != 0 {
		t.Fatalf("scene queried %d times after cancellation", n)
	}
}

func TestSceneQueryFunc(t *testing.T) {
	var called bool
	f := SceneQueryFunc(func(context.Context, Ray) (Intersection, bool, error) {
		called = true
		return Intersection{}, false, nil
	})
	cls := classify(t, NewClassifier(), P3(0, 0, 0), P3(0, 0, 5), f)
	if !called || cls.Outcome != OutcomeVisible {
		t.Fatalf("called=%v outcome=%v", called, cls.Outcome)
	}
}

func samePoints(a, b []Point3) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
