package scene

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/sightline/core"
)

type fixedLayer struct {
	hit core.Intersection
	ok  bool
	err error
}

func (f fixedLayer) NearestIntersection(context.Context, core.Ray) (core.Intersection, bool, error) {
	return f.hit, f.ok, f.err
}

func TestRegistry_AddDuplicateAndRemove(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Add("terrain", fixedLayer{}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := reg.Add("terrain", fixedLayer{}); err == nil {
		t.Fatalf("expected duplicate Add to fail")
	}
	if err := reg.Add("", fixedLayer{}); err == nil {
		t.Fatalf("expected empty name to fail")
	}
	if err := reg.Remove("terrain"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if err := reg.Remove("terrain"); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("err = %v, want ErrLayerNotFound", err)
	}
}

func TestRegistry_NearestAcrossLayers(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Add("far", fixedLayer{hit: core.Intersection{Point: core.P3(8, 0, 0), T: 8}, ok: true})
	_ = reg.Add("near", fixedLayer{hit: core.Intersection{Point: core.P3(3, 0, 0), T: 3}, ok: true})
	_ = reg.Add("empty", fixedLayer{})

	ray := mustRay(t, core.P3(0, 0, 0), core.P3(10, 0, 0))
	hit, ok, err := reg.NearestIntersection(context.Background(), ray)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if hit.Layer != "near" || hit.T != 3 {
		t.Fatalf("hit = %+v, want near at T=3", hit)
	}

	if err := reg.SetEnabled("near", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	hit, _, _ = reg.NearestIntersection(context.Background(), ray)
	if hit.Layer != "far" {
		t.Fatalf("hit after disabling near = %+v, want far", hit)
	}

	if got := reg.Layers(); len(got) != 3 || got[0].Name != "empty" || got[2].Enabled {
		t.Fatalf("Layers = %+v", got)
	}
	if reg.EnabledCount() != 2 {
		t.Fatalf("EnabledCount = %d, want 2", reg.EnabledCount())
	}
}

func TestRegistry_LayerErrorFailsQuery(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("tiles not loaded")
	_ = reg.Add("ok", fixedLayer{hit: core.Intersection{T: 1}, ok: true})
	_ = reg.Add("broken", fixedLayer{err: boom})

	_, _, err := reg.NearestIntersection(context.Background(), mustRay(t, core.P3(0, 0, 0), core.P3(1, 0, 0)))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped layer error", err)
	}
}

func TestRegistry_RequireLayers(t *testing.T) {
	ray := mustRay(t, core.P3(0, 0, 0), core.P3(1, 0, 0))

	if _, ok, err := NewRegistry().NearestIntersection(context.Background(), ray); ok || err != nil {
		t.Fatalf("empty registry: ok=%v err=%v, want clear line", ok, err)
	}

	reg := NewRegistry(WithRequireLayers(true))
	if _, _, err := reg.NearestIntersection(context.Background(), ray); !errors.Is(err, core.ErrSceneNotReady) {
		t.Fatalf("err = %v, want ErrSceneNotReady", err)
	}
}

func TestRegistry_Subscribe(t *testing.T) {
	reg := NewRegistry()

	var (
		mu     sync.Mutex
		events []Event
	)
	unsubscribe := reg.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	_ = reg.Add("terrain", fixedLayer{})
	_ = reg.SetEnabled("terrain", false)
	_ = reg.SetEnabled("terrain", false) // no change, no event
	_ = reg.SetEnabled("terrain", true)
	unsubscribe()
	_ = reg.Remove("terrain")

	want := []EventType{EventLayerAdded, EventLayerDisabled, EventLayerEnabled}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want types %v", events, want)
	}
	for i, w := range want {
		if events[i].Type != w || events[i].Layer != "terrain" {
			t.Fatalf("event %d = %+v, want %v", i, events[i], w)
		}
	}
	if events[1].Enabled != 0 || events[2].Enabled != 1 {
		t.Fatalf("enabled counts = %d, %d", events[1].Enabled, events[2].Enabled)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Add("base", fixedLayer{})
	ray := mustRay(t, core.P3(0, 0, 0), core.P3(1, 0, 0))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = reg.NearestIntersection(context.Background(), ray)
			_ = reg.Layers()
		}()
		go func() {
			defer wg.Done()
			_ = reg.SetEnabled("base", i%2 == 0)
		}()
	}
	wg.Wait()
}

func TestRegistry_WithSubscriberSeesAdds(t *testing.T) {
	var events []Event
	reg := NewRegistry(WithSubscriber(func(e Event) { events = append(events, e) }), WithSubscriber(nil))

	_ = reg.Add("terrain", fixedLayer{})
	_ = reg.Add("buildings", fixedLayer{})
	_ = reg.SetEnabled("terrain", false)

	want := []Event{
		{Type: EventLayerAdded, Layer: "terrain", Enabled: 1},
		{Type: EventLayerAdded, Layer: "buildings", Enabled: 2},
		{Type: EventLayerDisabled, Layer: "terrain", Enabled: 1},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}
