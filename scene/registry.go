package scene

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/sightline/core"
)

// ErrLayerNotFound is returned for operations on an unknown layer name.
var ErrLayerNotFound = errors.New("layer not found")

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventLayerAdded EventType = iota
	EventLayerRemoved
	EventLayerEnabled
	EventLayerDisabled
)

func (t EventType) String() string {
	switch t {
	case EventLayerAdded:
		return "added"
	case EventLayerRemoved:
		return "removed"
	case EventLayerEnabled:
		return "enabled"
	case EventLayerDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted to subscribers when the layer set changes.
type Event struct {
	Type    EventType
	Layer   string
	Enabled int // enabled layer count after the change
}

// LayerInfo describes a registered layer.
type LayerInfo struct {
	Name    string
	Enabled bool
}

type layer struct {
	query   core.SceneQuery
	enabled bool
}

// Registry is a thread-safe set of named scene layers. It implements
// core.SceneQuery by returning the nearest hit over every enabled layer.
type Registry struct {
	mu sync.RWMutex

	layers map[string]*layer
	// requireLayers makes queries fail with core.ErrSceneNotReady while no
	// layer is enabled, instead of reporting every ray as unobstructed.
	requireLayers bool

	subs   map[int]func(Event)
	nextID int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRequireLayers sets whether an empty registry is an error.
func WithRequireLayers(require bool) RegistryOption {
	return func(r *Registry) { r.requireLayers = require }
}

// WithSubscriber registers fn before any layer is added, so it observes the
// registry being populated as well as later changes.
func WithSubscriber(fn func(Event)) RegistryOption {
	return func(r *Registry) {
		if fn == nil {
			return
		}
		r.subs[r.nextID] = fn
		r.nextID++
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		layers: make(map[string]*layer),
		subs:   make(map[int]func(Event)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Add registers q under name, enabled. It returns an error if the name is
// already taken.
func (r *Registry) Add(name string, q core.SceneQuery) error {
	if name == "" {
		return errors.New("layer name is required")
	}
	if q == nil {
		return fmt.Errorf("layer %q: nil scene query", name)
	}

	r.mu.Lock()
	if _, exists := r.layers[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("layer %q already exists", name)
	}
	r.layers[name] = &layer{query: q, enabled: true}
	r.notifyLocked(Event{Type: EventLayerAdded, Layer: name})
	return nil
}

// Remove deletes a layer.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	if _, ok := r.layers[name]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	delete(r.layers, name)
	r.notifyLocked(Event{Type: EventLayerRemoved, Layer: name})
	return nil
}

// SetEnabled toggles whether a layer takes part in queries. Setting the
// current state again emits no event.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	l, ok := r.layers[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	if l.enabled == enabled {
		r.mu.Unlock()
		return nil
	}
	l.enabled = enabled
	typ := EventLayerDisabled
	if enabled {
		typ = EventLayerEnabled
	}
	r.notifyLocked(Event{Type: typ, Layer: name})
	return nil
}

// Layers returns a snapshot of the registered layers sorted by name.
func (r *Registry) Layers() []LayerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]LayerInfo, 0, len(r.layers))
	for name, l := range r.layers {
		res = append(res, LayerInfo{Name: name, Enabled: l.enabled})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// EnabledCount returns the number of enabled layers.
func (r *Registry) EnabledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabledLocked()
}

func (r *Registry) enabledLocked() int {
	n := 0
	for _, l := range r.layers {
		if l.enabled {
			n++
		}
	}
	return n
}

// NearestIntersection implements core.SceneQuery. Layer errors are joined;
// a fault in any enabled layer fails the query because the nearest hit can
// no longer be trusted.
func (r *Registry) NearestIntersection(ctx context.Context, ray core.Ray) (core.Intersection, bool, error) {
	r.mu.RLock()
	queries := make(map[string]core.SceneQuery, len(r.layers))
	for name, l := range r.layers {
		if l.enabled {
			queries[name] = l.query
		}
	}
	require := r.requireLayers
	r.mu.RUnlock()

	if len(queries) == 0 {
		if require {
			return core.Intersection{}, false, core.ErrSceneNotReady
		}
		return core.Intersection{}, false, nil
	}

	var (
		best  core.Intersection
		found bool
		errs  []error
	)
	for name, q := range queries {
		hit, ok, err := q.NearestIntersection(ctx, ray)
		if err != nil {
			errs = append(errs, fmt.Errorf("layer %q: %w", name, err))
			continue
		}
		if !ok {
			continue
		}
		if hit.Layer == "" {
			hit.Layer = name
		}
		if !found || hit.T < best.T || (hit.T == best.T && hit.Layer < best.Layer) {
			best, found = hit, true
		}
	}
	if err := errors.Join(errs...); err != nil {
		return core.Intersection{}, false, err
	}
	return best, found, nil
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// notifyLocked releases r.mu and then delivers ev, so subscribers may call
// back into the registry.
func (r *Registry) notifyLocked(ev Event) {
	ev.Enabled = r.enabledLocked()
	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
