// Package czml renders classified sight lines as a CZML document that Cesium
// can load directly.
package czml

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/signalsfoundry/sightline/core"
)

// RGBA colours, 0-255 per channel.
var (
	ColorObserver    = [4]int{255, 0, 0, 255}
	ColorTarget      = [4]int{0, 0, 255, 255}
	ColorVisible     = [4]int{0, 191, 255, 255} // deep sky blue
	ColorOccluded    = [4]int{255, 0, 0, 128}
	ColorOccludedDim = [4]int{255, 0, 0, 77}
)

const (
	pointPixelSize = 10
	visibleWidth   = 30
	visibleGlow    = 0.05
	occludedWidth  = 3
)

// Packet is one CZML packet. Only the properties sightline emits are modelled.
type Packet struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Version  string    `json:"version,omitempty"`
	Position *Position `json:"position,omitempty"`
	Point    *Point    `json:"point,omitempty"`
	Polyline *Polyline `json:"polyline,omitempty"`
}

// Position is a fixed Cartesian position.
type Position struct {
	Cartesian []float64 `json:"cartesian"`
}

// Color is an RGBA colour.
type Color struct {
	RGBA [4]int `json:"rgba"`
}

// Point is a point graphic.
type Point struct {
	Color     Color `json:"color"`
	PixelSize int   `json:"pixelSize"`
}

// Polyline is a polyline graphic.
type Polyline struct {
	Positions         Position  `json:"positions"`
	Width             float64   `json:"width"`
	Material          Material  `json:"material"`
	DepthFailMaterial *Material `json:"depthFailMaterial,omitempty"`
}

// Material is a polyline material; exactly one field is set.
type Material struct {
	PolylineGlow    *GlowMaterial    `json:"polylineGlow,omitempty"`
	PolylineOutline *OutlineMaterial `json:"polylineOutline,omitempty"`
}

// GlowMaterial is Cesium's polylineGlow material.
type GlowMaterial struct {
	Color     Color   `json:"color"`
	GlowPower float64 `json:"glowPower"`
}

// OutlineMaterial is Cesium's polylineOutline material.
type OutlineMaterial struct {
	Color        Color   `json:"color"`
	OutlineWidth float64 `json:"outlineWidth"`
}

// Writer collects packets for a session and implements core.Presenter.
// It is safe for concurrent use.
type Writer struct {
	mu          sync.Mutex
	name        string
	packets     []Packet
	hasObserver bool
}

// NewWriter constructs a writer whose document packet is named name.
func NewWriter(name string) *Writer {
	if name == "" {
		name = "sightline"
	}
	return &Writer{name: name}
}

// Present implements core.Presenter. It adds the observer on first use, the
// target point, and one packet per non-empty polyline of the pair.
func (w *Writer) Present(_ context.Context, pair core.PairResult) error {
	c := pair.Classification
	if c == nil {
		return fmt.Errorf("czml: %s has no classification", pair.Label)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hasObserver {
		w.packets = append(w.packets, ObserverPacket(pair.Observer))
		w.hasObserver = true
	}
	w.packets = append(w.packets, TargetPacket(pair))

	id := packetID(pair)
	if len(c.Visible.Points) > 0 {
		w.packets = append(w.packets, Packet{
			ID:       id + "-visible",
			Polyline: visiblePolyline(c.Visible.Points),
		})
	}
	if len(c.Occluded.Points) > 0 {
		w.packets = append(w.packets, Packet{
			ID:       id + "-occluded",
			Polyline: occludedPolyline(c.Occluded.Points, c.Outcome == core.OutcomeOccluded),
		})
	}
	return nil
}

// Packets returns the document: the document packet followed by everything
// presented so far.
func (w *Writer) Packets() []Packet {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Packet, 0, len(w.packets)+1)
	out = append(out, Packet{ID: "document", Name: w.name, Version: "1.0"})
	return append(out, w.packets...)
}

// WriteTo encodes the document as indented JSON.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	data, err := json.MarshalIndent(w.Packets(), "", "  ")
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	n, err := out.Write(data)
	return int64(n), err
}

// ObserverPacket draws the observer as a red point.
func ObserverPacket(p core.Point3) Packet {
	return Packet{
		ID:       "observer",
		Name:     "Observer",
		Position: &Position{Cartesian: []float64{p.X, p.Y, p.Z}},
		Point:    &Point{Color: Color{RGBA: ColorObserver}, PixelSize: pointPixelSize},
	}
}

// TargetPacket draws a target as a blue point named by its label.
func TargetPacket(pair core.PairResult) Packet {
	p := pair.Target
	return Packet{
		ID:       packetID(pair),
		Name:     pair.Label,
		Position: &Position{Cartesian: []float64{p.X, p.Y, p.Z}},
		Point:    &Point{Color: Color{RGBA: ColorTarget}, PixelSize: pointPixelSize},
	}
}

func packetID(pair core.PairResult) string {
	return fmt.Sprintf("target-%d", pair.Index+1)
}

func visiblePolyline(pts []core.Point3) *Polyline {
	return &Polyline{
		Positions: cartesian(pts),
		Width:     visibleWidth,
		Material: Material{PolylineGlow: &GlowMaterial{
			Color:     Color{RGBA: ColorVisible},
			GlowPower: visibleGlow,
		}},
	}
}

// occludedPolyline draws the red segment. Only a real obstruction gets the
// depth-fail material; the no-hit marker does not.
func occludedPolyline(pts []core.Point3, obstructed bool) *Polyline {
	pl := &Polyline{
		Positions: cartesian(pts),
		Width:     occludedWidth,
		Material:  Material{PolylineOutline: &OutlineMaterial{Color: Color{RGBA: ColorOccluded}}},
	}
	if obstructed {
		pl.DepthFailMaterial = &Material{PolylineOutline: &OutlineMaterial{Color: Color{RGBA: ColorOccludedDim}}}
	}
	return pl
}

func cartesian(pts []core.Point3) Position {
	flat := make([]float64, 0, 3*len(pts))
	for _, p := range pts {
		flat = append(flat, p.X, p.Y, p.Z)
	}
	return Position{Cartesian: flat}
}
