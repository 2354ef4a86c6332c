package rpc

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/signalsfoundry/sightline/core"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Point is an ECEF position on the wire.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (p Point) toCore() core.Point3 { return core.P3(p.X, p.Y, p.Z) }

func pointFrom(p core.Point3) Point { return Point{X: p.X, Y: p.Y, Z: p.Z} }

// TargetSpec is one target of a ClassifySession request.
type TargetSpec struct {
	ID   string  `json:"id,omitempty" yaml:"id,omitempty"`
	Name string  `json:"name,omitempty" yaml:"name,omitempty"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Z    float64 `json:"z" yaml:"z"`
}

// SessionRequest is the ClassifySession request body.
type SessionRequest struct {
	Observer     *Point       `json:"observer" yaml:"observer"`
	Targets      []TargetSpec `json:"targets" yaml:"targets"`
	Workers      int          `json:"workers,omitempty" yaml:"workers,omitempty"`
	OmitMarker   bool         `json:"omit_marker,omitempty" yaml:"omit_marker,omitempty"`
	ClipToTarget bool         `json:"clip_to_target,omitempty" yaml:"clip_to_target,omitempty"`
}

// Obstruction is the first scene hit of an occluded pair.
type Obstruction struct {
	Point `yaml:",inline"`
	T     float64 `json:"t" yaml:"t"`
	Layer string  `json:"layer,omitempty" yaml:"layer,omitempty"`
}

// PairMessage is one pair of a ClassifySession response.
type PairMessage struct {
	Index           int          `json:"index" yaml:"index"`
	Label           string       `json:"label" yaml:"label"`
	TargetID        string       `json:"target_id,omitempty" yaml:"target_id,omitempty"`
	TargetName      string       `json:"target_name,omitempty" yaml:"target_name,omitempty"`
	Status          string       `json:"status" yaml:"status"`
	Outcome         string       `json:"outcome" yaml:"outcome"`
	Visible         []Point      `json:"visible,omitempty" yaml:"visible,omitempty"`
	Occluded        []Point      `json:"occluded,omitempty" yaml:"occluded,omitempty"`
	Obstruction     *Obstruction `json:"obstruction,omitempty" yaml:"obstruction,omitempty"`
	VisibleFraction float64      `json:"visible_fraction" yaml:"visible_fraction"`
	SlantRange      float64      `json:"slant_range" yaml:"slant_range"`
	ElevationDeg    float64      `json:"elevation_deg" yaml:"elevation_deg"`
	Error           string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// SummaryMessage mirrors core.Summary.
type SummaryMessage struct {
	Total                int     `json:"total" yaml:"total"`
	Visible              int     `json:"visible" yaml:"visible"`
	Occluded             int     `json:"occluded" yaml:"occluded"`
	Degenerate           int     `json:"degenerate" yaml:"degenerate"`
	Failed               int     `json:"failed" yaml:"failed"`
	MeanVisibleFraction  float64 `json:"mean_visible_fraction" yaml:"mean_visible_fraction"`
	MeanObstructionRange float64 `json:"mean_obstruction_range" yaml:"mean_obstruction_range"`
}

// SessionResponse is the ClassifySession response body.
type SessionResponse struct {
	SessionID string         `json:"session_id" yaml:"session_id"`
	Pairs     []PairMessage  `json:"pairs" yaml:"pairs"`
	Summary   SummaryMessage `json:"summary" yaml:"summary"`
}

// Validate checks the request shape.
func (r SessionRequest) Validate(maxTargets int) error {
	if r.Observer == nil {
		return fmt.Errorf("%w: observer is required", ErrInvalidRequest)
	}
	if !r.Observer.toCore().IsFinite() {
		return fmt.Errorf("%w: observer has non-finite coordinates", ErrInvalidRequest)
	}
	if len(r.Targets) == 0 {
		return fmt.Errorf("%w: at least one target is required", ErrInvalidRequest)
	}
	if maxTargets > 0 && len(r.Targets) > maxTargets {
		return fmt.Errorf("%w: %d targets exceeds the limit of %d", ErrInvalidRequest, len(r.Targets), maxTargets)
	}
	if r.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidRequest)
	}
	for i, t := range r.Targets {
		if math.IsNaN(t.X+t.Y+t.Z) || math.IsInf(t.X+t.Y+t.Z, 0) {
			return fmt.Errorf("%w: target %d has non-finite coordinates", ErrInvalidRequest, i)
		}
	}
	return nil
}

// sessionTargets converts wire targets to core targets.
func (r SessionRequest) sessionTargets() []core.SessionTarget {
	out := make([]core.SessionTarget, len(r.Targets))
	for i, t := range r.Targets {
		out[i] = core.SessionTarget{ID: t.ID, Name: t.Name, Position: core.P3(t.X, t.Y, t.Z)}
	}
	return out
}

// NewSessionResponse converts a session result to its wire form.
func NewSessionResponse(res *core.SessionResult) SessionResponse {
	out := SessionResponse{
		SessionID: res.SessionID,
		Pairs:     make([]PairMessage, len(res.Pairs)),
		Summary: SummaryMessage{
			Total:                res.Summary.Total,
			Visible:              res.Summary.Visible,
			Occluded:             res.Summary.Occluded,
			Degenerate:           res.Summary.Degenerate,
			Failed:               res.Summary.Failed,
			MeanVisibleFraction:  res.Summary.MeanVisibleFraction,
			MeanObstructionRange: res.Summary.MeanObstructionRange,
		},
	}
	for i, p := range res.Pairs {
		out.Pairs[i] = newPairMessage(p)
	}
	return out
}

func newPairMessage(p core.PairResult) PairMessage {
	msg := PairMessage{
		Index:        p.Index,
		Label:        p.Label,
		TargetID:     p.TargetID,
		TargetName:   p.TargetName,
		Status:       p.Status.String(),
		Outcome:      p.Outcome(),
		SlantRange:   p.SlantRange,
		ElevationDeg: p.ElevationDeg,
	}
	if p.Err != nil {
		msg.Error = p.Err.Error()
	}
	if c := p.Classification; c != nil {
		msg.Visible = points(c.Visible.Points)
		msg.Occluded = points(c.Occluded.Points)
		msg.VisibleFraction = c.VisibleFraction()
		if c.Obstruction != nil {
			msg.Obstruction = &Obstruction{Point: pointFrom(c.Obstruction.Point), T: c.Obstruction.T, Layer: c.Obstruction.Layer}
		}
	}
	return msg
}

func points(in []core.Point3) []Point {
	out := make([]Point, len(in))
	for i, p := range in {
		out[i] = pointFrom(p)
	}
	return out
}

// toStruct and fromStruct bridge Go structs and structpb via JSON; the
// service has no generated message types.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// EncodeRequest converts a request to its wire form.
func EncodeRequest(r SessionRequest) (*structpb.Struct, error) { return toStruct(r) }

// DecodeRequest parses a wire request.
func DecodeRequest(s *structpb.Struct) (SessionRequest, error) {
	var r SessionRequest
	if err := fromStruct(s, &r); err != nil {
		return SessionRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return r, nil
}

// EncodeResponse converts a response to its wire form.
func EncodeResponse(r SessionResponse) (*structpb.Struct, error) { return toStruct(r) }

// DecodeResponse parses a wire response.
func DecodeResponse(s *structpb.Struct) (SessionResponse, error) {
	var r SessionResponse
	if err := fromStruct(s, &r); err != nil {
		return SessionResponse{}, err
	}
	return r, nil
}
