// Package resource turns the number of parallel compute lanes an algorithm needs
// into a concrete work-group shape.
package resource

import (
	"encoding/json"
	"fmt"

	"github.com/fxnlabs/tileplan/internal/planerr"
	"gopkg.in/yaml.v3"
)

// Kind tags the variant held by a Request.
type Kind int

const (
	KindUnits Kind = iota
	KindLaneGroups
	KindSpecialized
)

// Request is the compute resource a work-group asks for: independent units,
// whole lane-groups, or lane-groups split into roles.
type Request struct {
	kind  Kind
	count uint32
	flow  FlowConfig
}

// Units requests n independent scalar lanes.
func Units(n uint32) Request {
	return Request{kind: KindUnits, count: n}
}

// LaneGroups requests n SIMD lane-groups.
func LaneGroups(n uint32) Request {
	return Request{kind: KindLaneGroups, count: n}
}

// Specialized requests lane-groups partitioned by cfg.
func Specialized(cfg FlowConfig) Request {
	return Request{kind: KindSpecialized, flow: cfg}
}

func (r Request) Kind() Kind {
	return r.kind
}

// Count is the unit or lane-group count; for specialized requests it is the total.
func (r Request) Count() uint32 {
	if r.kind == KindSpecialized {
		return r.flow.TotalCount()
	}
	return r.count
}

func (r Request) String() string {
	switch r.kind {
	case KindUnits:
		return fmt.Sprintf("units(%d)", r.count)
	case KindLaneGroups:
		return fmt.Sprintf("lane_groups(%d)", r.count)
	default:
		return fmt.Sprintf("specialized(main=%d,load_only=%d)", r.flow.Counts.Main, r.flow.Counts.LoadOnly)
	}
}

func (k Kind) String() string {
	switch k {
	case KindUnits:
		return "units"
	case KindLaneGroups:
		return "lane_groups"
	default:
		return "specialized"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "units":
		*k = KindUnits
	case "lane_groups":
		*k = KindLaneGroups
	case "specialized":
		*k = KindSpecialized
	default:
		return fmt.Errorf("unknown resource kind %q", text)
	}
	return nil
}

// wireRequest is the serialized form of a Request. Count is informational for
// specialized requests, whose total comes from the flow.
type wireRequest struct {
	Kind  Kind        `json:"kind" yaml:"kind"`
	Count uint32      `json:"count" yaml:"count"`
	Flow  *FlowConfig `json:"flow,omitempty" yaml:"flow,omitempty"`
}

func (r Request) wire() wireRequest {
	out := wireRequest{Kind: r.kind, Count: r.Count()}
	if r.kind == KindSpecialized {
		flow := r.flow
		out.Flow = &flow
	}
	return out
}

func (w wireRequest) request() (Request, error) {
	switch w.Kind {
	case KindUnits:
		return Units(w.Count), nil
	case KindLaneGroups:
		return LaneGroups(w.Count), nil
	default:
		if w.Flow == nil {
			return Request{}, fmt.Errorf("specialized request without a flow")
		}
		return Specialized(*w.Flow), nil
	}
}

func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	req, err := w.request()
	if err != nil {
		return err
	}
	*r = req
	return nil
}

func (r Request) MarshalYAML() (any, error) {
	return r.wire(), nil
}

func (r *Request) UnmarshalYAML(node *yaml.Node) error {
	var w wireRequest
	if err := node.Decode(&w); err != nil {
		return err
	}
	req, err := w.request()
	if err != nil {
		return err
	}
	*r = req
	return nil
}

// AsLaneGroups resolves the request into the LaneGroups variant. Units must
// divide evenly into lane-groups; the count is never rounded.
func (r Request) AsLaneGroups(laneWidth uint32) (Request, error) {
	switch r.kind {
	case KindUnits:
		if laneWidth == 0 {
			return Request{}, planerr.InvalidConfig("resource.lane_groups", "lane width must be positive")
		}
		if r.count%laneWidth != 0 {
			return Request{}, planerr.InvalidConfig("resource.lane_groups", "units not divisible by lane width: %d units, lane width %d", r.count, laneWidth)
		}
		return LaneGroups(r.count / laneWidth), nil
	case KindLaneGroups:
		return r, nil
	default:
		return LaneGroups(r.flow.TotalCount()), nil
	}
}

// NumLaneGroups is the lane-group count after resolution.
func (r Request) NumLaneGroups(laneWidth uint32) (uint32, error) {
	resolved, err := r.AsLaneGroups(laneWidth)
	if err != nil {
		return 0, err
	}
	return resolved.count, nil
}

// FlowConfig returns the role partition; plain requests are unspecialized.
func (r Request) FlowConfig(laneWidth uint32) (FlowConfig, error) {
	if r.kind == KindSpecialized {
		return r.flow, nil
	}
	n, err := r.NumLaneGroups(laneWidth)
	if err != nil {
		return FlowConfig{}, err
	}
	return Unspecialized(n), nil
}

// WorkGroupShape is the per-work-group launch dimension.
type WorkGroupShape struct {
	X uint32 `json:"x" yaml:"x"`
	Y uint32 `json:"y" yaml:"y"`
	Z uint32 `json:"z" yaml:"z"`
}

// NumUnits is X*Y*Z.
func (s WorkGroupShape) NumUnits() uint64 {
	return uint64(s.X) * uint64(s.Y) * uint64(s.Z)
}

// LaunchShape is always (laneWidth, lane-groups, 1).
func (r Request) LaunchShape(laneWidth uint32) (WorkGroupShape, error) {
	n, err := r.NumLaneGroups(laneWidth)
	if err != nil {
		return WorkGroupShape{}, err
	}
	return WorkGroupShape{X: laneWidth, Y: n, Z: 1}, nil
}
