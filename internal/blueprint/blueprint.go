// Package blueprint assembles an execution blueprint: the blocking scheme, the
// grid mapping, the pipelining choice and the per-axis bounds checks of one
// kernel launch.
//
// Building a blueprint is pure data assembly. Nothing here queries a device and
// nothing here decides whether the device can run the result; see package
// validation for that.
package blueprint

import (
	"encoding/json"

	"github.com/fxnlabs/tileplan/internal/hypercube"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/resource"
	"github.com/fxnlabs/tileplan/internal/tiling"
)

// Blueprint is immutable once built. It holds only comparable values, so two
// blueprints are interchangeable exactly when they are ==.
type Blueprint struct {
	LaneWidth          uint32              `json:"laneWidth" yaml:"laneWidth"`
	Tiling             tiling.Scheme       `json:"tiling" yaml:"tiling"`
	Swizzle            SwizzleModes        `json:"swizzle" yaml:"swizzle"`
	PartitionBuffering PartitionBuffering  `json:"partitionBuffering" yaml:"partitionBuffering"`
	Pipelining         PipeliningMode      `json:"pipelining" yaml:"pipelining"`
	LoadFlows          resource.LoadFlows  `json:"loadFlows" yaml:"loadFlows"`
	LoadingPrecompute  LoadingPrecompute   `json:"loadingPrecompute" yaml:"loadingPrecompute"`
	Hypercube          hypercube.Blueprint `json:"hypercube" yaml:"hypercube"`
	LhsLayout          problem.Layout      `json:"lhsLayout" yaml:"lhsLayout"`
	RhsLayout          problem.Layout      `json:"rhsLayout" yaml:"rhsLayout"`
	CheckMBounds       bool                `json:"checkMBounds" yaml:"checkMBounds"`
	CheckNBounds       bool                `json:"checkNBounds" yaml:"checkNBounds"`
	CheckKBounds       bool                `json:"checkKBounds" yaml:"checkKBounds"`
}

// BoundsChecks returns the bounds check flags a problem needs under scheme: an
// axis is checked iff the problem size is not a multiple of what one work-group
// consumes along it.
func BoundsChecks(desc problem.Descriptor, scheme tiling.Scheme) (m, n, k bool) {
	check := func(axis problem.Axis) bool {
		per := scheme.ElementsPerStage(axis)
		return per == 0 || desc.Size(axis)%per != 0
	}
	return check(problem.AxisM), check(problem.AxisN), check(problem.AxisK)
}

// CheckBounds returns the flag for one axis.
func (b Blueprint) CheckBounds(axis problem.Axis) bool {
	switch axis {
	case problem.AxisM:
		return b.CheckMBounds
	case problem.AxisN:
		return b.CheckNBounds
	default:
		return b.CheckKBounds
	}
}

// OperandLayout is how a kernel reads or writes one operand: its memory layout
// and whether rows and columns need bounds checks.
type OperandLayout struct {
	Layout    problem.Layout `json:"layout"`
	CheckRows bool           `json:"checkRows"`
	CheckCols bool           `json:"checkCols"`
}

// LhsConfig covers the m×k lhs operand.
func (b Blueprint) LhsConfig() OperandLayout {
	return OperandLayout{Layout: b.LhsLayout, CheckRows: b.CheckMBounds, CheckCols: b.CheckKBounds}
}

// RhsConfig covers the k×n rhs operand.
func (b Blueprint) RhsConfig() OperandLayout {
	return OperandLayout{Layout: b.RhsLayout, CheckRows: b.CheckKBounds, CheckCols: b.CheckNBounds}
}

// OutConfig covers the m×n output, always row-major.
func (b Blueprint) OutConfig() OperandLayout {
	return OperandLayout{Layout: problem.RowMajor, CheckRows: b.CheckMBounds, CheckCols: b.CheckNBounds}
}

// Key is a stable string identifying the blueprint, suitable as a cache key.
func (b Blueprint) Key() string {
	// Every field marshals to a scalar or a name; Marshal cannot fail.
	data, _ := json.Marshal(b)
	return string(data)
}

// CheckModes rejects enum values outside their closed sets. Deserialized
// blueprints can carry any integer.
func (b Blueprint) CheckModes() error {
	const op = "blueprint.modes"
	for _, s := range []SwizzleMode{b.Swizzle.Lhs, b.Swizzle.Rhs, b.Swizzle.Acc, b.Swizzle.Out} {
		if !known(swizzleNames, s) {
			return planerr.InvalidConfig(op, "unknown swizzle mode %d", int(s))
		}
	}
	if !known(pipeliningNames, b.Pipelining) {
		return planerr.InvalidConfig(op, "unknown pipelining mode %d", int(b.Pipelining))
	}
	if !known(bufferingNames, b.PartitionBuffering) {
		return planerr.InvalidConfig(op, "unknown partition buffering %d", int(b.PartitionBuffering))
	}
	if !known(precomputeNames, b.LoadingPrecompute) {
		return planerr.InvalidConfig(op, "unknown loading precompute %d", int(b.LoadingPrecompute))
	}
	return nil
}

// Builder assembles a Blueprint for one problem. The bounds flags and operand
// layouts come from the problem; everything else defaults to the simplest mode.
type Builder struct {
	bp Blueprint
}

// NewBuilder starts a blueprint for desc under scheme.
func NewBuilder(scheme tiling.Scheme, laneWidth uint32, desc problem.Descriptor) *Builder {
	m, n, k := BoundsChecks(desc, scheme)
	return &Builder{bp: Blueprint{
		LaneWidth:    laneWidth,
		Tiling:       scheme,
		Hypercube:    hypercube.NewBuilder().Build(),
		LhsLayout:    desc.LhsLayout,
		RhsLayout:    desc.RhsLayout,
		CheckMBounds: m,
		CheckNBounds: n,
		CheckKBounds: k,
	}}
}

func (b *Builder) Swizzle(modes SwizzleModes) *Builder {
	b.bp.Swizzle = modes
	return b
}

func (b *Builder) PartitionBuffering(buffering PartitionBuffering) *Builder {
	b.bp.PartitionBuffering = buffering
	return b
}

func (b *Builder) Pipelining(mode PipeliningMode) *Builder {
	b.bp.Pipelining = mode
	return b
}

// LoadFlows marks lhs and/or rhs as loaded by dedicated lane-groups. Only
// meaningful with PipelineSpecialized.
func (b *Builder) LoadFlows(flows resource.LoadFlows) *Builder {
	b.bp.LoadFlows = flows
	return b
}

func (b *Builder) LoadingPrecompute(precompute LoadingPrecompute) *Builder {
	b.bp.LoadingPrecompute = precompute
	return b
}

func (b *Builder) Hypercube(hc hypercube.Blueprint) *Builder {
	b.bp.Hypercube = hc
	return b
}

// Build returns the blueprint.
func (b *Builder) Build() Blueprint {
	return b.bp
}

// Plan is the one-call form of the Builder.
func Plan(desc problem.Descriptor, scheme tiling.Scheme, laneWidth uint32, hc hypercube.Blueprint, pipelining PipeliningMode, swizzle SwizzleModes) Blueprint {
	return NewBuilder(scheme, laneWidth, desc).
		Hypercube(hc).
		Pipelining(pipelining).
		Swizzle(swizzle).
		Build()
}
