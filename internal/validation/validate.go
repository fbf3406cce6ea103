// Package validation decides whether a finished blueprint may be launched.
//
// Errors are InvalidConfig when the blueprint contradicts itself or the problem,
// and Unavailable when it is consistent but the device cannot run it. Nothing is
// ever clamped or rounded to make a blueprint fit.
package validation

import (
	"github.com/fxnlabs/tileplan/internal/blueprint"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/hypercube"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/resource"
)

const op = "validation"

// Validate checks bp against the problem, the dtypes it will run with, the
// device and the resource request of its family. It has no side effects, so
// validating the same inputs again gives the same answer.
func Validate(bp blueprint.Blueprint, desc problem.Descriptor, dtypes problem.Elems, limits device.Limits, request resource.Request) error {
	if err := checkConsistency(bp, desc); err != nil {
		return err
	}
	if err := checkLaunch(bp, desc, limits, request); err != nil {
		return err
	}
	if err := checkPipelining(bp, request); err != nil {
		return err
	}
	return checkDevice(bp, dtypes, limits)
}

// ValidateAccelerated is Validate plus the requirements of families running on
// a matrix accelerator.
func ValidateAccelerated(bp blueprint.Blueprint, desc problem.Descriptor, dtypes problem.Elems, limits device.Limits, request resource.Request) error {
	if err := Validate(bp, desc, dtypes, limits, request); err != nil {
		return err
	}
	if !limits.MatrixAccelerator {
		return planerr.Unavailable(op, "device %q has no matrix accelerator", limits.Name)
	}
	if !limits.SupportsAcceleratedTile(bp.Tiling.Tile) {
		return planerr.Unavailable(op, "tile %s is not native on device %q", bp.Tiling.Tile, limits.Name)
	}
	return nil
}

// checkConsistency covers everything that does not depend on the device.
func checkConsistency(bp blueprint.Blueprint, desc problem.Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if err := bp.Tiling.Validate(); err != nil {
		return err
	}
	if err := bp.CheckModes(); err != nil {
		return err
	}
	if err := bp.Hypercube.Validate(); err != nil {
		return err
	}
	if bp.LaneWidth == 0 {
		return planerr.InvalidConfig(op, "lane width must be positive")
	}
	if bp.LhsLayout != desc.LhsLayout || bp.RhsLayout != desc.RhsLayout {
		return planerr.InvalidConfig(op, "blueprint layouts lhs=%s rhs=%s do not match problem lhs=%s rhs=%s",
			bp.LhsLayout, bp.RhsLayout, desc.LhsLayout, desc.RhsLayout)
	}

	// A blueprint may check more axes than needed, never fewer.
	m, n, k := blueprint.BoundsChecks(desc, bp.Tiling)
	for i, need := range []bool{m, n, k} {
		axis := problem.Axes[i]
		if need && !bp.CheckBounds(axis) {
			return planerr.InvalidConfig(op, "problem %s is not a multiple of %d along %s but bounds are not checked",
				desc, bp.Tiling.ElementsPerStage(axis), axis)
		}
	}
	return nil
}

func checkLaunch(bp blueprint.Blueprint, desc problem.Descriptor, limits device.Limits, request resource.Request) error {
	if limits.LaneWidth != 0 && bp.LaneWidth != limits.LaneWidth {
		return planerr.Unavailable(op, "blueprint lane width %d, device %q has %d", bp.LaneWidth, limits.Name, limits.LaneWidth)
	}

	shape, err := request.LaunchShape(bp.LaneWidth)
	if err != nil {
		return err
	}
	if shape.Y == 0 {
		return planerr.InvalidConfig(op, "request %s launches no lane-group", request)
	}
	if shape.Y > limits.MaxLaneGroupsPerWorkGroup {
		return planerr.Unavailable(op, "%d lane-groups per work-group, device %q allows %d", shape.Y, limits.Name, limits.MaxLaneGroupsPerWorkGroup)
	}
	if limits.MaxUnitsPerWorkGroup != 0 && shape.NumUnits() > uint64(limits.MaxUnitsPerWorkGroup) {
		return planerr.Unavailable(op, "%d units per work-group, device %q allows %d", shape.NumUnits(), limits.Name, limits.MaxUnitsPerWorkGroup)
	}

	plan, err := hypercube.Resolve(bp.Hypercube, bp.Tiling, desc, limits)
	if err != nil {
		return err
	}
	if !plan.Grid.Fits(limits.MaxGridDims) {
		return planerr.Unavailable(op, "grid %dx%dx%d exceeds device %q limits %dx%dx%d",
			plan.Grid.X, plan.Grid.Y, plan.Grid.Z, limits.Name,
			limits.MaxGridDims.X, limits.MaxGridDims.Y, limits.MaxGridDims.Z)
	}
	return nil
}

func checkPipelining(bp blueprint.Blueprint, request resource.Request) error {
	if bp.Pipelining == blueprint.PipelineSpecialized {
		if request.Kind() != resource.KindSpecialized {
			return planerr.InvalidConfig(op, "specialized pipelining needs a specialized request, got %s", request)
		}
		flow, err := request.FlowConfig(bp.LaneWidth)
		if err != nil {
			return err
		}
		if flow.Counts.LoadOnly == 0 {
			return planerr.InvalidConfig(op, "specialized pipelining without load-only lane-groups")
		}
		if err := flow.Validate(); err != nil {
			return err
		}
		if !bp.LoadFlows.HasLoadOnly() {
			return planerr.InvalidConfig(op, "specialized pipelining but no operand is loaded by load-only lane-groups")
		}
	}

	// The two stage buffers each take half of the partition along k.
	if bp.Pipelining == blueprint.PipelineDoubleBuffered && bp.Tiling.Partition.K%2 != 0 {
		return planerr.InvalidConfig(op, "double-buffered pipelining needs an even k partition, got %d", bp.Tiling.Partition.K)
	}

	if bp.Pipelining != blueprint.PipelineSpecialized && bp.LoadFlows.HasLoadOnly() {
		return planerr.InvalidConfig(op, "load-only flows need specialized pipelining, got %s", bp.Pipelining)
	}
	if bp.Pipelining != blueprint.PipelineSpecialized && request.Kind() == resource.KindSpecialized {
		if flow, _ := request.FlowConfig(bp.LaneWidth); flow.HasSpecialization() {
			return planerr.InvalidConfig(op, "specialized request %s with %s pipelining", request, bp.Pipelining)
		}
	}
	return nil
}

// checkDevice covers dtype support and the shared-memory budget.
func checkDevice(bp blueprint.Blueprint, dtypes problem.Elems, limits device.Limits) error {
	for _, operand := range []struct {
		name string
		d    problem.OperandDTypes
	}{{"lhs", dtypes.Lhs}, {"rhs", dtypes.Rhs}, {"acc", dtypes.Acc}} {
		for _, dt := range []problem.DType{operand.d.Global, operand.d.Stage, operand.d.Register} {
			if dt.Size() == 0 {
				return planerr.InvalidConfig(op, "%s dtype is not set", operand.name)
			}
			if !limits.Supports(dt) {
				return planerr.Unavailable(op, "%s dtype %s is not supported on device %q", operand.name, dt, limits.Name)
			}
		}
	}

	if limits.MaxSharedMemoryBytes == 0 {
		return nil
	}
	if need := SharedMemoryBytes(bp, dtypes); need > uint64(limits.MaxSharedMemoryBytes) {
		return planerr.Unavailable(op, "stage needs %d bytes of shared memory, device %q has %d", need, limits.Name, limits.MaxSharedMemoryBytes)
	}
	return nil
}

// SharedMemoryBytes is the shared memory the lhs and rhs stages of bp take,
// doubled when the pipelining keeps two stages resident.
func SharedMemoryBytes(bp blueprint.Blueprint, dtypes problem.Elems) uint64 {
	em := uint64(bp.Tiling.ElementsPerStage(problem.AxisM))
	en := uint64(bp.Tiling.ElementsPerStage(problem.AxisN))
	ek := uint64(bp.Tiling.ElementsPerStage(problem.AxisK))

	bytes := em*ek*uint64(dtypes.Lhs.Stage.Size()) + ek*en*uint64(dtypes.Rhs.Stage.Size())
	if bp.Pipelining != blueprint.PipelineNone {
		bytes *= 2
	}
	return bytes
}
