package routine

import (
	"github.com/fxnlabs/tileplan/internal/blueprint"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/hypercube"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/resource"
	"github.com/fxnlabs/tileplan/internal/tiling"
	"github.com/fxnlabs/tileplan/internal/validation"
)

const maxStageRows = 4

// inferAccelerated sizes a blueprint for the lane-group families. The tile is
// one the accelerator runs natively; lane-groups stack along m in the stage.
func inferAccelerated(desc problem.Descriptor, settings device.Settings, hints Hints, dtypes problem.Elems, pipelining blueprint.PipeliningMode) (blueprint.Blueprint, error) {
	limits := settings.Limits
	if !limits.MatrixAccelerator {
		return blueprint.Blueprint{}, planerr.Unavailable("routine.infer", "device %q has no matrix accelerator", limits.Name)
	}
	tile := pickTile(limits.AcceleratedTiles, hints.TileSize)

	// Specialized work-groups carry one loader per compute lane-group.
	perRow := uint32(1)
	if pipelining == blueprint.PipelineSpecialized {
		perRow = 2
	}
	stageM := floorPow2(min(maxStageRows, limits.MaxLaneGroupsPerWorkGroup/perRow))
	for stageM > 1 && tile.M*stageM/2 >= desc.M {
		stageM /= 2
	}

	rows := hints.MultiRow.rows(desc.M, tile.M, stageM)
	partition := tiling.NewSize(rows, fitPow2(desc.N, tile.N, 4), partitionK(pipelining))

	var flows resource.LoadFlows
	if pipelining == blueprint.PipelineSpecialized {
		flows.Lhs = resource.LoadOnly
	}
	var swizzle blueprint.SwizzleModes
	if hints.Swizzle {
		swizzle.Lhs, swizzle.Rhs = blueprint.SwizzleB128, blueprint.SwizzleB128
	}

	for {
		scheme, err := tiling.NewBuilder().
			WithTileSize(tile).
			WithPartitionSize(partition).
			WithStageSize(tiling.NewSize(stageM, 1, 1)).
			WithMaxStageElements(hints.MaxStageElements).
			Build()
		if err != nil {
			return blueprint.Blueprint{}, err
		}

		bp := blueprint.NewBuilder(scheme, settings.LaneWidth, desc).
			Pipelining(pipelining).
			LoadFlows(flows).
			Swizzle(swizzle).
			Hypercube(inferHypercube(hints, limits, hypercube.SwizzleRowOrder(2))).
			Build()

		fits := limits.MaxSharedMemoryBytes == 0 ||
			validation.SharedMemoryBytes(bp, dtypes) <= uint64(limits.MaxSharedMemoryBytes)
		if fits || stageM == 1 {
			return bp, nil
		}
		stageM /= 2
	}
}

// inferUnit sizes a blueprint for the unit families: one lane-group's worth of
// units, up to 4 rows deep, doubled along m for small tiles. Stage m*n is
// always a multiple of the lane width.
func inferUnit(desc problem.Descriptor, settings device.Settings, hints Hints, pipelining blueprint.PipeliningMode) (blueprint.Blueprint, error) {
	rows := gcd(settings.LaneWidth, maxStageRows)
	tile := tiling.NewSize(4, 4, 4)
	partition := tiling.NewSize(1, 1, partitionK(pipelining))
	stage := tiling.NewSize(rows, settings.LaneWidth/rows, 1)

	switch hints.TileSize {
	case MinTileSize:
		stage.M *= 2
	case MaxTileSize:
		tile = tiling.NewSize(8, 8, 8)
		partition = tiling.NewSize(2, 2, partitionK(pipelining))
	}

	scheme, err := tiling.NewBuilder().
		WithTileSize(tile).
		WithPartitionSize(partition).
		WithStageSize(stage).
		WithMaxStageElements(hints.MaxStageElements).
		Build()
	if err != nil {
		return blueprint.Blueprint{}, err
	}

	return blueprint.NewBuilder(scheme, settings.LaneWidth, desc).
		Pipelining(pipelining).
		Hypercube(inferHypercube(hints, settings.Limits, hypercube.RowMajorOrder())).
		Build(), nil
}

// inferVecMat handles m=1: one lane-group reduces a lane_width*line_lhs slice
// of k for line_out output columns.
func inferVecMat(desc problem.Descriptor, settings device.Settings, hints Hints, pipelining blueprint.PipeliningMode) (blueprint.Blueprint, error) {
	if desc.M != 1 {
		return blueprint.Blueprint{}, planerr.Unavailable("routine.infer", "vec-mat needs m=1, got m=%d", desc.M)
	}
	tile := tiling.NewSize(1, settings.LineSizes.Out, settings.LaneWidth*settings.LineSizes.Lhs)

	scheme, err := tiling.NewBuilder().
		WithTileSize(tile).
		WithPartitionSize(tiling.NewSize(1, 1, partitionK(pipelining))).
		WithStageSize(tiling.NewSize(1, 1, 1)).
		WithMaxStageElements(hints.MaxStageElements).
		Build()
	if err != nil {
		return blueprint.Blueprint{}, err
	}

	return blueprint.NewBuilder(scheme, settings.LaneWidth, desc).
		PartitionBuffering(blueprint.BufferingSingle).
		Pipelining(pipelining).
		Hypercube(inferHypercube(hints, settings.Limits, hypercube.SwizzleRowOrder(2))).
		Build(), nil
}

// inferHypercube uses the hinted grid mapping if any, otherwise order with an
// SM-aware count when the device reports SMs.
func inferHypercube(hints Hints, limits device.Limits, order hypercube.GlobalOrder) hypercube.Blueprint {
	if hints.Hypercube != nil {
		return *hints.Hypercube
	}
	b := hypercube.NewBuilder().GlobalOrder(order)
	if _, ok := limits.SMCount(); ok {
		b.CubeCount(hypercube.SmCount(true, hypercube.SmAllocation{Kind: hypercube.Exact}))
	}
	return b.Build()
}

// pickTile returns the smallest or largest native tile by volume; the first
// listed wins ties. With no list the default tile is used.
func pickTile(tiles []tiling.Size, selection TileSizeSelection) tiling.Size {
	if len(tiles) == 0 {
		return tiling.DefaultTileSize
	}
	best := tiles[0]
	for _, t := range tiles[1:] {
		if selection == MinTileSize && t.MNK() < best.MNK() ||
			selection == MaxTileSize && t.MNK() > best.MNK() {
			best = t
		}
	}
	return best
}

// fitPow2 is the largest power of two up to limit such that tile*p still fits
// in size, at least 1.
func fitPow2(size, tile, limit uint32) uint32 {
	p := uint32(1)
	for p*2 <= limit && uint64(tile)*uint64(p*2) <= uint64(size) {
		p *= 2
	}
	return p
}

// partitionK gives each of the two pipelined stage buffers one tile along k.
func partitionK(pipelining blueprint.PipeliningMode) uint32 {
	if pipelining == blueprint.PipelineNone {
		return 1
	}
	return 2
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func floorPow2(n uint32) uint32 {
	p := uint32(1)
	for p*2 <= n {
		p *= 2
	}
	return p
}
