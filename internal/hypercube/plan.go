package hypercube

import (
	"math"

	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/tiling"
)

// GridShape is the number of work-groups launched along each axis.
type GridShape struct {
	X uint32 `json:"x" yaml:"x"`
	Y uint32 `json:"y" yaml:"y"`
	Z uint32 `json:"z" yaml:"z"`
}

// Count is X*Y*Z.
func (g GridShape) Count() uint64 {
	return uint64(g.X) * uint64(g.Y) * uint64(g.Z)
}

// Fits reports whether every axis is within limits.
func (g GridShape) Fits(limits device.GridDims) bool {
	return g.X <= limits.X && g.Y <= limits.Y && g.Z <= limits.Z
}

// Plan is a CubeCountStrategy resolved against a problem and a device: every
// count is known.
type Plan struct {
	Kind    CountKind   `json:"kind"`
	Order   GlobalOrder `json:"order"`
	MBlocks uint32      `json:"mBlocks"`
	NBlocks uint32      `json:"nBlocks"`
	Batches uint32      `json:"batches"`
	Grid    GridShape   `json:"grid"`

	// Set for Sm plans only.
	NumSMs     uint32 `json:"numSms,omitempty"`
	CubesPerSM uint32 `json:"cubesPerSm,omitempty"`
	CubesFirst bool   `json:"cubesFirst,omitempty"`
}

// Resolve turns bp into a Plan for scheme, desc and limits.
//
// The Sm strategy is unavailable on devices that do not report an SM count;
// callers then fall back to FromProblem. Spread is unavailable only when the
// work cannot fit under the device grid limits at all.
func Resolve(bp Blueprint, scheme tiling.Scheme, desc problem.Descriptor, limits device.Limits) (Plan, error) {
	if err := bp.Validate(); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Kind:    bp.CubeCount.Kind,
		Order:   bp.GlobalOrder,
		MBlocks: ceilDiv(desc.M, scheme.ElementsPerStage(problem.AxisM)),
		NBlocks: ceilDiv(desc.N, scheme.ElementsPerStage(problem.AxisN)),
		Batches: desc.Batch,
	}
	total := plan.TotalWorkGroups()
	if total == 0 {
		return Plan{}, planerr.InvalidConfig("hypercube.resolve", "problem %s has no work", desc)
	}

	switch bp.CubeCount.Kind {
	case FromProblem:
		plan.Grid = GridShape{X: plan.MBlocks, Y: plan.NBlocks, Z: plan.Batches}

	case Sm:
		numSMs, ok := limits.SMCount()
		if !ok {
			return Plan{}, planerr.Unavailable("hypercube.resolve", "device %q does not report a streaming multiprocessor count", limits.Name)
		}
		used := bp.CubeCount.Allocation.UsedSMs(numSMs)
		perSM := (total + uint64(used) - 1) / uint64(used)
		if perSM > math.MaxUint32 {
			return Plan{}, planerr.Unavailable("hypercube.resolve", "%d work-groups per sm overflow the grid", perSM)
		}
		plan.NumSMs, plan.CubesPerSM, plan.CubesFirst = used, uint32(perSM), bp.CubeCount.CubesFirst
		if plan.CubesFirst {
			plan.Grid = GridShape{X: plan.CubesPerSM, Y: used, Z: 1}
		} else {
			plan.Grid = GridShape{X: used, Y: plan.CubesPerSM, Z: 1}
		}

	case Flattened:
		if total > math.MaxUint32 {
			return Plan{}, planerr.Unavailable("hypercube.resolve", "%d work-groups do not fit a flattened grid", total)
		}
		plan.Grid = GridShape{X: uint32(total), Y: 1, Z: 1}

	case Spread:
		grid, err := spread(total, limits.MaxGridDims)
		if err != nil {
			return Plan{}, err
		}
		plan.Grid = grid
	}

	return plan, nil
}

// TotalWorkGroups is the number of work-groups that own a block of output.
func (p Plan) TotalWorkGroups() uint64 {
	return uint64(p.MBlocks) * uint64(p.NBlocks) * uint64(p.Batches)
}

// GridShape is the launch grid.
func (p Plan) GridShape() GridShape {
	return p.Grid
}

// LinearIndex converts a grid position to the work index fed to the global order.
func (p Plan) LinearIndex(x, y, z uint32) uint64 {
	switch p.Kind {
	case FromProblem:
		return uint64(z)*uint64(p.MBlocks)*uint64(p.NBlocks) + uint64(x)*uint64(p.NBlocks) + uint64(y)
	case Sm:
		if p.CubesFirst {
			return uint64(x)*uint64(p.NumSMs) + uint64(y)
		}
		return uint64(y)*uint64(p.NumSMs) + uint64(x)
	default:
		return (uint64(z)*uint64(p.Grid.Y)+uint64(y))*uint64(p.Grid.X) + uint64(x)
	}
}

// Locate returns the block the work-group at (x, y, z) owns. ok is false for
// idle positions a strategy launches past the end of the work.
func (p Plan) Locate(x, y, z uint32) (Coord, bool) {
	index := p.LinearIndex(x, y, z)
	if index >= p.TotalWorkGroups() {
		return Coord{}, false
	}
	return p.Order.Map(index, p.MBlocks, p.NBlocks), true
}

// spread factors the work over all three axes, keeping the largest axis as
// small as the limits allow. z starts at the cube root of the work (raised
// when x*y cannot hold the rest), x*y is balanced over what remains with x
// filled before y, and z is then trimmed to the slices actually needed. When
// the limits force it the result degenerates to a single axis.
func spread(total uint64, limits device.GridDims) (GridShape, error) {
	plane := uint64(limits.X) * uint64(limits.Y)
	if total > plane*uint64(limits.Z) {
		return GridShape{}, planerr.Unavailable("hypercube.spread", "%d work-groups exceed grid limits %dx%dx%d", total, limits.X, limits.Y, limits.Z)
	}

	z := max(ceilDiv64(total, plane), min(uint64(limits.Z), ceilCbrt(total)))
	x, y, _ := balance(ceilDiv64(total, z), uint64(limits.X), uint64(limits.Y))
	z = ceilDiv64(total, x*y)
	return GridShape{X: uint32(x), Y: uint32(y), Z: uint32(z)}, nil
}

// balance splits n into x*y >= n with x <= maxX and y <= maxY, as square as the
// limits allow.
func balance(n, maxX, maxY uint64) (x, y uint64, ok bool) {
	if n > maxX*maxY {
		return 0, 0, false
	}
	x = min(maxX, ceilSqrt(n))
	y = ceilDiv64(n, x)
	if y > maxY {
		x = ceilDiv64(n, maxY)
		y = ceilDiv64(n, x)
	}
	return x, y, true
}

func ceilDiv(a, b uint32) uint32 {
	return uint32((uint64(a) + uint64(b) - 1) / uint64(b))
}

func ceilDiv64(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func ceilSqrt(n uint64) uint64 {
	r := uint64(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	if r*r < n {
		r++
	}
	return r
}

func ceilCbrt(n uint64) uint64 {
	r := uint64(math.Cbrt(float64(n)))
	for r*r*r > n {
		r--
	}
	for (r+1)*(r+1)*(r+1) <= n {
		r++
	}
	if r*r*r < n {
		r++
	}
	return r
}
