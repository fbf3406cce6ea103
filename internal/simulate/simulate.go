// Package simulate executes a launch plan on the host to check it before any
// kernel runs: every grid position is mapped through the cube-count plan and
// global order, each work-group computes its output block stage by stage, and
// the result is compared with a direct product.
package simulate

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/routine"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrOutOfBounds = errors.New("work-group reads past the problem without a bounds check")
	ErrUncovered   = errors.New("output block computed by no work-group")
	ErrOverlap     = errors.New("output block computed by more than one work-group")
)

// Operands holds one lhs (m×k) and one rhs (k×n) matrix per batch.
type Operands struct {
	Lhs []*mat.Dense
	Rhs []*mat.Dense
}

// RandomOperands fills operands for desc with values in [-1, 1).
func RandomOperands(desc problem.Descriptor, rng *rand.Rand) Operands {
	fill := func(r, c int) *mat.Dense {
		data := make([]float64, r*c)
		for i := range data {
			data[i] = rng.Float64()*2 - 1
		}
		return mat.NewDense(r, c, data)
	}
	m, n, k := int(desc.M), int(desc.N), int(desc.K)
	ops := Operands{}
	for range desc.Batch {
		ops.Lhs = append(ops.Lhs, fill(m, k))
		ops.Rhs = append(ops.Rhs, fill(k, n))
	}
	return ops
}

func (o Operands) check(desc problem.Descriptor) error {
	if len(o.Lhs) != int(desc.Batch) || len(o.Rhs) != int(desc.Batch) {
		return fmt.Errorf("operands have %d/%d batches, problem has %d", len(o.Lhs), len(o.Rhs), desc.Batch)
	}
	for b := range o.Lhs {
		if r, c := o.Lhs[b].Dims(); r != int(desc.M) || c != int(desc.K) {
			return fmt.Errorf("lhs[%d] is %dx%d, want %dx%d", b, r, c, desc.M, desc.K)
		}
		if r, c := o.Rhs[b].Dims(); r != int(desc.K) || c != int(desc.N) {
			return fmt.Errorf("rhs[%d] is %dx%d, want %dx%d", b, r, c, desc.K, desc.N)
		}
	}
	return nil
}

// Reference multiplies every batch in one call.
func Reference(ops Operands) []*mat.Dense {
	out := make([]*mat.Dense, len(ops.Lhs))
	for b := range ops.Lhs {
		var c mat.Dense
		c.Mul(ops.Lhs[b], ops.Rhs[b])
		out[b] = &c
	}
	return out
}

// Report counts what a run executed.
type Report struct {
	Launched uint64 `json:"launched"`
	Idle     uint64 `json:"idle"`
	Blocks   uint64 `json:"blocks"`
	Stages   uint64 `json:"stages"`
}

// Run executes info on the host. It fails when a work-group would read past
// the problem on an axis without bounds checks, or when the plan does not
// cover every output block exactly once.
func Run(info *routine.LaunchInfo, desc problem.Descriptor, ops Operands) ([]*mat.Dense, Report, error) {
	var report Report
	if err := ops.check(desc); err != nil {
		return nil, report, err
	}

	bp := info.Blueprint
	per := bp.Tiling.ElementsPerStageSize()
	plan := info.Plan
	m, n, k := int(desc.M), int(desc.N), int(desc.K)

	out := make([]*mat.Dense, desc.Batch)
	for b := range out {
		out[b] = mat.NewDense(m, n, nil)
	}
	covered := make([]uint8, plan.TotalWorkGroups())

	for z := range info.Grid.Z {
		for y := range info.Grid.Y {
			for x := range info.Grid.X {
				report.Launched++
				coord, ok := plan.Locate(x, y, z)
				if !ok {
					report.Idle++
					continue
				}
				block := (uint64(coord.Batch)*uint64(plan.MBlocks)+uint64(coord.MBlock))*uint64(plan.NBlocks) + uint64(coord.NBlock)
				if covered[block] > 0 {
					return nil, report, fmt.Errorf("%w: block %+v at (%d, %d, %d)", ErrOverlap, coord, x, y, z)
				}
				covered[block]++
				report.Blocks++

				r0, r1, err := span(int(coord.MBlock), int(per.M), m, bp.CheckMBounds, "m")
				if err != nil {
					return nil, report, err
				}
				c0, c1, err := span(int(coord.NBlock), int(per.N), n, bp.CheckNBounds, "n")
				if err != nil {
					return nil, report, err
				}

				lhs, rhs := ops.Lhs[coord.Batch], ops.Rhs[coord.Batch]
				acc := out[coord.Batch].Slice(r0, r1, c0, c1).(*mat.Dense)
				for s := 0; s*int(per.K) < k; s++ {
					k0, k1, err := span(s, int(per.K), k, bp.CheckKBounds, "k")
					if err != nil {
						return nil, report, err
					}
					var partial mat.Dense
					partial.Mul(lhs.Slice(r0, r1, k0, k1), rhs.Slice(k0, k1, c0, c1))
					acc.Add(acc, &partial)
					report.Stages++
				}
			}
		}
	}

	for block, count := range covered {
		if count == 0 {
			return nil, report, fmt.Errorf("%w: linear block %d", ErrUncovered, block)
		}
	}
	return out, report, nil
}

// span returns the element range of block index i along an axis of size
// limit, clamped only when bounds are checked.
func span(i, per, limit int, checked bool, axis string) (int, int, error) {
	start, end := i*per, (i+1)*per
	if end > limit {
		if !checked {
			return 0, 0, fmt.Errorf("%w: axis %s block %d ends at %d, size %d", ErrOutOfBounds, axis, i, end, limit)
		}
		end = limit
	}
	return start, end, nil
}

// Verify runs info and compares every batch with Reference.
func Verify(info *routine.LaunchInfo, desc problem.Descriptor, ops Operands, epsilon float64, mode ReportMode) (Report, error) {
	got, report, err := Run(info, desc, ops)
	if err != nil {
		return report, err
	}
	for b, want := range Reference(ops) {
		if err := AssertApprox(got[b], want, epsilon, mode); err != nil {
			return report, fmt.Errorf("batch %d: %w", b, err)
		}
	}
	return report, nil
}
