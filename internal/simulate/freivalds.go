package simulate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/routine"
	"gonum.org/v1/gonum/mat"
)

var ErrProductMismatch = errors.New("result is not the product of its operands")

// FreivaldsVerify probabilistically checks that c = a·b in O(n²) per round
// by comparing a(b·r) with c·r for random binary vectors r. A wrong product
// survives each round with probability at most 1/2.
func FreivaldsVerify(a, b, c mat.Matrix, rounds int, tolerance float64, rng *rand.Rand) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	cr, cc := c.Dims()
	if ac != br || cr != ar || cc != bc {
		return false
	}

	r := mat.NewVecDense(bc, nil)
	var bv, abv, cv mat.VecDense
	for range rounds {
		for j := range bc {
			r.SetVec(j, float64(rng.IntN(2)))
		}
		bv.MulVec(b, r)
		abv.MulVec(a, &bv)
		cv.MulVec(c, r)
		for i := range ar {
			if math.Abs(abv.AtVec(i)-cv.AtVec(i)) > tolerance {
				return false
			}
		}
	}
	return true
}

// VerifyFreivalds is Verify for problems too large for a direct reference
// product.
func VerifyFreivalds(info *routine.LaunchInfo, desc problem.Descriptor, ops Operands, rounds int, tolerance float64, rng *rand.Rand) (Report, error) {
	got, report, err := Run(info, desc, ops)
	if err != nil {
		return report, err
	}
	for b := range got {
		if !FreivaldsVerify(ops.Lhs[b], ops.Rhs[b], got[b], rounds, tolerance, rng) {
			return report, fmt.Errorf("batch %d: %w", b, ErrProductMismatch)
		}
	}
	return report, nil
}
