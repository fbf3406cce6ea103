package simulate

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// MismatchError reports the first value outside tolerance, or in Print mode
// every compared value.
type MismatchError struct {
	Row, Col         int
	Actual, Expected float64
	Epsilon          float64
	Dump             string
}

func (e *MismatchError) Error() string {
	if e.Dump != "" {
		return fmt.Sprintf("epsilon %g, values (row col actual expected):\n%s", e.Epsilon, e.Dump)
	}
	switch {
	case math.IsNaN(e.Expected):
		return fmt.Sprintf("at (%d, %d): expected NaN, got %g", e.Row, e.Col, e.Actual)
	case math.IsNaN(e.Actual):
		return fmt.Sprintf("at (%d, %d): expected %g, got NaN", e.Row, e.Col, e.Expected)
	}
	return fmt.Sprintf("values differ more than epsilon at (%d, %d): actual=%g expected=%g difference=%g epsilon=%g",
		e.Row, e.Col, e.Actual, e.Expected, math.Abs(e.Actual-e.Expected), e.Epsilon)
}

// AssertApprox compares actual with expected element by element. A value
// passes when |actual-expected| < max(epsilon*|expected|, epsilon) and NaN
// appears in both or neither. In Print mode nothing is checked and every value
// is returned in a MismatchError.
func AssertApprox(actual, expected mat.Matrix, epsilon float64, mode ReportMode) error {
	ar, ac := actual.Dims()
	er, ec := expected.Dims()
	if ar != er || ac != ec {
		return fmt.Errorf("shape mismatch: actual %dx%d, expected %dx%d", ar, ac, er, ec)
	}

	if mode == Print {
		var sb strings.Builder
		for i := range er {
			for j := range ec {
				fmt.Fprintf(&sb, "%d %d %g %g\n", i, j, actual.At(i, j), expected.At(i, j))
			}
		}
		return &MismatchError{Epsilon: epsilon, Dump: sb.String()}
	}

	for i := range er {
		for j := range ec {
			a, e := actual.At(i, j), expected.At(i, j)
			if math.IsNaN(a) || math.IsNaN(e) {
				if math.IsNaN(a) != math.IsNaN(e) {
					return &MismatchError{Row: i, Col: j, Actual: a, Expected: e, Epsilon: epsilon}
				}
				continue
			}
			allowed := math.Max(epsilon*math.Abs(e), epsilon)
			if math.Abs(a-e) >= allowed {
				return &MismatchError{Row: i, Col: j, Actual: a, Expected: e, Epsilon: epsilon}
			}
		}
	}
	return nil
}
