// Package problem describes a batched matrix multiplication: operand shapes,
// memory layouts and element types.
package problem

import (
	"fmt"

	"github.com/fxnlabs/tileplan/internal/planerr"
)

// Layout is the memory layout of a matrix operand.
type Layout int

const (
	RowMajor Layout = iota
	ColMajor
)

func (l Layout) String() string {
	if l == ColMajor {
		return "col_major"
	}
	return "row_major"
}

func (l Layout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Layout) UnmarshalText(text []byte) error {
	switch string(text) {
	case "row_major", "":
		*l = RowMajor
	case "col_major":
		*l = ColMajor
	default:
		return fmt.Errorf("unknown layout %q", string(text))
	}
	return nil
}

// Axis names one of the three problem dimensions.
type Axis int

const (
	AxisM Axis = iota
	AxisN
	AxisK
)

// Axes lists m, n and k in order.
var Axes = []Axis{AxisM, AxisN, AxisK}

func (a Axis) String() string {
	switch a {
	case AxisM:
		return "m"
	case AxisN:
		return "n"
	case AxisK:
		return "k"
	}
	return "?"
}

// Descriptor is an immutable description of C[b] = A[b] (m×k) · B[b] (k×n).
// The output is always row-major.
type Descriptor struct {
	M     uint32 `json:"m" yaml:"m"`
	N     uint32 `json:"n" yaml:"n"`
	K     uint32 `json:"k" yaml:"k"`
	Batch uint32 `json:"batch" yaml:"batch"`

	LhsLayout Layout       `json:"lhsLayout" yaml:"lhsLayout"`
	RhsLayout Layout       `json:"rhsLayout" yaml:"rhsLayout"`
	DTypes    GlobalDTypes `json:"dtypes" yaml:"dtypes"`
}

// Size returns the problem size along an axis.
func (d Descriptor) Size(axis Axis) uint32 {
	switch axis {
	case AxisM:
		return d.M
	case AxisN:
		return d.N
	default:
		return d.K
	}
}

// Validate rejects empty problems and unset dtypes.
func (d Descriptor) Validate() error {
	for _, axis := range Axes {
		if d.Size(axis) == 0 {
			return planerr.InvalidConfig("problem.validate", "dimension %s must be positive", axis)
		}
	}
	if d.Batch == 0 {
		return planerr.InvalidConfig("problem.validate", "batch must be positive")
	}
	for _, dt := range []DType{d.DTypes.Lhs, d.DTypes.Rhs, d.DTypes.Out, d.DTypes.Acc} {
		if dt.Size() == 0 {
			return planerr.InvalidConfig("problem.validate", "operand dtype is not set")
		}
	}
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%dx%dx%d batch=%d lhs=%s rhs=%s", d.M, d.N, d.K, d.Batch, d.DTypes.Lhs, d.DTypes.Rhs)
}
