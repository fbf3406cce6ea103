package hypercube

import (
	"fmt"

	"github.com/fxnlabs/tileplan/internal/planerr"
)

// CountKind enumerates cube count strategies.
type CountKind int

const (
	// FromProblem launches one work-group per block: (m blocks, n blocks, batch).
	FromProblem CountKind = iota
	// Sm launches (SMs, work-groups per SM, 1), or the transpose when CubesFirst.
	Sm
	// Flattened launches (total, 1, 1).
	Flattened
	// Spread factors the total across three axes under the device grid limits.
	Spread
)

var countNames = map[CountKind]string{
	FromProblem: "from_problem",
	Sm:          "sm",
	Flattened:   "flattened",
	Spread:      "spread",
}

func (k CountKind) String() string {
	if name, ok := countNames[k]; ok {
		return name
	}
	return fmt.Sprintf("count(%d)", int(k))
}

func (k CountKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *CountKind) UnmarshalText(text []byte) error {
	for kind, name := range countNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown cube count strategy %q", string(text))
}

// AllocationKind says how many SMs an Sm strategy targets.
type AllocationKind int

const (
	// Exact spreads work over every SM.
	Exact AllocationKind = iota
	// Ratio uses num/den of the SMs, leaving room for concurrent kernels.
	Ratio
)

func (k AllocationKind) String() string {
	if k == Ratio {
		return "ratio"
	}
	return "exact"
}

func (k AllocationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *AllocationKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "exact", "":
		*k = Exact
	case "ratio":
		*k = Ratio
	default:
		return fmt.Errorf("unknown sm allocation %q", string(text))
	}
	return nil
}

// SmAllocation is the occupancy target of an Sm strategy.
type SmAllocation struct {
	Kind AllocationKind `json:"kind" yaml:"kind"`
	Num  uint32         `json:"num,omitempty" yaml:"num,omitempty"`
	Den  uint32         `json:"den,omitempty" yaml:"den,omitempty"`
}

// UsedSMs returns how many of numSMs the allocation targets, at least one.
func (a SmAllocation) UsedSMs(numSMs uint32) uint32 {
	if a.Kind != Ratio || a.Den == 0 {
		return numSMs
	}
	used := uint32(uint64(numSMs) * uint64(a.Num) / uint64(a.Den))
	return max(min(used, numSMs), 1)
}

// CubeCountStrategy chooses how many work-groups to launch and in which shape,
// before the problem size is known.
type CubeCountStrategy struct {
	Kind       CountKind    `json:"kind" yaml:"kind"`
	CubesFirst bool         `json:"cubesFirst,omitempty" yaml:"cubesFirst,omitempty"`
	Allocation SmAllocation `json:"allocation,omitempty" yaml:"allocation,omitempty"`
}

func FromProblemCount() CubeCountStrategy { return CubeCountStrategy{Kind: FromProblem} }

func FlattenedCount() CubeCountStrategy { return CubeCountStrategy{Kind: Flattened} }

func SpreadCount() CubeCountStrategy { return CubeCountStrategy{Kind: Spread} }

// SmCount targets the SM count reported by the device.
func SmCount(cubesFirst bool, allocation SmAllocation) CubeCountStrategy {
	return CubeCountStrategy{Kind: Sm, CubesFirst: cubesFirst, Allocation: allocation}
}

// Validate rejects unknown kinds and degenerate ratios.
func (s CubeCountStrategy) Validate() error {
	if _, ok := countNames[s.Kind]; !ok {
		return planerr.InvalidConfig("hypercube.count", "unknown cube count strategy %d", int(s.Kind))
	}
	if s.Kind == Sm && s.Allocation.Kind == Ratio {
		if s.Allocation.Num == 0 || s.Allocation.Den == 0 || s.Allocation.Num > s.Allocation.Den {
			return planerr.InvalidConfig("hypercube.count", "sm ratio %d/%d must be in (0, 1]", s.Allocation.Num, s.Allocation.Den)
		}
	}
	return nil
}

func (s CubeCountStrategy) String() string {
	if s.Kind == Sm {
		return fmt.Sprintf("sm(cubes_first=%t,%s)", s.CubesFirst, s.Allocation.Kind)
	}
	return s.Kind.String()
}
