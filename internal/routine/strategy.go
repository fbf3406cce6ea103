package routine

import (
	"fmt"

	"github.com/fxnlabs/tileplan/internal/blueprint"
	"github.com/fxnlabs/tileplan/internal/hypercube"
)

// TileSizeSelection steers inference towards small or large tiles. Small tiles
// are compensated by a larger stage, large tiles by a larger partition.
type TileSizeSelection int

const (
	MinTileSize TileSizeSelection = iota
	MaxTileSize
)

func (s TileSizeSelection) String() string {
	if s == MaxTileSize {
		return "max_tile_size"
	}
	return "min_tile_size"
}

func (s TileSizeSelection) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TileSizeSelection) UnmarshalText(text []byte) error {
	switch string(text) {
	case "min_tile_size", "min", "":
		*s = MinTileSize
	case "max_tile_size", "max":
		*s = MaxTileSize
	default:
		return fmt.Errorf("unknown tile size selection %q", string(text))
	}
	return nil
}

// MultiRowKind says when a lane-group handles several tile rows.
type MultiRowKind int

const (
	MultiRowNever MultiRowKind = iota
	MultiRowAlways
	MultiRowAdaptive
)

var multiRowNames = map[MultiRowKind]string{
	MultiRowNever:    "never",
	MultiRowAlways:   "always",
	MultiRowAdaptive: "adaptive",
}

func (k MultiRowKind) String() string {
	if name, ok := multiRowNames[k]; ok {
		return name
	}
	return fmt.Sprintf("multi_row(%d)", int(k))
}

func (k MultiRowKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MultiRowKind) UnmarshalText(text []byte) error {
	for kind, name := range multiRowNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown multi-row strategy %q", string(text))
}

// MultiRowStrategy sets the m partition of accelerated families.
type MultiRowStrategy struct {
	Kind MultiRowKind `json:"kind" yaml:"kind"`
	// Rows per lane-group for MultiRowAlways.
	Rows uint32 `json:"rows,omitempty" yaml:"rows,omitempty"`
	// MinStageCount is how many stages along m two rows per lane-group must
	// still leave for MultiRowAdaptive to use them.
	MinStageCount uint32 `json:"minStageCount,omitempty" yaml:"minStageCount,omitempty"`
}

// rows returns the m partition for a problem of m rows.
func (s MultiRowStrategy) rows(m, tileM, stageM uint32) uint32 {
	switch s.Kind {
	case MultiRowAlways:
		return max(s.Rows, 1)
	case MultiRowAdaptive:
		stages := m / (tileM * 2 * stageM)
		if stages >= max(s.MinStageCount, 1) {
			return 2
		}
	}
	return 1
}

// Hints are the partial choices inference starts from.
type Hints struct {
	TileSize TileSizeSelection `json:"tileSize" yaml:"tileSize"`
	MultiRow MultiRowStrategy  `json:"multiRow" yaml:"multiRow"`
	// Swizzle enables shared-memory swizzling of the lhs and rhs stages.
	Swizzle bool `json:"swizzle,omitempty" yaml:"swizzle,omitempty"`
	// Hypercube overrides the family's grid mapping.
	Hypercube *hypercube.Blueprint `json:"hypercube,omitempty" yaml:"hypercube,omitempty"`
	// MaxStageElements caps the stage footprint; 0 means no cap.
	MaxStageElements uint64 `json:"maxStageElements,omitempty" yaml:"maxStageElements,omitempty"`
}

// Strategy is either a forced blueprint, used as is but still validated, or
// hints to infer one from.
type Strategy struct {
	Forced *blueprint.Blueprint `json:"forced,omitempty" yaml:"forced,omitempty"`
	Hints  Hints                `json:"hints" yaml:"hints"`
}

// Forced uses bp exactly.
func Forced(bp blueprint.Blueprint) Strategy {
	return Strategy{Forced: &bp}
}

// Inferred derives a blueprint from hints.
func Inferred(hints Hints) Strategy {
	return Strategy{Hints: hints}
}

func (s Strategy) IsForced() bool {
	return s.Forced != nil
}

// DisplayName names a family run with a strategy. Names are stable and are used
// as metric labels and cache keys.
func DisplayName(f Family, s Strategy) string {
	var base string
	switch f {
	case Auto:
		return "matmul_auto"
	case Simple:
		base = "matmul_simple"
	case DoubleBuffering:
		base = "matmul_double_buffering"
	case Specialized:
		base = "matmul_specialized"
	case SimpleUnit:
		base = "matmul_simple_unit"
	case DoubleUnit:
		base = "matmul_double_buffering_unit"
	case SimpleVecMat:
		base = "vecmat_simple"
	case DoubleVecMat:
		base = "vecmat_double_buffering"
	default:
		return f.String()
	}

	if s.IsForced() {
		return base + "_forced_selection"
	}
	switch f {
	case Simple:
		if s.Hints.MultiRow.Kind != MultiRowNever {
			return base + "_multirows"
		}
	case SimpleUnit, DoubleUnit:
		return base + "_" + s.Hints.TileSize.String()
	}
	return base
}
