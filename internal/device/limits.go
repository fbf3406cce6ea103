package device

import (
	"fmt"

	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/tiling"
)

// DefaultLaneWidth is used when a device does not report its lane-group width.
const DefaultLaneWidth = 32

// GridDims is a per-axis ceiling on the launch grid.
type GridDims struct {
	X uint32 `json:"x" yaml:"x"`
	Y uint32 `json:"y" yaml:"y"`
	Z uint32 `json:"z" yaml:"z"`
}

// Limits is an immutable snapshot of what a device can run. It is queried once
// before planning and never refreshed during a planning call.
type Limits struct {
	Name string `json:"name" yaml:"name"`

	// LaneWidth is the lane-group (warp, subgroup, simdgroup) width; 0 if unknown.
	LaneWidth                 uint32 `json:"laneWidth" yaml:"laneWidth"`
	MaxLaneGroupsPerWorkGroup uint32 `json:"maxLaneGroupsPerWorkGroup" yaml:"maxLaneGroupsPerWorkGroup"`
	MaxUnitsPerWorkGroup      uint32 `json:"maxUnitsPerWorkGroup" yaml:"maxUnitsPerWorkGroup"`
	// NumStreamingMultiprocessors is 0 when the device does not report it.
	NumStreamingMultiprocessors uint32   `json:"numStreamingMultiprocessors,omitempty" yaml:"numStreamingMultiprocessors,omitempty"`
	MaxGridDims                 GridDims `json:"maxGridDims" yaml:"maxGridDims"`
	MaxSharedMemoryBytes        uint32   `json:"maxSharedMemoryBytes" yaml:"maxSharedMemoryBytes"`

	SupportedDTypes   []problem.DType `json:"supportedDTypes" yaml:"supportedDTypes"`
	MatrixAccelerator bool            `json:"matrixAccelerator" yaml:"matrixAccelerator"`
	// AcceleratedTiles lists the tile shapes the matrix accelerator executes natively.
	AcceleratedTiles []tiling.Size `json:"acceleratedTiles,omitempty" yaml:"acceleratedTiles,omitempty"`
}

// SMCount returns the streaming multiprocessor count if the device reports one.
func (l Limits) SMCount() (uint32, bool) {
	return l.NumStreamingMultiprocessors, l.NumStreamingMultiprocessors > 0
}

// DTypes returns the supported dtypes as a set.
func (l Limits) DTypes() problem.DTypeSet {
	return problem.NewDTypeSet(l.SupportedDTypes...)
}

// Supports reports whether d is natively supported.
func (l Limits) Supports(d problem.DType) bool {
	for _, s := range l.SupportedDTypes {
		if s == d {
			return true
		}
	}
	return false
}

// SupportsAcceleratedTile reports whether the accelerator runs tile natively.
// An empty list means any tile shape is accepted.
func (l Limits) SupportsAcceleratedTile(tile tiling.Size) bool {
	if !l.MatrixAccelerator {
		return false
	}
	if len(l.AcceleratedTiles) == 0 {
		return true
	}
	for _, t := range l.AcceleratedTiles {
		if t == tile {
			return true
		}
	}
	return false
}

// Validate rejects profiles that could never launch anything.
func (l Limits) Validate() error {
	if l.MaxLaneGroupsPerWorkGroup == 0 {
		return fmt.Errorf("device %q: maxLaneGroupsPerWorkGroup must be positive", l.Name)
	}
	if l.MaxGridDims.X == 0 || l.MaxGridDims.Y == 0 || l.MaxGridDims.Z == 0 {
		return fmt.Errorf("device %q: every maxGridDims axis must be positive", l.Name)
	}
	if len(l.SupportedDTypes) == 0 {
		return fmt.Errorf("device %q: no supported dtypes", l.Name)
	}
	return nil
}

// LineSizes are the vectorization widths used to read and write each operand.
type LineSizes struct {
	Lhs uint32 `json:"lhs" yaml:"lhs"`
	Rhs uint32 `json:"rhs" yaml:"rhs"`
	Out uint32 `json:"out" yaml:"out"`
}

// DefaultLineSizes reads and writes four elements at a time.
var DefaultLineSizes = LineSizes{Lhs: 4, Rhs: 4, Out: 4}

// Settings is what an algorithm family needs from the device to plan a launch.
type Settings struct {
	Limits    Limits    `json:"limits"`
	LaneWidth uint32    `json:"laneWidth"`
	LineSizes LineSizes `json:"lineSizes"`
}

// NewSettings snapshots limits, falling back to DefaultLaneWidth when the
// device reports none and to DefaultLineSizes for unset line sizes.
func NewSettings(limits Limits, lineSizes LineSizes) Settings {
	laneWidth := limits.LaneWidth
	if laneWidth == 0 {
		laneWidth = DefaultLaneWidth
	}
	if lineSizes.Lhs == 0 {
		lineSizes.Lhs = DefaultLineSizes.Lhs
	}
	if lineSizes.Rhs == 0 {
		lineSizes.Rhs = DefaultLineSizes.Rhs
	}
	if lineSizes.Out == 0 {
		lineSizes.Out = DefaultLineSizes.Out
	}
	return Settings{Limits: limits, LaneWidth: laneWidth, LineSizes: lineSizes}
}
