// Package tiling holds the three-level blocking scheme of a tiled matmul.
//
// A tile is the block one native matmul primitive consumes, a partition is the set
// of tiles one lane-group handles, and a stage is the set of partitions a work-group
// keeps in shared memory at once. Along any axis a work-group therefore consumes
// tile*partition*stage problem elements.
package tiling

import (
	"fmt"

	"github.com/fxnlabs/tileplan/internal/problem"
)

// Size is a per-axis triple of positive counts.
type Size struct {
	M uint32 `json:"m" yaml:"m"`
	N uint32 `json:"n" yaml:"n"`
	K uint32 `json:"k" yaml:"k"`
}

// NewSize is shorthand for Size{m, n, k}.
func NewSize(m, n, k uint32) Size {
	return Size{M: m, N: n, K: k}
}

// Get returns the component along axis.
func (s Size) Get(axis problem.Axis) uint32 {
	switch axis {
	case problem.AxisM:
		return s.M
	case problem.AxisN:
		return s.N
	default:
		return s.K
	}
}

// IsZero reports whether the size was never set.
func (s Size) IsZero() bool {
	return s == Size{}
}

// MNK returns the product of the three components.
func (s Size) MNK() uint64 {
	return uint64(s.M) * uint64(s.N) * uint64(s.K)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%dx%d", s.M, s.N, s.K)
}

// Scheme is an immutable, validated blocking scheme. Build one with a Builder.
type Scheme struct {
	Tile      Size `json:"tile" yaml:"tile"`
	Partition Size `json:"partition" yaml:"partition"`
	Stage     Size `json:"stage" yaml:"stage"`
}

// ElementsPerTile is the tile size along axis.
func (s Scheme) ElementsPerTile(axis problem.Axis) uint32 {
	return s.Tile.Get(axis)
}

// TilesPerPartition is the partition size along axis.
func (s Scheme) TilesPerPartition(axis problem.Axis) uint32 {
	return s.Partition.Get(axis)
}

// PartitionsPerStage is the stage size along axis.
func (s Scheme) PartitionsPerStage(axis problem.Axis) uint32 {
	return s.Stage.Get(axis)
}

// TilesPerStage is partition*stage along axis.
func (s Scheme) TilesPerStage(axis problem.Axis) uint32 {
	return s.Partition.Get(axis) * s.Stage.Get(axis)
}

// ElementsPerPartition is the number of elements one lane-group covers along axis.
func (s Scheme) ElementsPerPartition(axis problem.Axis) uint32 {
	return s.Tile.Get(axis) * s.Partition.Get(axis)
}

// ElementsPerStage is the number of problem elements one work-group consumes along axis.
func (s Scheme) ElementsPerStage(axis problem.Axis) uint32 {
	return s.Tile.Get(axis) * s.Partition.Get(axis) * s.Stage.Get(axis)
}

// ElementsPerStageSize returns ElementsPerStage for every axis.
func (s Scheme) ElementsPerStageSize() Size {
	return NewSize(
		s.ElementsPerStage(problem.AxisM),
		s.ElementsPerStage(problem.AxisN),
		s.ElementsPerStage(problem.AxisK),
	)
}

// StagePartitionsMN is the number of partitions in the m×n plane of a stage,
// i.e. how many compute lane-groups (or units) a work-group needs.
func (s Scheme) StagePartitionsMN() uint64 {
	return uint64(s.Stage.M) * uint64(s.Stage.N)
}

// StageFootprint is the number of lhs plus rhs elements a stage holds.
func (s Scheme) StageFootprint() uint64 {
	em := uint64(s.ElementsPerStage(problem.AxisM))
	en := uint64(s.ElementsPerStage(problem.AxisN))
	ek := uint64(s.ElementsPerStage(problem.AxisK))
	return em*ek + ek*en
}

// Validate re-checks the invariants Build enforces; used on deserialized schemes.
func (s Scheme) Validate() error {
	return check(s, 0)
}

func (s Scheme) String() string {
	return fmt.Sprintf("tile=%s partition=%s stage=%s", s.Tile, s.Partition, s.Stage)
}
