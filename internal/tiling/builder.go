package tiling

import (
	"math"

	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
)

// Defaults applied to any level left unset.
var (
	DefaultTileSize      = NewSize(16, 16, 16)
	DefaultPartitionSize = NewSize(1, 1, 1)
	DefaultStageSize     = NewSize(1, 1, 1)
)

// Builder assembles a Scheme.
type Builder struct {
	tile, partition, stage Size
	maxStageElements       uint64
}

// NewBuilder returns a builder with no level set.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) WithTileSize(size Size) *Builder {
	b.tile = size
	return b
}

func (b *Builder) WithPartitionSize(size Size) *Builder {
	b.partition = size
	return b
}

func (b *Builder) WithStageSize(size Size) *Builder {
	b.stage = size
	return b
}

// WithMaxStageElements caps StageFootprint. The ceiling is opaque to this package;
// callers derive it from their shared memory or register budget. Zero disables it.
func (b *Builder) WithMaxStageElements(ceiling uint64) *Builder {
	b.maxStageElements = ceiling
	return b
}

// Build validates the sizes and returns the scheme.
func (b *Builder) Build() (Scheme, error) {
	scheme := Scheme{Tile: b.tile, Partition: b.partition, Stage: b.stage}
	if scheme.Tile.IsZero() {
		scheme.Tile = DefaultTileSize
	}
	if scheme.Partition.IsZero() {
		scheme.Partition = DefaultPartitionSize
	}
	if scheme.Stage.IsZero() {
		scheme.Stage = DefaultStageSize
	}

	if err := check(scheme, b.maxStageElements); err != nil {
		return Scheme{}, err
	}
	return scheme, nil
}

func check(scheme Scheme, maxStageElements uint64) error {
	levels := []struct {
		name string
		size Size
	}{
		{"tile", scheme.Tile},
		{"partition", scheme.Partition},
		{"stage", scheme.Stage},
	}
	for _, level := range levels {
		for _, axis := range problem.Axes {
			if level.size.Get(axis) == 0 {
				return planerr.InvalidConfig("tiling.build", "%s size along %s must be positive, got %s", level.name, axis, level.size)
			}
		}
	}

	for _, axis := range problem.Axes {
		product := uint64(scheme.Tile.Get(axis)) * uint64(scheme.Partition.Get(axis)) * uint64(scheme.Stage.Get(axis))
		if product > math.MaxUint32 {
			return planerr.InvalidConfig("tiling.build", "elements per stage along %s overflow: %d", axis, product)
		}
	}

	if maxStageElements > 0 && scheme.StageFootprint() > maxStageElements {
		return planerr.InvalidConfig("tiling.build", "stage footprint of %d elements exceeds ceiling %d", scheme.StageFootprint(), maxStageElements)
	}

	return nil
}
