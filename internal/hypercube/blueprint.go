// Package hypercube decides how logical blocks of work map onto the launch grid:
// which block each work-group owns (the global order) and how many work-groups are
// launched in which shape (the cube count strategy).
//
// A Blueprint is chosen before the problem is known; Resolve turns it into a Plan
// where every count is fixed.
package hypercube

// Blueprint is the grid-mapping part of an execution blueprint.
type Blueprint struct {
	GlobalOrder GlobalOrder       `json:"globalOrder" yaml:"globalOrder"`
	CubeCount   CubeCountStrategy `json:"cubeCount" yaml:"cubeCount"`
}

// Validate checks both halves.
func (b Blueprint) Validate() error {
	if err := b.GlobalOrder.Validate(); err != nil {
		return err
	}
	return b.CubeCount.Validate()
}

// Builder creates a Blueprint, defaulting to row-major order and one
// work-group per block.
type Builder struct {
	order GlobalOrder
	count CubeCountStrategy
}

// NewBuilder starts from the defaults.
func NewBuilder() *Builder {
	return &Builder{order: RowMajorOrder(), count: FromProblemCount()}
}

// GlobalOrder sets the global order.
func (b *Builder) GlobalOrder(order GlobalOrder) *Builder {
	b.order = order
	return b
}

// CubeCount sets the cube count strategy.
func (b *Builder) CubeCount(strategy CubeCountStrategy) *Builder {
	b.count = strategy
	return b
}

// Build returns the blueprint.
func (b *Builder) Build() Blueprint {
	return Blueprint{GlobalOrder: b.order, CubeCount: b.count}
}
