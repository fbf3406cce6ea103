// Package routine holds the algorithm families that turn a problem into a
// launch: each family infers (or accepts) a blueprint, sizes its resource
// request and validates the result for the device.
package routine

import (
	"fmt"

	"github.com/fxnlabs/tileplan/internal/blueprint"
)

// Family is a kernel family. The zero value is Auto, which is not a family of
// its own but a policy choosing among the others.
type Family int

const (
	Auto Family = iota
	Simple
	DoubleBuffering
	Specialized
	SimpleUnit
	DoubleUnit
	SimpleVecMat
	DoubleVecMat
)

var familyNames = map[Family]string{
	Auto:            "auto",
	Simple:          "simple",
	DoubleBuffering: "double_buffering",
	Specialized:     "specialized",
	SimpleUnit:      "simple_unit",
	DoubleUnit:      "double_unit",
	SimpleVecMat:    "simple_vecmat",
	DoubleVecMat:    "double_vecmat",
}

// Families lists every concrete family.
var Families = []Family{Simple, DoubleBuffering, Specialized, SimpleUnit, DoubleUnit, SimpleVecMat, DoubleVecMat}

// DefaultAutoChain is tried in order by Auto: the most specialized family that
// applies first, the plain unit family last.
var DefaultAutoChain = []Family{SimpleVecMat, Specialized, Simple, SimpleUnit}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", int(f))
}

func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Family) UnmarshalText(text []byte) error {
	parsed, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFamily parses a family name such as "simple_unit".
func ParseFamily(name string) (Family, error) {
	for f, n := range familyNames {
		if n == name {
			return f, nil
		}
	}
	return Auto, fmt.Errorf("unknown algorithm family %q", name)
}

type computeKind int

const (
	// Lane-groups driving the matrix accelerator.
	kindAccelerated computeKind = iota
	// Independent units, each owning a partition.
	kindUnit
	// One lane-group per output vector, reducing along k.
	kindVecMat
)

type familySpec struct {
	kind       computeKind
	pipelining blueprint.PipeliningMode
}

var familySpecs = map[Family]familySpec{
	Simple:          {kindAccelerated, blueprint.PipelineNone},
	DoubleBuffering: {kindAccelerated, blueprint.PipelineDoubleBuffered},
	Specialized:     {kindAccelerated, blueprint.PipelineSpecialized},
	SimpleUnit:      {kindUnit, blueprint.PipelineNone},
	DoubleUnit:      {kindUnit, blueprint.PipelineDoubleBuffered},
	SimpleVecMat:    {kindVecMat, blueprint.PipelineNone},
	DoubleVecMat:    {kindVecMat, blueprint.PipelineDoubleBuffered},
}

// Accelerated reports whether the family runs on a matrix accelerator.
func (f Family) Accelerated() bool {
	spec, ok := familySpecs[f]
	return ok && spec.kind == kindAccelerated
}

// Pipelining is the pipelining mode blueprints of this family use.
func (f Family) Pipelining() blueprint.PipeliningMode {
	return familySpecs[f].pipelining
}
