package resource

import (
	"fmt"
	"math"

	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/tiling"
)

// Role is what a lane-group does inside a role-specialized work-group.
type Role int

const (
	RoleMain Role = iota // loads and computes
	RoleLoadOnly
)

// PartitionRule decides which lane-group indices get which role.
type PartitionRule int

const (
	// MainFlowFirst gives indices [0, main) to compute and the rest to loaders.
	MainFlowFirst PartitionRule = iota
	// LoadOnlyFirst gives indices [0, loadOnly) to loaders and the rest to compute.
	LoadOnlyFirst
)

func (r PartitionRule) String() string {
	if r == LoadOnlyFirst {
		return "load_only_first"
	}
	return "main_flow_first"
}

func (r PartitionRule) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *PartitionRule) UnmarshalText(text []byte) error {
	switch string(text) {
	case "main_flow_first", "":
		*r = MainFlowFirst
	case "load_only_first":
		*r = LoadOnlyFirst
	default:
		return fmt.Errorf("unknown partition rule %q", string(text))
	}
	return nil
}

// Counts is how many lane-groups hold each role.
type Counts struct {
	Main     uint32 `json:"main" yaml:"main"`
	LoadOnly uint32 `json:"loadOnly" yaml:"loadOnly"`
}

// Total is main plus load-only.
func (c Counts) Total() uint32 {
	return c.Main + c.LoadOnly
}

// FlowConfig partitions the lane-groups of a work-group into disjoint roles.
type FlowConfig struct {
	Counts Counts        `json:"counts" yaml:"counts"`
	Rule   PartitionRule `json:"rule" yaml:"rule"`
}

// Unspecialized puts every lane-group in the main role.
func Unspecialized(laneGroups uint32) FlowConfig {
	return FlowConfig{Counts: Counts{Main: laneGroups}}
}

// TotalCount is the number of lane-groups of the work-group.
func (f FlowConfig) TotalCount() uint32 {
	return f.Counts.Total()
}

// HasSpecialization reports whether some lane-groups only load.
func (f FlowConfig) HasSpecialization() bool {
	return f.Counts.LoadOnly > 0
}

// Role returns the role of lane-group index i.
func (f FlowConfig) Role(i uint32) Role {
	switch f.Rule {
	case LoadOnlyFirst:
		if i < f.Counts.LoadOnly {
			return RoleLoadOnly
		}
		return RoleMain
	default:
		if i < f.Counts.Main {
			return RoleMain
		}
		return RoleLoadOnly
	}
}

// Partition applies the rule to every index of the work-group and counts roles.
func (f FlowConfig) Partition() Counts {
	var c Counts
	for i := range f.TotalCount() {
		if f.Role(i) == RoleMain {
			c.Main++
		} else {
			c.LoadOnly++
		}
	}
	return c
}

// Validate checks that a specialized config has both roles populated and that
// its rule accounts for exactly the declared counts.
func (f FlowConfig) Validate() error {
	if f.TotalCount() == 0 {
		return planerr.InvalidConfig("resource.flow", "work-group needs at least one lane-group")
	}
	if f.Counts.Main == 0 {
		return planerr.InvalidConfig("resource.flow", "no compute lane-group in flow config %+v", f.Counts)
	}
	if f.Rule != MainFlowFirst && f.Rule != LoadOnlyFirst {
		return planerr.InvalidConfig("resource.flow", "unknown partition rule %d", int(f.Rule))
	}
	if got := f.Partition(); got != f.Counts {
		return planerr.InvalidConfig("resource.flow", "partition rule %s yields %+v, declared %+v", f.Rule, got, f.Counts)
	}
	return nil
}

// InputLoadFlow says which role loads an operand into the stage.
type InputLoadFlow int

const (
	MainOnly InputLoadFlow = iota
	LoadOnly
)

func (f InputLoadFlow) String() string {
	if f == LoadOnly {
		return "load_only"
	}
	return "main_only"
}

func (f InputLoadFlow) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *InputLoadFlow) UnmarshalText(text []byte) error {
	switch string(text) {
	case "main_only", "":
		*f = MainOnly
	case "load_only":
		*f = LoadOnly
	default:
		return fmt.Errorf("unknown load flow %q", string(text))
	}
	return nil
}

// LoadFlows sets the load flow of lhs and rhs.
type LoadFlows struct {
	Lhs InputLoadFlow `json:"lhs" yaml:"lhs"`
	Rhs InputLoadFlow `json:"rhs" yaml:"rhs"`
}

// HasLoadOnly reports whether any operand is loaded by dedicated lane-groups.
func (l LoadFlows) HasLoadOnly() bool {
	return l.Lhs == LoadOnly || l.Rhs == LoadOnly
}

// SpecializedFlowConfig derives role counts from a blocking scheme: one compute
// lane-group per stage partition in m×n, and as many loaders as the widest
// load-only operand has partitions (stage.m rows for lhs, stage.n columns for rhs).
// Counts saturate at math.MaxUint32.
func SpecializedFlowConfig(scheme tiling.Scheme, flows LoadFlows) FlowConfig {
	cfg := Unspecialized(uint32(min(scheme.StagePartitionsMN(), math.MaxUint32)))
	if flows.Lhs == LoadOnly {
		cfg.Counts.LoadOnly = max(cfg.Counts.LoadOnly, scheme.Stage.M)
	}
	if flows.Rhs == LoadOnly {
		cfg.Counts.LoadOnly = max(cfg.Counts.LoadOnly, scheme.Stage.N)
	}
	return cfg
}
