package routine

import (
	"math"

	"github.com/fxnlabs/tileplan/internal/blueprint"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/hypercube"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/resource"
	"github.com/fxnlabs/tileplan/internal/validation"
)

// LaunchInfo is everything needed to launch one kernel.
type LaunchInfo struct {
	Family    Family                  `json:"family"`
	Name      string                  `json:"name"`
	Blueprint blueprint.Blueprint     `json:"blueprint"`
	DTypes    problem.Elems           `json:"dtypes"`
	Request   resource.Request        `json:"request"`
	WorkGroup resource.WorkGroupShape `json:"workGroup"`
	Plan      hypercube.Plan          `json:"plan"`
	Grid      hypercube.GridShape     `json:"grid"`
}

// Routine is one algorithm family.
type Routine interface {
	Family() Family
	// Prepare returns a validated launch for desc, or a planerr.SetupError.
	Prepare(desc problem.Descriptor, settings device.Settings, strategy Strategy) (*LaunchInfo, error)
}

type routine struct {
	family Family
	spec   familySpec
}

var registry = func() map[Family]Routine {
	m := make(map[Family]Routine, len(familySpecs))
	for f, spec := range familySpecs {
		m[f] = &routine{family: f, spec: spec}
	}
	return m
}()

// Lookup returns the routine of a concrete family. Auto has none.
func Lookup(f Family) (Routine, bool) {
	r, ok := registry[f]
	return r, ok
}

func (r *routine) Family() Family {
	return r.family
}

func (r *routine) Prepare(desc problem.Descriptor, settings device.Settings, strategy Strategy) (*LaunchInfo, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	dtypes := problem.FromGlobals(desc.DTypes)
	if r.spec.kind == kindAccelerated {
		dtypes = problem.EffectiveDTypes(dtypes, settings.Limits.DTypes(), true)
	}

	bp, err := r.blueprint(desc, settings, strategy, dtypes)
	if err != nil {
		return nil, err
	}
	request, err := r.request(bp)
	if err != nil {
		return nil, err
	}

	if r.spec.kind == kindAccelerated {
		err = validation.ValidateAccelerated(bp, desc, dtypes, settings.Limits, request)
	} else {
		err = validation.Validate(bp, desc, dtypes, settings.Limits, request)
	}
	if err != nil {
		return nil, err
	}

	plan, err := hypercube.Resolve(bp.Hypercube, bp.Tiling, desc, settings.Limits)
	if err != nil {
		return nil, err
	}
	workGroup, err := request.LaunchShape(bp.LaneWidth)
	if err != nil {
		return nil, err
	}

	return &LaunchInfo{
		Family:    r.family,
		Name:      DisplayName(r.family, strategy),
		Blueprint: bp,
		DTypes:    dtypes,
		Request:   request,
		WorkGroup: workGroup,
		Plan:      plan,
		Grid:      plan.GridShape(),
	}, nil
}

func (r *routine) blueprint(desc problem.Descriptor, settings device.Settings, strategy Strategy, dtypes problem.Elems) (blueprint.Blueprint, error) {
	if strategy.IsForced() {
		bp := *strategy.Forced
		if bp.Pipelining != r.spec.pipelining {
			return blueprint.Blueprint{}, planerr.InvalidConfig("routine.prepare",
				"family %s runs %s pipelining, forced blueprint has %s", r.family, r.spec.pipelining, bp.Pipelining)
		}
		return bp, nil
	}

	switch r.spec.kind {
	case kindUnit:
		return inferUnit(desc, settings, strategy.Hints, r.spec.pipelining)
	case kindVecMat:
		return inferVecMat(desc, settings, strategy.Hints, r.spec.pipelining)
	default:
		return inferAccelerated(desc, settings, strategy.Hints, dtypes, r.spec.pipelining)
	}
}

// request sizes the work-group: one lane-group (or unit) per stage partition
// in m×n, plus loaders for specialized blueprints.
func (r *routine) request(bp blueprint.Blueprint) (resource.Request, error) {
	n := bp.Tiling.StagePartitionsMN()
	if n > math.MaxUint32 {
		return resource.Request{}, planerr.Unavailable("routine.prepare", "stage %s needs %d compute partitions per work-group", bp.Tiling.Stage, n)
	}
	switch {
	case r.spec.kind == kindUnit:
		return resource.Units(uint32(n)), nil
	case bp.Pipelining == blueprint.PipelineSpecialized:
		return resource.Specialized(resource.SpecializedFlowConfig(bp.Tiling, bp.LoadFlows)), nil
	default:
		return resource.LaneGroups(uint32(n)), nil
	}
}
