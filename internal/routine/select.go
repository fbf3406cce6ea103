package routine

import (
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
)

// Selection picks a family explicitly, or leaves Family at Auto to try Chain
// (DefaultAutoChain when empty) in order.
type Selection struct {
	Family   Family   `json:"family" yaml:"family"`
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Chain    []Family `json:"chain,omitempty" yaml:"chain,omitempty"`
}

// Attempt records one family Auto tried and why it was skipped.
type Attempt struct {
	Family Family
	Err    error
}

// Select prepares a launch for sel. Attempts lists the families Auto skipped
// because they were unavailable, in order.
//
// Auto moves on to the next family only on an Unavailable error; any other
// error means the request itself is wrong and is returned at once.
func Select(desc problem.Descriptor, settings device.Settings, sel Selection) (*LaunchInfo, []Attempt, error) {
	if sel.Family != Auto {
		r, ok := Lookup(sel.Family)
		if !ok {
			return nil, nil, planerr.InvalidConfig("routine.select", "unknown family %s", sel.Family)
		}
		info, err := r.Prepare(desc, settings, sel.Strategy)
		return info, nil, err
	}

	if sel.Strategy.IsForced() {
		return nil, nil, planerr.InvalidConfig("routine.select", "auto selection cannot force a blueprint")
	}
	chain := sel.Chain
	if len(chain) == 0 {
		chain = DefaultAutoChain
	}

	var attempts []Attempt
	for _, f := range chain {
		r, ok := Lookup(f)
		if !ok {
			return nil, attempts, planerr.InvalidConfig("routine.select", "auto chain names unknown family %s", f)
		}
		info, err := r.Prepare(desc, settings, sel.Strategy)
		if err == nil {
			return info, attempts, nil
		}
		if !planerr.IsUnavailable(err) {
			return nil, attempts, err
		}
		attempts = append(attempts, Attempt{Family: f, Err: err})
	}
	return nil, attempts, planerr.Wrap("routine.auto", attempts[len(attempts)-1].Err)
}
