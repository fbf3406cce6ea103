// Package device snapshots the capabilities of the accelerator a blueprint is
// planned for.
package device

// Prober reports the capabilities of one kind of device.
//
// Implementation notes:
//   - IsAvailable must be cheap; the Manager calls it while choosing a prober
//   - Limits is called once per Manager and the result is treated as immutable
//   - Probers never fail planning; an unusable device is simply not available
type Prober interface {
	// Name identifies the prober in configuration and logs.
	Name() string

	// IsAvailable reports whether the device can be targeted.
	IsAvailable() bool

	// Limits returns the capability snapshot.
	Limits() Limits
}

// StaticProber serves a fixed capability profile, e.g. one loaded from YAML or
// captured from a device query tool.
type StaticProber struct {
	limits    Limits
	available bool
}

// NewStaticProber returns an available prober for limits.
func NewStaticProber(limits Limits) *StaticProber {
	return &StaticProber{limits: limits, available: true}
}

func (p *StaticProber) Name() string {
	return p.limits.Name
}

func (p *StaticProber) IsAvailable() bool {
	return p.available
}

func (p *StaticProber) Limits() Limits {
	return p.limits
}
