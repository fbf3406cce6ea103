// Package planner is the entry point used by the CLI and the HTTP server: it
// resolves the target device, runs family selection and records what happened
// in logs and metrics.
package planner

import (
	"sort"
	"time"

	"github.com/fxnlabs/tileplan/internal/config"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/metrics"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/routine"
	"go.uber.org/zap"
)

// Request asks for a launch of Problem. Device overrides the configured
// device with any known profile.
type Request struct {
	Device            string             `json:"device,omitempty" yaml:"device,omitempty"`
	Problem           problem.Descriptor `json:"problem" yaml:"problem"`
	routine.Selection `yaml:",inline"`
}

// SkippedFamily is a family auto selection passed over.
type SkippedFamily struct {
	Family routine.Family `json:"family" yaml:"family"`
	Reason string         `json:"reason" yaml:"reason"`
}

// Result is a prepared launch and how it was chosen.
type Result struct {
	Device  string              `json:"device" yaml:"device"`
	Launch  *routine.LaunchInfo `json:"launch" yaml:"launch"`
	Skipped []SkippedFamily     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Planner is safe for concurrent use; it holds only immutable snapshots.
type Planner struct {
	logger           *zap.Logger
	deviceName       string
	settings         device.Settings
	profiles         map[string]device.Limits
	lineSizes        device.LineSizes
	chain            []routine.Family
	maxStageElements uint64
}

func New(logger *zap.Logger, manager *device.Manager, cfg *config.Config) *Planner {
	profiles := make(map[string]device.Limits)
	// Custom profiles come first and shadow built-ins.
	for _, p := range cfg.Probers() {
		if _, ok := profiles[p.Name()]; !ok {
			profiles[p.Name()] = p.Limits()
		}
	}
	cpu := device.NewCPUProber()
	profiles[cpu.Name()] = cpu.Limits()

	settings := manager.Settings(cfg.Planner.LineSizes)
	metrics.DeviceLaneWidth.WithLabelValues(manager.DeviceName()).Set(float64(settings.LaneWidth))
	metrics.DeviceStreamingMultiprocessors.WithLabelValues(manager.DeviceName()).Set(float64(settings.Limits.NumStreamingMultiprocessors))

	return &Planner{
		logger:           logger.Named("planner"),
		deviceName:       manager.DeviceName(),
		settings:         settings,
		profiles:         profiles,
		lineSizes:        cfg.Planner.LineSizes,
		chain:            cfg.Planner.AutoChain,
		maxStageElements: cfg.Planner.MaxStageElements,
	}
}

// DeviceName is the device plans target by default.
func (p *Planner) DeviceName() string {
	return p.deviceName
}

// Settings is the default device snapshot.
func (p *Planner) Settings() device.Settings {
	return p.settings
}

// Profiles returns every device a request may name, sorted by name.
func (p *Planner) Profiles() []device.Limits {
	out := make([]device.Limits, 0, len(p.profiles))
	for _, limits := range p.profiles {
		out = append(out, limits)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Plan prepares a launch for req.
func (p *Planner) Plan(req Request) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.PlanDuration.Observe(float64(time.Since(start).Microseconds()))
	}()

	deviceName, settings, err := p.target(req.Device)
	if err != nil {
		p.fail(req, err)
		return nil, err
	}

	sel := req.Selection
	if len(sel.Chain) == 0 {
		sel.Chain = p.chain
	}
	if !sel.Strategy.IsForced() && sel.Strategy.Hints.MaxStageElements == 0 {
		sel.Strategy.Hints.MaxStageElements = p.maxStageElements
	}

	info, attempts, err := routine.Select(req.Problem, settings, sel)

	skipped := make([]SkippedFamily, 0, len(attempts))
	for _, a := range attempts {
		metrics.FamilyFallbacks.WithLabelValues(a.Family.String()).Inc()
		p.logger.Debug("family unavailable",
			zap.Stringer("family", a.Family),
			zap.Stringer("problem", req.Problem),
			zap.Error(a.Err))
		skipped = append(skipped, SkippedFamily{Family: a.Family, Reason: a.Err.Error()})
	}

	if err != nil {
		p.fail(req, err)
		return nil, err
	}

	metrics.PlansTotal.WithLabelValues(info.Family.String(), "ok").Inc()
	metrics.LastPlanWorkGroups.Set(float64(info.Grid.Count()))
	p.logger.Info("plan prepared",
		zap.String("device", deviceName),
		zap.Stringer("problem", req.Problem),
		zap.String("routine", info.Name),
		zap.Stringer("tiling", info.Blueprint.Tiling),
		zap.Uint32("gridX", info.Grid.X),
		zap.Uint32("gridY", info.Grid.Y),
		zap.Uint32("gridZ", info.Grid.Z),
		zap.Int("skipped", len(skipped)))

	return &Result{Device: deviceName, Launch: info, Skipped: skipped}, nil
}

func (p *Planner) target(name string) (string, device.Settings, error) {
	if name == "" || name == p.deviceName {
		return p.deviceName, p.settings, nil
	}
	limits, ok := p.profiles[name]
	if !ok {
		return "", device.Settings{}, planerr.InvalidConfig("planner.device", "unknown device profile %q", name)
	}
	return name, device.NewSettings(limits, p.lineSizes), nil
}

func (p *Planner) fail(req Request, err error) {
	kind := planerr.KindOf(err).String()
	metrics.PlansTotal.WithLabelValues(req.Family.String(), kind).Inc()
	metrics.ValidationFailures.WithLabelValues(kind).Inc()
	p.logger.Warn("planning failed",
		zap.Stringer("problem", req.Problem),
		zap.Stringer("family", req.Family),
		zap.String("kind", kind),
		zap.Error(err))
}
