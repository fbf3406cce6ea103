package device

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager selects the device to plan for and hands out capability snapshots.
type Manager struct {
	prober Prober
	limits Limits
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewManager picks the prober named preferred if it is available, otherwise the
// first available prober in order, otherwise the CPU. An empty preferred name
// means "first available".
func NewManager(logger *zap.Logger, preferred string, probers ...Prober) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		logger: logger.Named("device"),
	}

	if err := m.detect(preferred, probers); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) detect(preferred string, probers []Prober) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if preferred != "" {
		found := false
		for _, p := range probers {
			if p.Name() != preferred {
				continue
			}
			found = true
			if p.IsAvailable() {
				return m.use(p)
			}
			m.logger.Warn("preferred device not available", zap.String("device", preferred))
		}
		if !found && preferred != "cpu" {
			return fmt.Errorf("unknown device profile %q", preferred)
		}
	}

	if preferred != "cpu" {
		for _, p := range probers {
			if p.IsAvailable() {
				return m.use(p)
			}
		}
	}

	// Fall back to CPU
	return m.use(NewCPUProber())
}

func (m *Manager) use(p Prober) error {
	limits := p.Limits()
	if err := limits.Validate(); err != nil {
		return fmt.Errorf("failed to use device %q: %w", p.Name(), err)
	}
	m.prober = p
	m.limits = limits
	m.logger.Info("device selected",
		zap.String("device", limits.Name),
		zap.Uint32("laneWidth", limits.LaneWidth),
		zap.Uint32("sms", limits.NumStreamingMultiprocessors),
		zap.Bool("matrixAccelerator", limits.MatrixAccelerator))
	return nil
}

// Limits returns the snapshot taken when the device was selected.
func (m *Manager) Limits() Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// Settings builds the planning settings for the selected device.
func (m *Manager) Settings(lineSizes LineSizes) Settings {
	return NewSettings(m.Limits(), lineSizes)
}

// DeviceName returns the name of the selected prober.
func (m *Manager) DeviceName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.prober == nil {
		return "none"
	}
	return m.prober.Name()
}

// IsCPU reports whether planning falls back to the host CPU.
func (m *Manager) IsCPU() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, isCPU := m.prober.(*CPUProber)
	return isCPU
}
