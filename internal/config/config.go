package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/routine"
	"github.com/fxnlabs/tileplan/internal/simulate"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		// Encoding is "json" or "console".
		Encoding string `yaml:"encoding"`
	} `yaml:"logger"`
	Device struct {
		// Profile names the device to plan for; empty picks the first available.
		Profile  string          `yaml:"profile"`
		Profiles []device.Limits `yaml:"profiles"`
	} `yaml:"device"`
	Planner struct {
		AutoChain        []routine.Family    `yaml:"autoChain"`
		LineSizes        device.LineSizes    `yaml:"lineSizes"`
		MaxStageElements uint64              `yaml:"maxStageElements"`
		ReportMode       simulate.ReportMode `yaml:"reportMode"`
		Epsilon          float64             `yaml:"epsilon"`
	} `yaml:"planner"`
	Server struct {
		ListenAddress string        `yaml:"listenAddress"`
		ListenPort    int           `yaml:"listenPort"`
		ReadTimeout   time.Duration `yaml:"readTimeout"`
	} `yaml:"server"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.Logger.Verbosity = "info"
	c.Logger.Encoding = "json"
	c.Planner.LineSizes = device.DefaultLineSizes
	c.Planner.ReportMode = simulate.Skip
	c.Planner.Epsilon = 1e-4
	c.Server.ListenAddress = "127.0.0.1"
	c.Server.ListenPort = 8090
	c.Server.ReadTimeout = 10 * time.Second
	return &c
}

// LoadConfig reads path over Default and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if _, err := zap.ParseAtomicLevel(c.Logger.Verbosity); err != nil {
		return fmt.Errorf("logger.verbosity: %w", err)
	}
	if e := c.Logger.Encoding; e != "" && e != "json" && e != "console" {
		return fmt.Errorf("logger.encoding: unknown encoding %q", e)
	}

	seen := make(map[string]bool, len(c.Device.Profiles))
	for i, limits := range c.Device.Profiles {
		if limits.Name == "" {
			return fmt.Errorf("device.profiles[%d]: name is required", i)
		}
		if seen[limits.Name] {
			return fmt.Errorf("device.profiles[%d]: duplicate profile %q", i, limits.Name)
		}
		seen[limits.Name] = true
		if err := limits.Validate(); err != nil {
			return fmt.Errorf("device.profiles[%d]: %w", i, err)
		}
	}
	if p := c.Device.Profile; p != "" && p != "cpu" && !seen[p] {
		if _, ok := device.BuiltinProfile(p); !ok {
			return fmt.Errorf("device.profile: unknown profile %q", p)
		}
	}

	for i, f := range c.Planner.AutoChain {
		if f == routine.Auto {
			return fmt.Errorf("planner.autoChain[%d]: auto cannot be part of its own chain", i)
		}
		if _, ok := routine.Lookup(f); !ok {
			return fmt.Errorf("planner.autoChain[%d]: unknown family %s", i, f)
		}
	}
	if c.Planner.Epsilon <= 0 {
		return fmt.Errorf("planner.epsilon must be positive")
	}

	if c.Server.ListenPort <= 0 || c.Server.ListenPort > 65535 {
		return fmt.Errorf("server.listenPort %d out of range", c.Server.ListenPort)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server.readTimeout must not be negative")
	}
	return nil
}

// Probers lists custom profiles ahead of the built-in ones, so a custom
// profile shadows a built-in of the same name.
func (c *Config) Probers() []device.Prober {
	probers := make([]device.Prober, 0, len(c.Device.Profiles))
	for _, limits := range c.Device.Profiles {
		probers = append(probers, device.NewStaticProber(limits))
	}
	return append(probers, device.BuiltinProfiles()...)
}

// Address is the host:port the server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddress, c.Server.ListenPort)
}
