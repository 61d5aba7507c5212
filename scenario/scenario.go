// Package scenario loads simulation graphs from YAML descriptions and
// materializes them into builders.
package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/simnetlab/simnet/device"
	"github.com/simnetlab/simnet/metalog"
	"github.com/simnetlab/simnet/sandbox"
	"github.com/simnetlab/simnet/simnet"
	"github.com/simnetlab/simnet/telemetry"
)

// Device kinds accepted in a scenario file.
const (
	KindGenerator = "generator"
	KindRouter    = "router"
	KindSwitch    = "switch"
	KindCable     = "cable"
	KindSandboxed = "sandboxed"
)

// BoundsConfig selects the support of a metalog distribution.
type BoundsConfig struct {
	Type  string  `yaml:"type"`
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// MetalogConfig describes an inter-arrival distribution, either by its
// coefficients directly or by quantile data to fit.
type MetalogConfig struct {
	Coefficients []float64    `yaml:"coefficients"`
	QuantileX    []float64    `yaml:"quantile_x"`
	QuantileY    []float64    `yaml:"quantile_y"`
	Terms        int          `yaml:"terms"`
	Bounds       BoundsConfig `yaml:"bounds"`
}

// DeviceConfig describes one node of the graph.
type DeviceConfig struct {
	ID      uint32         `yaml:"id"`
	Name    string         `yaml:"name"`
	Kind    string         `yaml:"kind"`
	Dest    uint32         `yaml:"dest"`
	Seed    int64          `yaml:"seed"`
	Module  string         `yaml:"module"`
	Metalog *MetalogConfig `yaml:"metalog"`
}

// ConnectionConfig is a directed edge between two devices, by device ID.
type ConnectionConfig struct {
	From uint32 `yaml:"from"`
	To   uint32 `yaml:"to"`
}

// Scenario is a full simulation description.
type Scenario struct {
	Name        string             `yaml:"name"`
	Devices     []DeviceConfig     `yaml:"devices"`
	Connections []ConnectionConfig `yaml:"connections"`

	// dir is where the scenario file lives. Module paths resolve
	// relative to it.
	dir string
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}

	s.dir = filepath.Dir(path)

	return s, nil
}

// Parse parses scenario YAML. Module paths resolve relative to the working
// directory unless the scenario was read with Load.
func Parse(data []byte) (*Scenario, error) {
	s := &Scenario{dir: "."}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scenario) validate() error {
	if len(s.Devices) == 0 {
		return fmt.Errorf("scenario has no devices")
	}

	seen := make(map[uint32]bool, len(s.Devices))
	for _, d := range s.Devices {
		if seen[d.ID] {
			return fmt.Errorf("duplicate device id %d", d.ID)
		}
		seen[d.ID] = true

		switch d.Kind {
		case KindGenerator:
			if d.Metalog == nil {
				return fmt.Errorf(
					"generator %d has no metalog section", d.ID)
			}
		case KindSandboxed:
			if d.Module == "" {
				return fmt.Errorf(
					"sandboxed device %d has no module path", d.ID)
			}
		case KindRouter, KindSwitch, KindCable:
		default:
			return fmt.Errorf(
				"device %d has unknown kind %q", d.ID, d.Kind)
		}
	}

	for _, c := range s.Connections {
		if !seen[c.From] {
			return fmt.Errorf(
				"connection references unknown device %d", c.From)
		}
		if !seen[c.To] {
			return fmt.Errorf(
				"connection references unknown device %d", c.To)
		}
	}

	return nil
}

func (c *BoundsConfig) bounds() (metalog.Bounds, error) {
	switch c.Type {
	case "", "unbounded":
		return metalog.Unbounded(), nil
	case "semi-lower":
		return metalog.SemiBoundedLower(c.Lower), nil
	case "semi-upper":
		return metalog.SemiBoundedUpper(c.Upper), nil
	case "bounded":
		return metalog.Bounded(c.Lower, c.Upper), nil
	default:
		return metalog.Bounds{}, fmt.Errorf(
			"unknown bounds type %q", c.Type)
	}
}

func (c *MetalogConfig) distribution() (*metalog.Distribution, error) {
	bounds, err := c.Bounds.bounds()
	if err != nil {
		return nil, err
	}

	if len(c.Coefficients) > 0 {
		return metalog.New(c.Coefficients, bounds), nil
	}

	terms := c.Terms
	if terms == 0 {
		terms = 4
	}

	return metalog.Fit(c.QuantileX, c.QuantileY, terms, bounds)
}

// Materialize instantiates the scenario into a builder. The returned map
// translates device IDs to builder indices, which the caller needs to look
// devices up after Build. Guests are owned by their Sandboxed devices and
// live until ctx is done.
func (s *Scenario) Materialize(
	ctx context.Context,
	tel *telemetry.AsyncWriter,
) (*simnet.Builder, map[uint32]int, error) {
	b := simnet.NewBuilder()
	index := make(map[uint32]int, len(s.Devices))

	for _, cfg := range s.Devices {
		d, err := s.materializeDevice(ctx, cfg, tel)
		if err != nil {
			return nil, nil, fmt.Errorf("device %d: %w", cfg.ID, err)
		}

		index[cfg.ID] = b.AddDevice(d)
	}

	for _, c := range s.Connections {
		b.Connect(index[c.From], index[c.To])
	}

	return b, index, nil
}

func (s *Scenario) materializeDevice(
	ctx context.Context,
	cfg DeviceConfig,
	tel *telemetry.AsyncWriter,
) (device.Device, error) {
	switch cfg.Kind {
	case KindGenerator:
		dist, err := cfg.Metalog.distribution()
		if err != nil {
			return nil, err
		}

		return device.NewGenerator(
			device.ID(cfg.ID), device.ID(cfg.Dest),
			dist, cfg.Seed, tel), nil

	case KindRouter:
		return device.NewRouter(device.ID(cfg.ID)), nil

	case KindSwitch:
		return device.NewSwitch(device.ID(cfg.ID)), nil

	case KindCable:
		return device.NewCable(device.ID(cfg.ID)), nil

	case KindSandboxed:
		path := cfg.Module
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.dir, path)
		}

		code, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read module: %w", err)
		}

		guest, err := sandbox.Load(ctx, code, cfg.ID)
		if err != nil {
			return nil, fmt.Errorf("load guest: %w", err)
		}

		return device.NewSandboxed(ctx, device.ID(cfg.ID), guest), nil

	default:
		return nil, fmt.Errorf("unknown kind %q", cfg.Kind)
	}
}
