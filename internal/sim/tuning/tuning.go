package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	FrameEveryTicks    int `yaml:"frame_every_ticks" json:"frame_every_ticks"`

	Engine EngineTuning `yaml:"engine" json:"engine"`
}

type EngineTuning struct {
	ExtractIntervalSec  float64 `yaml:"extract_interval_sec" json:"extract_interval_sec"`
	OperatorIntervalSec float64 `yaml:"operator_interval_sec" json:"operator_interval_sec"`
	BeltTilesPerSec     float64 `yaml:"belt_tiles_per_sec" json:"belt_tiles_per_sec"`
	MaxCatchUp          int     `yaml:"max_catch_up" json:"max_catch_up"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         30,
		SnapshotEveryTicks: 3000,
		FrameEveryTicks:    1,
		Engine: EngineTuning{
			ExtractIntervalSec:  1.0,
			OperatorIntervalSec: 0.5,
			BeltTilesPerSec:     2.0,
			MaxCatchUp:          5,
		},
	}
}

// Load reads a tuning file. Keys missing from the file keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.FrameEveryTicks < 0 {
		return fmt.Errorf("frame_every_ticks must be >= 0")
	}
	e := t.Engine
	if e.ExtractIntervalSec <= 0 || e.OperatorIntervalSec <= 0 {
		return fmt.Errorf("engine intervals must be > 0")
	}
	if e.BeltTilesPerSec <= 0 {
		return fmt.Errorf("engine.belt_tiles_per_sec must be > 0")
	}
	if e.MaxCatchUp <= 0 {
		return fmt.Errorf("engine.max_catch_up must be > 0")
	}
	return nil
}

// TickSeconds is the simulated time one server tick advances the engine by.
func (t Tuning) TickSeconds() float64 {
	if t.TickRateHz <= 0 {
		return 0
	}
	return 1.0 / float64(t.TickRateHz)
}
