package edyn

import (
	"os"

	"github.com/StellaSmith/edyn/island"
	"gopkg.in/yaml.v3"
)

// Config carries the tunable scalars of the simulation. All fields map to
// a YAML tuning file so deployments can adjust them without rebuilding.
type Config struct {
	FixedDt    float64 `yaml:"fixed_dt"`
	Iterations int     `yaml:"iterations"`

	AABBOffset          float64 `yaml:"aabb_offset"`
	SeparationThreshold float64 `yaml:"separation_threshold"`

	IslandTimeToSleep     float64 `yaml:"island_time_to_sleep"`
	LinearSleepThreshold  float64 `yaml:"island_linear_sleep_threshold"`
	AngularSleepThreshold float64 `yaml:"island_angular_sleep_threshold"`

	MaxLaggingSteps     int     `yaml:"max_lagging_steps"`
	CalculateSplitDelay float64 `yaml:"calculate_split_delay"`

	// Workers sizes the job dispatcher pool; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	s := island.DefaultSettings()
	return Config{
		FixedDt:               s.FixedDt,
		Iterations:            s.Iterations,
		AABBOffset:            s.AABBOffset,
		SeparationThreshold:   s.SeparationThreshold,
		IslandTimeToSleep:     s.TimeToSleep,
		LinearSleepThreshold:  s.LinearSleepThreshold,
		AngularSleepThreshold: s.AngularSleepThreshold,
		MaxLaggingSteps:       s.MaxLaggingSteps,
		CalculateSplitDelay:   s.CalculateSplitDelay,
	}
}

// LoadConfig reads a YAML tuning file. A missing or invalid file returns
// DefaultConfig without error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), nil
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), nil
	}
	return cfg, nil
}

// SaveConfig writes the tuning to a YAML file.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c Config) settings() island.Settings {
	return island.Settings{
		FixedDt:               c.FixedDt,
		Iterations:            c.Iterations,
		AABBOffset:            c.AABBOffset,
		SeparationThreshold:   c.SeparationThreshold,
		TimeToSleep:           c.IslandTimeToSleep,
		LinearSleepThreshold:  c.LinearSleepThreshold,
		AngularSleepThreshold: c.AngularSleepThreshold,
		MaxLaggingSteps:       c.MaxLaggingSteps,
		CalculateSplitDelay:   c.CalculateSplitDelay,
	}
}
