// Package config loads and validates the YAML configuration for the
// assimilation driver and forecast engine (§11), following the same
// defaults-then-override-then-validate flow as the chaos-utils and
// inference-sim configuration loaders.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration schema.
type Config struct {
	Ensemble    EnsembleConfig    `yaml:"ensemble"`
	Observation ObservationConfig `yaml:"observation"`
	Time        TimeConfig        `yaml:"time"`
	Simulator   SimulatorConfig   `yaml:"simulator"`
	Forecast    ForecastConfig    `yaml:"forecast"`
	DA          DAConfig          `yaml:"da"`
	Log         LogConfig         `yaml:"log"`
}

// EnsembleConfig controls the particle filter's ensemble shape and update
// strategy (pf.Options).
type EnsembleConfig struct {
	Size         int  `yaml:"size"`
	Resample     bool `yaml:"resample"`
	Perturb      bool `yaml:"perturb"`
	ClassKernels bool `yaml:"class_kernels"`
}

// ObservationConfig controls how observations are turned into likelihood
// functions (obs.NewAbsolute / obs.NewRelative).
type ObservationConfig struct {
	Error    float64 `yaml:"error"`
	Absolute bool    `yaml:"absolute"`
}

// TimeConfig controls the model and assimilation step sizes.
type TimeConfig struct {
	ModelStep Duration `yaml:"model_step"`
	DAStep    Duration `yaml:"da_step"`
}

// SimulatorConfig controls the external-process adapter's timeouts and
// scratch-directory cleanup.
type SimulatorConfig struct {
	DATimeout           Duration `yaml:"da_timeout"`
	ForecastTimeout     Duration `yaml:"forecast_timeout"`
	RemoveDAFiles       bool     `yaml:"remove_da_files"`
	RemoveForecastFiles bool     `yaml:"remove_forecast_files"`
}

// ForecastConfig controls the forecast engine's worker pool and budget.
type ForecastConfig struct {
	ThreadCount     int      `yaml:"thread_count"`
	WallClockBudget Duration `yaml:"wall_clock_budget"`
}

// DAConfig controls the assimilation driver's retry policy.
type DAConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// LogConfig controls logrus's level and formatter.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration with YAML marshaling as a duration string
// ("1h", "30s") instead of an integer nanosecond count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler, accepting either a duration
// string ("1h30m") or a plain integer count of nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string or integer nanosecond count")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Dur returns d as a time.Duration.
func (d Duration) Dur() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns the configuration documented in §11.
func DefaultConfig() *Config {
	return &Config{
		Ensemble: EnsembleConfig{
			Size:         100,
			Resample:     true,
			Perturb:      true,
			ClassKernels: true,
		},
		Observation: ObservationConfig{
			Error:    0.15,
			Absolute: false,
		},
		Time: TimeConfig{
			ModelStep: Duration(time.Hour),
			DAStep:    Duration(6 * time.Hour),
		},
		Simulator: SimulatorConfig{
			DATimeout:           Duration(30 * time.Second),
			ForecastTimeout:     Duration(120 * time.Second),
			RemoveDAFiles:       true,
			RemoveForecastFiles: false,
		},
		Forecast: ForecastConfig{
			ThreadCount:     8,
			WallClockBudget: Duration(5 * time.Minute),
		},
		DA: DAConfig{
			MaxRetries: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults returned by DefaultConfig, then
// validates the result. Fields absent from the file keep their default
// value; unknown fields are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks the fields that must hold for the driver and forecast
// engine to run, returning an error naming the first invalid field.
func (c *Config) Validate() error {
	if c.Ensemble.Size < 1 {
		return fmt.Errorf("config: ensemble.size must be at least 1")
	}
	if c.Observation.Error <= 0 {
		return fmt.Errorf("config: observation.error must be positive")
	}
	if c.Time.ModelStep.Dur() <= 0 {
		return fmt.Errorf("config: time.model_step must be positive")
	}
	if c.Time.DAStep.Dur() <= 0 {
		return fmt.Errorf("config: time.da_step must be positive")
	}
	if c.Time.DAStep.Dur() < c.Time.ModelStep.Dur() {
		return fmt.Errorf("config: time.da_step must be at least time.model_step")
	}
	if c.Time.DAStep.Dur()%c.Time.ModelStep.Dur() != 0 {
		return fmt.Errorf("config: time.da_step must be an exact multiple of time.model_step")
	}
	if c.Simulator.DATimeout.Dur() <= 0 {
		return fmt.Errorf("config: simulator.da_timeout must be positive")
	}
	if c.Simulator.ForecastTimeout.Dur() <= 0 {
		return fmt.Errorf("config: simulator.forecast_timeout must be positive")
	}
	if c.Forecast.ThreadCount < 1 {
		return fmt.Errorf("config: forecast.thread_count must be at least 1")
	}
	if c.Forecast.WallClockBudget.Dur() <= 0 {
		return fmt.Errorf("config: forecast.wall_clock_budget must be positive")
	}
	if c.DA.MaxRetries < 0 {
		return fmt.Errorf("config: da.max_retries must be non-negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q is not one of text, json", c.Log.Format)
	}
	return nil
}
