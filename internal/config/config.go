package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"ralarm/internal/alarm"
)

// Config holds runtime configuration for a ralarm run.
type Config struct {
	// LogLevel is a zerolog level name (default "info").
	LogLevel string `yaml:"log_level"`

	// MetricsAddr is the listen address for /metrics and /health. Empty
	// disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// Dispatcher sizes the worker pool that owns the evaluators.
	Dispatcher DispatcherConfig `yaml:"dispatcher"`

	// Alarms are the alarm definitions to evaluate.
	Alarms []AlarmDefinition `yaml:"alarms"`
}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// AlarmDefinition is the YAML form of one alarm. Pointer fields distinguish
// "not set" from zero so that required fields and defaults are decided by
// alarm.Builder.
type AlarmDefinition struct {
	Name               string                    `yaml:"name"`
	Description        string                    `yaml:"description,omitempty"`
	Threshold          *float64                  `yaml:"threshold"`
	ComparisonOperator *alarm.ComparisonOperator `yaml:"comparison_operator"`
	EvaluationPeriods  *int                      `yaml:"evaluation_periods"`
	DatapointsToAlarm  *int                      `yaml:"datapoints_to_alarm,omitempty"`
	TreatMissingData   *alarm.MissingDataPolicy  `yaml:"treat_missing_data,omitempty"`
}

// Build assembles the alarm configuration.
func (d AlarmDefinition) Build() (alarm.Config, error) {
	b := alarm.NewBuilder()
	if d.Threshold != nil {
		b.Threshold(*d.Threshold)
	}
	if d.ComparisonOperator != nil {
		b.ComparisonOperator(*d.ComparisonOperator)
	}
	if d.EvaluationPeriods != nil {
		b.EvaluationPeriods(*d.EvaluationPeriods)
	}
	if d.DatapointsToAlarm != nil {
		b.DatapointsToAlarm(*d.DatapointsToAlarm)
	}
	if d.TreatMissingData != nil {
		b.TreatMissingData(*d.TreatMissingData)
	}
	return b.Build()
}

// Alarm returns the definition with the given name.
func (c *Config) Alarm(name string) (AlarmDefinition, bool) {
	for _, a := range c.Alarms {
		if a.Name == name {
			return a, true
		}
	}
	return AlarmDefinition{}, false
}

// Default returns a sensible default config for local runs.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Dispatcher: DispatcherConfig{
			Workers:   4,
			QueueSize: 256,
		},
	}
}

// Load reads and parses the config file at path. Defaults are applied before
// unmarshalling, unnamed alarms get a generated name, and the result is
// validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	for i := range cfg.Alarms {
		if cfg.Alarms[i].Name == "" {
			cfg.Alarms[i].Name = uuid.NewString()
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// validate checks structural constraints and builds every alarm once so that
// bad definitions fail at load time.
func validate(cfg *Config) error {
	if cfg.Dispatcher.Workers < 1 {
		return fmt.Errorf("dispatcher.workers %d must be >= 1", cfg.Dispatcher.Workers)
	}
	if cfg.Dispatcher.QueueSize < 1 {
		return fmt.Errorf("dispatcher.queue_size %d must be >= 1", cfg.Dispatcher.QueueSize)
	}

	var errs []error
	seen := make(map[string]bool, len(cfg.Alarms))
	for i, a := range cfg.Alarms {
		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("alarms[%d]: duplicate name %q", i, a.Name))
			continue
		}
		seen[a.Name] = true

		if _, err := a.Build(); err != nil {
			errs = append(errs, fmt.Errorf("alarms[%d] %q: %w", i, a.Name, err))
		}
	}
	return errors.Join(errs...)
}
