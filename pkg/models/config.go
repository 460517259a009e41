package models

// EventLogConfig controls the JSONL event log.
type EventLogConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// AlertConfig holds alert thresholds read from the alerts section.
type AlertConfig struct {
	MaxClampFraction float64 `yaml:"max_clamp_fraction" mapstructure:"max_clamp_fraction"`
	MinReadings      int     `yaml:"min_readings" mapstructure:"min_readings"`
	StaleDays        int     `yaml:"stale_days" mapstructure:"stale_days"`
}

// GlobalConfig holds settings read from .winsorconfig via Viper.
//
// Spec and OptimizationConfig are both optional. When Spec is set it wins;
// OptimizationConfig holds the raw optimization_config section, which is
// type-checked only when bounds are derived from it.
type GlobalConfig struct {
	Interpolation      Interpolation  `yaml:"interpolation" mapstructure:"interpolation"`
	EventLog           EventLogConfig `yaml:"event_log" mapstructure:"event_log"`
	Alerts             AlertConfig    `yaml:"alerts" mapstructure:"alerts"`
	Spec               BoundSpec      `yaml:"-" mapstructure:"-"`
	OptimizationConfig any            `yaml:"-" mapstructure:"-"`
}
