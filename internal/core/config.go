// Package core contains the winsorization logic: bound resolution, default
// bound derivation from an optimization config, observation clamping, the
// cached Winsorizer transform and configuration loading.
package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/winsor/pkg/models"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the base name of the config file, looked up with and
// without a .yaml extension.
const ConfigFileName = ".winsorconfig"

// ConfigurationManager loads and validates .winsorconfig.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(config interface{}) error
}

// viperConfigManager implements ConfigurationManager using Viper for the
// scalar settings. Viper folds map keys to lower case, so the sections keyed
// by metric name are decoded from the same file with yaml.v3.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .winsorconfig relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// defaultGlobalConfig returns a GlobalConfig populated with sensible defaults.
func defaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		Interpolation: models.InterpolationLinear,
		EventLog: models.EventLogConfig{
			Enabled: true,
			Path:    ".winsor_events.jsonl",
		},
		Alerts: models.AlertConfig{
			MaxClampFraction: 0.25,
			MinReadings:      10,
			StaleDays:        30,
		},
	}
}

// rawSections mirrors the parts of the file that carry metric names.
type rawSections struct {
	Winsorization *struct {
		Global  *models.WinsorizationConfig           `yaml:"global"`
		Metrics map[string]models.WinsorizationConfig `yaml:"metrics"`
	} `yaml:"winsorization"`
	OptimizationConfig yaml.Node `yaml:"optimization_config"`
}

// LoadGlobalConfig reads .winsorconfig from the base path. If the file does
// not exist, defaults are returned with no bound spec.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := defaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("interpolation", string(cfg.Interpolation))
	v.SetDefault("event_log.enabled", cfg.EventLog.Enabled)
	v.SetDefault("event_log.path", cfg.EventLog.Path)
	v.SetDefault("alerts.max_clamp_fraction", cfg.Alerts.MaxClampFraction)
	v.SetDefault("alerts.min_readings", cfg.Alerts.MinReadings)
	v.SetDefault("alerts.stale_days", cfg.Alerts.StaleDays)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	cfg.Interpolation = models.Interpolation(v.GetString("interpolation"))
	cfg.EventLog.Enabled = v.GetBool("event_log.enabled")
	cfg.EventLog.Path = v.GetString("event_log.path")
	cfg.Alerts.MaxClampFraction = v.GetFloat64("alerts.max_clamp_fraction")
	cfg.Alerts.MinReadings = v.GetInt("alerts.min_readings")
	cfg.Alerts.StaleDays = v.GetInt("alerts.stale_days")

	data, err := os.ReadFile(v.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", v.ConfigFileUsed(), err)
	}
	var raw rawSections
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing winsorization sections: %w", err)
	}

	if w := raw.Winsorization; w != nil {
		switch {
		case w.Global != nil && w.Metrics != nil:
			return nil, fmt.Errorf("winsorization: set either global or metrics, not both")
		case w.Global != nil:
			cfg.Spec = models.GlobalSpec{Rule: *w.Global}
		case w.Metrics != nil:
			cfg.Spec = models.PerMetricSpec(w.Metrics)
		}
	}

	if !raw.OptimizationConfig.IsZero() {
		goal, err := decodeOptimizationConfig(&raw.OptimizationConfig)
		if err != nil {
			return nil, err
		}
		cfg.OptimizationConfig = goal
	}

	return cfg, nil
}

// decodeOptimizationConfig turns the optimization_config node into a
// single- or multi-objective config. A node that is not a mapping is
// returned as its plain decoded value so that DefaultBoundSpec can reject
// it by type.
func decodeOptimizationConfig(node *yaml.Node) (any, error) {
	if node.Kind != yaml.MappingNode {
		var plain any
		if err := node.Decode(&plain); err != nil {
			return nil, fmt.Errorf("parsing optimization_config: %w", err)
		}
		return plain, nil
	}

	var section struct {
		Objective  string   `yaml:"objective"`
		Objectives []string `yaml:"objectives"`
	}
	if err := node.Decode(&section); err != nil {
		return nil, fmt.Errorf("parsing optimization_config: %w", err)
	}

	switch {
	case section.Objective != "" && len(section.Objectives) > 0:
		return nil, fmt.Errorf("optimization_config: set either objective or objectives, not both")
	case section.Objective != "":
		return &models.OptimizationConfig{
			Objective: models.Objective{MetricName: section.Objective},
		}, nil
	case len(section.Objectives) > 0:
		mo := &models.MultiObjectiveOptimizationConfig{}
		for _, name := range section.Objectives {
			mo.Objectives = append(mo.Objectives, models.Objective{MetricName: name})
		}
		return mo, nil
	default:
		return nil, fmt.Errorf("optimization_config: objective or objectives is required")
	}
}

// ValidateConfig checks the provided configuration for invalid values and
// returns a clear error message identifying the problem.
// It accepts *GlobalConfig or a models.BoundSpec.
func (cm *viperConfigManager) ValidateConfig(config interface{}) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}

	switch cfg := config.(type) {
	case *models.GlobalConfig:
		return validateGlobalConfig(cfg)
	case models.BoundSpec:
		if errs := validateSpec(cfg); len(errs) > 0 {
			return fmt.Errorf("winsorization config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
		}
		return nil
	default:
		return fmt.Errorf("unsupported configuration type: %T", config)
	}
}

// validateGlobalConfig checks a GlobalConfig for invalid field values.
func validateGlobalConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("global configuration is nil")
	}

	var errs []string

	if !cfg.Interpolation.Valid() {
		errs = append(errs, fmt.Sprintf(
			"interpolation %q is invalid, must be one of: linear, nearest_observed",
			cfg.Interpolation,
		))
	}

	if cfg.EventLog.Enabled && cfg.EventLog.Path == "" {
		errs = append(errs, "event_log.path must not be empty when the event log is enabled")
	}

	if cfg.Alerts.MaxClampFraction <= 0 || cfg.Alerts.MaxClampFraction > 1 {
		errs = append(errs, fmt.Sprintf(
			"alerts.max_clamp_fraction %v is invalid, must be in (0, 1]",
			cfg.Alerts.MaxClampFraction,
		))
	}

	if cfg.Alerts.MinReadings < 0 {
		errs = append(errs, fmt.Sprintf("alerts.min_readings must be non-negative, got %d", cfg.Alerts.MinReadings))
	}

	if cfg.Alerts.StaleDays < 0 {
		errs = append(errs, fmt.Sprintf("alerts.stale_days must be non-negative, got %d", cfg.Alerts.StaleDays))
	}

	if cfg.Spec != nil {
		errs = append(errs, validateSpec(cfg.Spec)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("global config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// validateSpec checks every rule reachable from spec.
func validateSpec(spec models.BoundSpec) []string {
	var errs []string
	if g, ok := spec.(models.GlobalSpec); ok {
		if err := ValidateRule(g.Rule); err != nil {
			errs = append(errs, fmt.Sprintf("winsorization.global: %v", err))
		}
		return errs
	}
	for _, metric := range spec.Metrics() {
		rule, _ := spec.RuleFor(metric)
		if err := ValidateRule(rule); err != nil {
			errs = append(errs, fmt.Sprintf("winsorization.metrics.%s: %v", metric, err))
		}
	}
	return errs
}
