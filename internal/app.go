// Package internal provides the App struct that wires the winsor components
// together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valter-silva-au/winsor/internal/cli"
	"github.com/valter-silva-au/winsor/internal/core"
	"github.com/valter-silva-au/winsor/internal/observability"
	"github.com/valter-silva-au/winsor/internal/storage"
	"github.com/valter-silva-au/winsor/pkg/models"
)

// HomeEnvVar overrides base path discovery.
const HomeEnvVar = "WINSOR_HOME"

// App holds all service dependencies for winsor.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.GlobalConfig

	// Storage layer
	Store storage.ObservationStore

	// Observability
	EventLog     observability.EventLog
	AlertEngine  observability.AlertEngine
	MetricsCalc  observability.MetricsCalculator
	PromRegistry *prometheus.Registry
	Recorder     *observability.PrometheusRecorder
}

// NewApp loads .winsorconfig from basePath and wires all components.
// A missing config file yields defaults; an invalid one is an error.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Storage layer ---
	app.Store = storage.NewObservationStore(basePath)

	// --- Observability ---
	if cfg.EventLog.Enabled {
		eventLogPath := cfg.EventLog.Path
		if !filepath.IsAbs(eventLogPath) {
			eventLogPath = filepath.Join(basePath, eventLogPath)
		}
		app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
		if err != nil {
			// Non-fatal: run without the event log.
			app.EventLog = nil
		}
	}
	if app.EventLog != nil {
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, alertThresholds(cfg.Alerts))
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	app.PromRegistry = prometheus.NewRegistry()
	app.Recorder, err = observability.NewPrometheusRecorder(app.PromRegistry)
	if err != nil {
		return nil, err
	}

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Store = app.Store
	cli.Recorder = &promRecorderAdapter{rec: app.Recorder}
	cli.Events = nil
	if app.EventLog != nil {
		cli.Events = &eventLogAdapter{log: app.EventLog}
	}

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.PromRegistry = app.PromRegistry

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the winsor base directory. WINSOR_HOME wins;
// otherwise the nearest ancestor of the working directory holding a
// .winsorconfig file, falling back to the working directory itself.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if hasConfigFile(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

func hasConfigFile(dir string) bool {
	for _, name := range []string{core.ConfigFileName + ".yaml", core.ConfigFileName + ".yml", core.ConfigFileName} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// alertThresholds overlays the configured alert settings on the defaults.
func alertThresholds(cfg models.AlertConfig) observability.AlertThresholds {
	t := observability.DefaultAlertThresholds()
	if cfg.MaxClampFraction > 0 {
		t.MaxClampFraction = cfg.MaxClampFraction
	}
	if cfg.MinReadings > 0 {
		t.MinReadings = cfg.MinReadings
	}
	// Zero disables the stale-bounds check.
	t.StaleDays = cfg.StaleDays
	return t
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   observability.LevelInfo,
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}

// promRecorderAdapter adapts observability.PrometheusRecorder to
// core.ClampRecorder.
type promRecorderAdapter struct {
	rec *observability.PrometheusRecorder
}

func (a *promRecorderAdapter) RecordClamps(report core.ClampReport) {
	a.rec.ObserveBatch()
	for _, metric := range report.Metrics() {
		c := report.ByMetric[metric]
		a.rec.ObserveMetric(metric, c.Readings, c.ClampedLow, c.ClampedHigh)
	}
}
