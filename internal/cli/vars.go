package cli

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valter-silva-au/winsor/internal/core"
	"github.com/valter-silva-au/winsor/internal/observability"
	"github.com/valter-silva-au/winsor/internal/storage"
	"github.com/valter-silva-au/winsor/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath string
	Config   *models.GlobalConfig
	Store    storage.ObservationStore

	// Events and Recorder are handed to every Winsorizer the CLI builds.
	Events   core.EventLogger
	Recorder core.ClampRecorder
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog     observability.EventLog
	AlertEngine  observability.AlertEngine
	MetricsCalc  observability.MetricsCalculator
	PromRegistry *prometheus.Registry
)

// loadCorpus reads the corpus at path and its modification time.
func loadCorpus(path string) ([]*models.ObservationData, time.Time, error) {
	corpus, err := Store.Load(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	asOf, err := Store.ModTime(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return corpus, asOf, nil
}

// buildWinsorizer constructs a transform from corpus with the loaded config.
// A non-empty interp overrides the configured interpolation. dataAsOf dates
// the corpus for the stale-bounds alert.
func buildWinsorizer(corpus []*models.ObservationData, interp models.Interpolation, dataAsOf time.Time) (*core.Winsorizer, error) {
	opts := core.OptionsFromConfig(Config)
	if interp != "" {
		opts.Interpolation = interp
	}
	opts.DataAsOf = dataAsOf
	opts.Events = Events
	opts.Recorder = Recorder
	return core.NewWinsorizer(corpus, opts)
}
