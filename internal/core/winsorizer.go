package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/winsor/pkg/models"
)

// WinsorizerOptions configures NewWinsorizer.
//
// Spec takes precedence over OptimizationConfig. With neither set, every
// metric resolves to unbounded. Events and Recorder may be nil.
//
// DataAsOf is when the corpus was last written, typically the corpus file's
// modification time. It is logged with every batch so that staleness is
// measured against the data rather than against the transform.
type WinsorizerOptions struct {
	Spec               models.BoundSpec
	OptimizationConfig any
	Interpolation      models.Interpolation
	DataAsOf           time.Time
	Events             EventLogger
	Recorder           ClampRecorder
}

// OptionsFromConfig builds WinsorizerOptions from a loaded config. Events
// and Recorder are left for the caller to set.
func OptionsFromConfig(cfg *models.GlobalConfig) WinsorizerOptions {
	if cfg == nil {
		return WinsorizerOptions{}
	}
	return WinsorizerOptions{
		Spec:               cfg.Spec,
		OptimizationConfig: cfg.OptimizationConfig,
		Interpolation:      cfg.Interpolation,
	}
}

// Winsorizer clamps observation means to bounds derived once, at
// construction, from an initial corpus. Later batches reuse those bounds.
type Winsorizer struct {
	id            string
	bounds        map[string]models.Bounds
	interpolation models.Interpolation
	builtAt       time.Time
	dataAsOf      time.Time
	events        EventLogger
	recorder      ClampRecorder
}

// NewWinsorizer resolves bounds from records. records are read but not
// modified.
func NewWinsorizer(records []*models.ObservationData, opts WinsorizerOptions) (*Winsorizer, error) {
	spec := opts.Spec
	if spec == nil && opts.OptimizationConfig != nil {
		var err error
		if spec, err = DefaultBoundSpec(opts.OptimizationConfig); err != nil {
			return nil, err
		}
	}

	interp := opts.Interpolation
	if interp == "" {
		interp = models.InterpolationLinear
	}

	bounds, err := ResolveBounds(records, spec, interp)
	if err != nil {
		return nil, fmt.Errorf("resolving winsorization bounds: %w", err)
	}

	w := &Winsorizer{
		id:            uuid.NewString(),
		bounds:        bounds,
		interpolation: interp,
		builtAt:       time.Now().UTC(),
		dataAsOf:      opts.DataAsOf.UTC(),
		events:        opts.Events,
		recorder:      opts.Recorder,
	}

	data := map[string]any{
		"transform_id":  w.id,
		"records":       len(records),
		"metrics":       len(bounds),
		"interpolation": string(interp),
	}
	w.addDataAsOf(data)
	w.logEvent(EventBoundsResolved, data)

	return w, nil
}

// ID identifies this transform in logged events.
func (w *Winsorizer) ID() string { return w.id }

// Interpolation returns the quantile interpolation the bounds were built with.
func (w *Winsorizer) Interpolation() models.Interpolation { return w.interpolation }

// BuiltAt returns when the bounds were resolved.
func (w *Winsorizer) BuiltAt() time.Time { return w.builtAt }

// DataAsOf returns the corpus timestamp given at construction, or the zero
// time when none was given.
func (w *Winsorizer) DataAsOf() time.Time { return w.dataAsOf }

// Bounds returns a copy of the resolved bounds.
func (w *Winsorizer) Bounds() map[string]models.Bounds {
	out := make(map[string]models.Bounds, len(w.bounds))
	for k, v := range w.bounds {
		out[k] = v
	}
	return out
}

// BoundsFor returns the bounds for metric. Unknown metrics report unbounded
// and false.
func (w *Winsorizer) BoundsFor(metric string) (models.Bounds, bool) {
	b, ok := w.bounds[metric]
	if !ok {
		return models.Unbounded(), false
	}
	return b, true
}

// Metrics returns the metrics with resolved bounds, sorted.
func (w *Winsorizer) Metrics() []string {
	names := make([]string, 0, len(w.bounds))
	for name := range w.bounds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TransformObservationData clamps batch in place with the cached bounds and
// returns it. The batch may be a single record and may contain metrics that
// were never seen at construction; those pass through unchanged.
func (w *Winsorizer) TransformObservationData(batch []*models.ObservationData) ([]*models.ObservationData, error) {
	if _, err := w.Apply(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Apply is TransformObservationData returning the clamp report instead of
// the batch. A malformed record fails the whole batch before anything is
// modified.
func (w *Winsorizer) Apply(batch []*models.ObservationData) (ClampReport, error) {
	for i, rec := range batch {
		if err := rec.Validate(); err != nil {
			return ClampReport{}, fmt.Errorf("%w: batch record %d: %v", ErrMalformedObservation, i, err)
		}
	}

	report := ClampObservations(batch, w.bounds)

	if w.recorder != nil {
		w.recorder.RecordClamps(report)
	}

	byMetric := make(map[string]any, len(report.ByMetric))
	for _, name := range report.Metrics() {
		c := report.ByMetric[name]
		byMetric[name] = map[string]any{
			"readings":     c.Readings,
			"clamped_low":  c.ClampedLow,
			"clamped_high": c.ClampedHigh,
		}
	}
	data := map[string]any{
		"transform_id": w.id,
		"built_at":     w.builtAt.Format(time.RFC3339),
		"records":      report.Records,
		"readings":     report.Readings,
		"clamped":      report.Clamped(),
		"by_metric":    byMetric,
	}
	w.addDataAsOf(data)
	w.logEvent(EventBatchTransformed, data)

	return report, nil
}

func (w *Winsorizer) addDataAsOf(data map[string]any) {
	if !w.dataAsOf.IsZero() {
		data["data_as_of"] = w.dataAsOf.Format(time.RFC3339)
	}
}

// logEvent is best-effort: a failing event log never fails a transform.
func (w *Winsorizer) logEvent(eventType string, data map[string]any) {
	if w.events == nil {
		return
	}
	_ = w.events.LogEvent(eventType, data)
}
