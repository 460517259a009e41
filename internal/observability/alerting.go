package observability

import (
	"fmt"
	"sort"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	// MaxClampFraction is the share of a metric's readings that may be
	// clamped before the bounds are reported as too tight.
	MaxClampFraction float64 `yaml:"max_clamp_fraction" json:"max_clamp_fraction"`
	// MinReadings is the number of readings a metric needs before its clamp
	// fraction is judged.
	MinReadings int `yaml:"min_readings" json:"min_readings"`
	// StaleDays is how old the data behind a transform's bounds may be when
	// a batch is run through it.
	StaleDays int `yaml:"stale_days" json:"stale_days"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MaxClampFraction: 0.25,
		MinReadings:      10,
		StaleDays:        30,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading events and checking thresholds.
type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
	}
}

// Evaluate reads events and checks all alert conditions, returning any triggered alerts.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := time.Now().UTC()
	var alerts []Alert

	clampAlerts, err := ae.checkClampRate(now)
	if err != nil {
		return nil, fmt.Errorf("checking clamp rates: %w", err)
	}
	alerts = append(alerts, clampAlerts...)

	staleAlerts, err := ae.checkStaleBounds(now)
	if err != nil {
		return nil, fmt.Errorf("checking stale bounds: %w", err)
	}
	alerts = append(alerts, staleAlerts...)

	return alerts, nil
}

// checkClampRate flags metrics whose clamped share across all logged batches
// exceeds the threshold. Twice the threshold is high severity.
func (ae *alertEngine) checkClampRate(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{Type: eventBatchTransformed})
	if err != nil {
		return nil, err
	}

	totals := make(map[string]MetricTally)
	for _, event := range events {
		for metric, t := range batchTallies(event) {
			agg := totals[metric]
			agg.Readings += t.Readings
			agg.ClampedLow += t.ClampedLow
			agg.ClampedHigh += t.ClampedHigh
			totals[metric] = agg
		}
	}

	metrics := make([]string, 0, len(totals))
	for metric := range totals {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	var alerts []Alert
	for _, metric := range metrics {
		tally := totals[metric]
		if tally.Readings < ae.thresholds.MinReadings {
			continue
		}
		frac := tally.ClampFraction()
		if frac <= ae.thresholds.MaxClampFraction {
			continue
		}
		severity := SeverityMedium
		if frac > 2*ae.thresholds.MaxClampFraction {
			severity = SeverityHigh
		}
		alerts = append(alerts, Alert{
			ID:        fmt.Sprintf("clamp-rate-%s", metric),
			Condition: "high_clamp_rate",
			Severity:  severity,
			Message: fmt.Sprintf("metric %s had %.0f%% of %d readings clamped, above the %.0f%% threshold",
				metric, 100*frac, tally.Readings, 100*ae.thresholds.MaxClampFraction),
			TriggeredAt: now,
		})
	}

	return alerts, nil
}

// checkStaleBounds flags transforms that winsorized batches with bounds
// derived from old data. The age is measured from data_as_of, the corpus
// timestamp, and falls back to built_at for events that carry none.
func (ae *alertEngine) checkStaleBounds(now time.Time) ([]Alert, error) {
	if ae.thresholds.StaleDays <= 0 {
		return nil, nil
	}

	events, err := ae.eventLog.Read(EventFilter{Type: eventBatchTransformed})
	if err != nil {
		return nil, err
	}

	threshold := time.Duration(ae.thresholds.StaleDays) * 24 * time.Hour
	worst := make(map[string]time.Duration)
	for _, event := range events {
		id := event.TransformID()
		asOf, ok := boundsDataTime(event)
		if id == "" || !ok {
			continue
		}
		if age := event.Time.Sub(asOf); age > worst[id] {
			worst[id] = age
		}
	}

	ids := make([]string, 0, len(worst))
	for id := range worst {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var alerts []Alert
	for _, id := range ids {
		if worst[id] <= threshold {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("stale-%s", id),
			Condition:   "stale_bounds",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("transform %s applied bounds from data more than %d days old", id, ae.thresholds.StaleDays),
			TriggeredAt: now,
		})
	}

	return alerts, nil
}

// boundsDataTime returns the timestamp a batch event's bounds date from.
func boundsDataTime(event Event) (time.Time, bool) {
	for _, key := range []string{"data_as_of", "built_at"} {
		str, _ := event.Data[key].(string)
		if str == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, str); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
