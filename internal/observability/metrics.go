package observability

import (
	"fmt"
	"time"
)

// Event types written by the winsorizer. Mirrors the core constants so this
// package does not import core.
const (
	eventBoundsResolved   = "winsorize.bounds_resolved"
	eventBatchTransformed = "winsorize.batch_transformed"
)

// MetricTally aggregates clamp counts for one metric across batches.
type MetricTally struct {
	Readings    int `json:"readings"`
	ClampedLow  int `json:"clamped_low"`
	ClampedHigh int `json:"clamped_high"`
}

// ClampFraction returns the share of readings that were clamped.
func (t MetricTally) ClampFraction() float64 {
	if t.Readings == 0 {
		return 0
	}
	return float64(t.ClampedLow+t.ClampedHigh) / float64(t.Readings)
}

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	TransformsBuilt    int                    `json:"transforms_built"`
	BatchesTransformed int                    `json:"batches_transformed"`
	RecordsSeen        int                    `json:"records_seen"`
	ReadingsSeen       int                    `json:"readings_seen"`
	ReadingsClamped    int                    `json:"readings_clamped"`
	ByMetric           map[string]MetricTally `json:"by_metric"`
	EventCount         int                    `json:"event_count"`
	OldestEvent        *time.Time             `json:"oldest_event,omitempty"`
	NewestEvent        *time.Time             `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{ByMetric: make(map[string]MetricTally)}
	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case eventBoundsResolved:
			m.TransformsBuilt++
		case eventBatchTransformed:
			m.BatchesTransformed++
			m.RecordsSeen += intField(event.Data, "records")
			m.ReadingsSeen += intField(event.Data, "readings")
			m.ReadingsClamped += intField(event.Data, "clamped")
			for metric, tally := range batchTallies(event) {
				agg := m.ByMetric[metric]
				agg.Readings += tally.Readings
				agg.ClampedLow += tally.ClampedLow
				agg.ClampedHigh += tally.ClampedHigh
				m.ByMetric[metric] = agg
			}
		}
	}

	return m, nil
}

// batchTallies extracts the by_metric section of a batch event.
func batchTallies(event Event) map[string]MetricTally {
	raw, ok := event.Data["by_metric"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]MetricTally, len(raw))
	for metric, v := range raw {
		fields, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out[metric] = MetricTally{
			Readings:    intField(fields, "readings"),
			ClampedLow:  intField(fields, "clamped_low"),
			ClampedHigh: intField(fields, "clamped_high"),
		}
	}
	return out
}

// intField reads a count that may have been decoded from JSON as float64.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
