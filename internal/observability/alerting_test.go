package observability

import (
	"strings"
	"testing"
	"time"
)

func findAlert(alerts []Alert, id string) *Alert {
	for i := range alerts {
		if alerts[i].ID == id {
			return &alerts[i]
		}
	}
	return nil
}

func TestAlertEngine_NoEvents(t *testing.T) {
	log, _ := newTestLog(t)

	alerts, err := NewAlertEngine(log, DefaultAlertThresholds()).Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(alerts))
	}
}

func TestAlertEngine_HighClampRate(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Now().UTC()

	writeAll(t, log,
		batchEvent(now, "t-1", now, map[string]MetricTally{
			"latency": {Readings: 10, ClampedHigh: 3}, // 30%: medium
			"ctr":     {Readings: 10, ClampedLow: 6},  // 60%: high
			"revenue": {Readings: 10, ClampedHigh: 2}, // 20%: fine
			"errors":  {Readings: 4, ClampedHigh: 4},  // too few readings
		}),
	)

	alerts, err := NewAlertEngine(log, DefaultAlertThresholds()).Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %+v", len(alerts), alerts)
	}

	// Sorted by metric name.
	if alerts[0].ID != "clamp-rate-ctr" || alerts[1].ID != "clamp-rate-latency" {
		t.Errorf("alert IDs = %s, %s; want clamp-rate-ctr, clamp-rate-latency", alerts[0].ID, alerts[1].ID)
	}
	if alerts[0].Severity != SeverityHigh {
		t.Errorf("ctr severity = %s, want high", alerts[0].Severity)
	}
	if alerts[1].Severity != SeverityMedium {
		t.Errorf("latency severity = %s, want medium", alerts[1].Severity)
	}
	for _, a := range alerts {
		if a.Condition != "high_clamp_rate" {
			t.Errorf("condition = %s, want high_clamp_rate", a.Condition)
		}
	}
	if !strings.Contains(alerts[1].Message, "30%") {
		t.Errorf("message %q should mention 30%%", alerts[1].Message)
	}
}

func TestAlertEngine_ClampRateAggregatesBatches(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Now().UTC()

	// Neither batch alone has MinReadings readings; together they do.
	writeAll(t, log,
		batchEvent(now, "t-1", now, map[string]MetricTally{"latency": {Readings: 6, ClampedHigh: 3}}),
		batchEvent(now, "t-1", now, map[string]MetricTally{"latency": {Readings: 6, ClampedLow: 1}}),
	)

	alerts, err := NewAlertEngine(log, DefaultAlertThresholds()).Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if findAlert(alerts, "clamp-rate-latency") == nil {
		t.Errorf("expected clamp-rate-latency alert, got %+v", alerts)
	}
}

func TestAlertEngine_StaleBounds(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Now().UTC()

	writeAll(t, log,
		batchEvent(now, "fresh", now.Add(-2*24*time.Hour), map[string]MetricTally{"latency": {Readings: 1}}),
		batchEvent(now, "old", now.Add(-45*24*time.Hour), map[string]MetricTally{"latency": {Readings: 1}}),
	)

	alerts, err := NewAlertEngine(log, DefaultAlertThresholds()).Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d: %+v", len(alerts), alerts)
	}
	a := alerts[0]
	if a.ID != "stale-old" || a.Condition != "stale_bounds" || a.Severity != SeverityLow {
		t.Errorf("unexpected alert %+v", a)
	}
}

func TestAlertEngine_StaleBoundsUsesDataAsOf(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Now().UTC()

	// Transforms built moments before use, as the CLI does on every call.
	oldData := batchEvent(now, "old-data", now, map[string]MetricTally{"latency": {Readings: 1}})
	oldData.Data["data_as_of"] = now.Add(-45 * 24 * time.Hour).Format(time.RFC3339)
	freshData := batchEvent(now, "fresh-data", now.Add(-90*24*time.Hour), map[string]MetricTally{"latency": {Readings: 1}})
	freshData.Data["data_as_of"] = now.Add(-time.Hour).Format(time.RFC3339)
	writeAll(t, log, oldData, freshData)

	alerts, err := NewAlertEngine(log, DefaultAlertThresholds()).Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != "stale-old-data" {
		t.Fatalf("expected only stale-old-data, got %+v", alerts)
	}
	if !strings.Contains(alerts[0].Message, "from data more than 30 days old") {
		t.Errorf("unexpected message %q", alerts[0].Message)
	}
}

func TestAlertEngine_StaleBoundsBadDataAsOfFallsBackToBuiltAt(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Now().UTC()

	e := batchEvent(now, "old", now.Add(-45*24*time.Hour), map[string]MetricTally{"latency": {Readings: 1}})
	e.Data["data_as_of"] = "yesterday"
	writeAll(t, log, e)

	alerts, err := NewAlertEngine(log, DefaultAlertThresholds()).Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if findAlert(alerts, "stale-old") == nil {
		t.Errorf("expected stale-old from built_at, got %+v", alerts)
	}
}

func TestAlertEngine_StaleBoundsDisabled(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Now().UTC()

	writeAll(t, log,
		batchEvent(now, "old", now.Add(-400*24*time.Hour), map[string]MetricTally{"latency": {Readings: 1}}),
	)

	th := DefaultAlertThresholds()
	th.StaleDays = 0
	alerts, err := NewAlertEngine(log, th).Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts with stale check disabled, got %+v", alerts)
	}
}

func TestAlertEngine_IgnoresEventsWithoutBuiltAt(t *testing.T) {
	log, _ := newTestLog(t)

	writeAll(t, log, Event{
		Time:  time.Now().UTC(),
		Level: LevelInfo,
		Type:  eventBatchTransformed,
		Data:  map[string]any{"transform_id": "t-1", "built_at": "not a time"},
	})

	alerts, err := NewAlertEngine(log, DefaultAlertThresholds()).Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %+v", alerts)
	}
}

func TestDefaultAlertThresholds(t *testing.T) {
	th := DefaultAlertThresholds()
	if th.MaxClampFraction != 0.25 {
		t.Errorf("MaxClampFraction = %v, want 0.25", th.MaxClampFraction)
	}
	if th.MinReadings != 10 {
		t.Errorf("MinReadings = %d, want 10", th.MinReadings)
	}
	if th.StaleDays != 30 {
		t.Errorf("StaleDays = %d, want 30", th.StaleDays)
	}
}
