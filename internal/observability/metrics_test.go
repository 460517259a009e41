package observability

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// batchEvent builds a batch_transformed event the way the winsorizer logs it.
func batchEvent(at time.Time, transformID string, builtAt time.Time, tallies map[string]MetricTally) Event {
	byMetric := make(map[string]any, len(tallies))
	readings, clamped := 0, 0
	for metric, t := range tallies {
		byMetric[metric] = map[string]any{
			"readings":     t.Readings,
			"clamped_low":  t.ClampedLow,
			"clamped_high": t.ClampedHigh,
		}
		readings += t.Readings
		clamped += t.ClampedLow + t.ClampedHigh
	}
	return Event{
		Time:    at,
		Level:   LevelInfo,
		Type:    eventBatchTransformed,
		Message: eventBatchTransformed,
		Data: map[string]any{
			"transform_id": transformID,
			"built_at":     builtAt.Format(time.RFC3339),
			"records":      1,
			"readings":     readings,
			"clamped":      clamped,
			"by_metric":    byMetric,
		},
	}
}

func resolvedEvent(at time.Time, transformID string) Event {
	return Event{
		Time:    at,
		Level:   LevelInfo,
		Type:    eventBoundsResolved,
		Message: eventBoundsResolved,
		Data:    map[string]any{"transform_id": transformID, "records": 3, "metrics": 2},
	}
}

func TestMetricsCalculator_Aggregates(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Now().UTC().Truncate(time.Second)

	writeAll(t, log,
		resolvedEvent(now.Add(-3*time.Hour), "t-1"),
		batchEvent(now.Add(-2*time.Hour), "t-1", now.Add(-3*time.Hour), map[string]MetricTally{
			"latency": {Readings: 4, ClampedHigh: 1},
			"ctr":     {Readings: 4, ClampedLow: 2},
		}),
		batchEvent(now.Add(-time.Hour), "t-1", now.Add(-3*time.Hour), map[string]MetricTally{
			"latency": {Readings: 6, ClampedLow: 1, ClampedHigh: 2},
		}),
	)

	m, err := NewMetricsCalculator(log).Calculate(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	if m.EventCount != 3 {
		t.Errorf("EventCount = %d, want 3", m.EventCount)
	}
	if m.TransformsBuilt != 1 {
		t.Errorf("TransformsBuilt = %d, want 1", m.TransformsBuilt)
	}
	if m.BatchesTransformed != 2 {
		t.Errorf("BatchesTransformed = %d, want 2", m.BatchesTransformed)
	}
	if m.RecordsSeen != 2 {
		t.Errorf("RecordsSeen = %d, want 2", m.RecordsSeen)
	}
	if m.ReadingsSeen != 14 {
		t.Errorf("ReadingsSeen = %d, want 14", m.ReadingsSeen)
	}
	if m.ReadingsClamped != 6 {
		t.Errorf("ReadingsClamped = %d, want 6", m.ReadingsClamped)
	}

	want := map[string]MetricTally{
		"latency": {Readings: 10, ClampedLow: 1, ClampedHigh: 3},
		"ctr":     {Readings: 4, ClampedLow: 2},
	}
	if diff := cmp.Diff(want, m.ByMetric); diff != "" {
		t.Errorf("ByMetric mismatch (-want +got):\n%s", diff)
	}

	if m.OldestEvent == nil || !m.OldestEvent.Equal(now.Add(-3*time.Hour)) {
		t.Errorf("OldestEvent = %v, want %v", m.OldestEvent, now.Add(-3*time.Hour))
	}
	if m.NewestEvent == nil || !m.NewestEvent.Equal(now.Add(-time.Hour)) {
		t.Errorf("NewestEvent = %v, want %v", m.NewestEvent, now.Add(-time.Hour))
	}
}

func TestMetricsCalculator_SinceExcludesOlder(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Now().UTC()

	writeAll(t, log,
		resolvedEvent(now.Add(-10*24*time.Hour), "old"),
		resolvedEvent(now.Add(-time.Hour), "new"),
	)

	m, err := NewMetricsCalculator(log).Calculate(now.Add(-7 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if m.TransformsBuilt != 1 {
		t.Errorf("TransformsBuilt = %d, want 1", m.TransformsBuilt)
	}
}

func TestMetricsCalculator_EmptyLog(t *testing.T) {
	log, _ := newTestLog(t)

	m, err := NewMetricsCalculator(log).Calculate(time.Time{})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if m.EventCount != 0 || m.OldestEvent != nil || m.NewestEvent != nil {
		t.Errorf("expected empty metrics, got %+v", m)
	}
	if m.ByMetric == nil {
		t.Error("ByMetric should be non-nil")
	}
}

func TestMetricTally_ClampFraction(t *testing.T) {
	tests := []struct {
		name  string
		tally MetricTally
		want  float64
	}{
		{"no readings", MetricTally{}, 0},
		{"none clamped", MetricTally{Readings: 5}, 0},
		{"both sides", MetricTally{Readings: 8, ClampedLow: 1, ClampedHigh: 1}, 0.25},
		{"all clamped", MetricTally{Readings: 2, ClampedHigh: 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tally.ClampFraction(); got != tt.want {
				t.Errorf("ClampFraction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntField(t *testing.T) {
	data := map[string]any{"i": 3, "i64": int64(4), "f": 5.0, "s": "6"}
	for key, want := range map[string]int{"i": 3, "i64": 4, "f": 5, "s": 0, "missing": 0} {
		if got := intField(data, key); got != want {
			t.Errorf("intField(%q) = %d, want %d", key, got, want)
		}
	}
}
