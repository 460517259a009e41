package core

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// ClampRecorder receives per-metric clamp counts after every transformed
// batch. Implemented by the Prometheus collector in observability.
type ClampRecorder interface {
	RecordClamps(report ClampReport)
}

// Event types emitted by the Winsorizer.
const (
	EventBoundsResolved   = "winsorize.bounds_resolved"
	EventBatchTransformed = "winsorize.batch_transformed"
)
