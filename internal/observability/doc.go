// Package observability records what the winsorizer did and derives
// statistics from it. Events are persisted as JSON Lines (JSONL); metrics
// and clamp-rate alerts are computed on demand from the event log, and live
// counters are exported through Prometheus.
package observability
