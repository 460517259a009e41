// Package mcp provides an MCP (Model Context Protocol) server that exposes
// winsorization as MCP tools for AI coding assistants and notebooks.
package mcp

import (
	"context"
	"fmt"
	"math"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/winsor/internal/core"
	"github.com/valter-silva-au/winsor/internal/observability"
	"github.com/valter-silva-au/winsor/internal/storage"
	"github.com/valter-silva-au/winsor/pkg/models"
)

// WinsorizerFactory builds a transform from a corpus using the loaded
// configuration. dataAsOf is the corpus file's modification time.
type WinsorizerFactory func(records []*models.ObservationData, dataAsOf time.Time) (*core.Winsorizer, error)

// Server wraps winsor services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	store       storage.ObservationStore
	factory     WinsorizerFactory
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server with the given service dependencies.
// metricsCalc and alertEngine may be nil if observability is disabled.
func NewServer(store storage.ObservationStore, factory WinsorizerFactory, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		store:       store,
		factory:     factory,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "winsor", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type resolveBoundsInput struct {
	CorpusPath string `json:"corpus_path" jsonschema:"required,path to the observations YAML file the bounds are derived from"`
}

// boundOutput omits a side when it is infinite, since JSON has no infinity.
type boundOutput struct {
	Metric string   `json:"metric"`
	Lower  *float64 `json:"lower,omitempty"`
	Upper  *float64 `json:"upper,omitempty"`
}

type resolveBoundsOutput struct {
	TransformID   string        `json:"transform_id"`
	Interpolation string        `json:"interpolation"`
	Bounds        []boundOutput `json:"bounds"`
}

type winsorizeBatchInput struct {
	CorpusPath string `json:"corpus_path" jsonschema:"required,path to the observations YAML file the bounds are derived from"`
	BatchPath  string `json:"batch_path" jsonschema:"required,path to the observations YAML file to winsorize"`
	OutPath    string `json:"out_path,omitempty" jsonschema:"where to write the winsorized batch. Defaults to overwriting batch_path."`
}

type winsorizeBatchOutput struct {
	TransformID string `json:"transform_id"`
	Records     int    `json:"records"`
	Readings    int    `json:"readings"`
	Clamped     int    `json:"clamped"`
	OutPath     string `json:"out_path"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TransformsBuilt    int                                  `json:"transforms_built"`
	BatchesTransformed int                                  `json:"batches_transformed"`
	ReadingsSeen       int                                  `json:"readings_seen"`
	ReadingsClamped    int                                  `json:"readings_clamped"`
	ByMetric           map[string]observability.MetricTally `json:"by_metric"`
	EventCount         int                                  `json:"event_count"`
	OldestEvent        string                               `json:"oldest_event,omitempty"`
	NewestEvent        string                               `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "resolve_bounds",
		Description: "Resolve per-metric winsorization bounds from an observations file using the configured rules. Infinite sides are omitted.",
	}, s.handleResolveBounds)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "winsorize_batch",
		Description: "Derive bounds from a corpus file, clamp every mean in a batch file to them and write the result.",
	}, s.handleWinsorizeBatch)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated winsorization metrics from the event log: transforms built, batches, readings clamped per metric.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (high clamp rates, stale bounds).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleResolveBounds(_ context.Context, _ *gomcp.CallToolRequest, input resolveBoundsInput) (*gomcp.CallToolResult, resolveBoundsOutput, error) {
	if input.CorpusPath == "" {
		return errorResult("corpus_path is required"), resolveBoundsOutput{}, nil
	}

	w, err := s.build(input.CorpusPath)
	if err != nil {
		return errorResult(err.Error()), resolveBoundsOutput{}, nil
	}

	out := resolveBoundsOutput{
		TransformID:   w.ID(),
		Interpolation: string(w.Interpolation()),
		Bounds:        make([]boundOutput, 0, len(w.Metrics())),
	}
	for _, metric := range w.Metrics() {
		b, _ := w.BoundsFor(metric)
		out.Bounds = append(out.Bounds, toBoundOutput(metric, b))
	}
	return nil, out, nil
}

func (s *Server) handleWinsorizeBatch(_ context.Context, _ *gomcp.CallToolRequest, input winsorizeBatchInput) (*gomcp.CallToolResult, winsorizeBatchOutput, error) {
	if input.CorpusPath == "" {
		return errorResult("corpus_path is required"), winsorizeBatchOutput{}, nil
	}
	if input.BatchPath == "" {
		return errorResult("batch_path is required"), winsorizeBatchOutput{}, nil
	}

	w, err := s.build(input.CorpusPath)
	if err != nil {
		return errorResult(err.Error()), winsorizeBatchOutput{}, nil
	}

	batch, err := s.store.Load(input.BatchPath)
	if err != nil {
		return errorResult(fmt.Sprintf("loading batch: %s", err)), winsorizeBatchOutput{}, nil
	}
	report, err := w.Apply(batch)
	if err != nil {
		return errorResult(fmt.Sprintf("winsorizing batch: %s", err)), winsorizeBatchOutput{}, nil
	}

	outPath := input.OutPath
	if outPath == "" {
		outPath = input.BatchPath
	}
	if err := s.store.Save(outPath, batch); err != nil {
		return errorResult(fmt.Sprintf("saving batch: %s", err)), winsorizeBatchOutput{}, nil
	}

	return nil, winsorizeBatchOutput{
		TransformID: w.ID(),
		Records:     report.Records,
		Readings:    report.Readings,
		Clamped:     report.Clamped(),
		OutPath:     outPath,
	}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TransformsBuilt:    metrics.TransformsBuilt,
		BatchesTransformed: metrics.BatchesTransformed,
		ReadingsSeen:       metrics.ReadingsSeen,
		ReadingsClamped:    metrics.ReadingsClamped,
		ByMetric:           metrics.ByMetric,
		EventCount:         metrics.EventCount,
	}
	if out.ByMetric == nil {
		out.ByMetric = make(map[string]observability.MetricTally)
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func (s *Server) build(corpusPath string) (*core.Winsorizer, error) {
	corpus, err := s.store.Load(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %s", err)
	}
	asOf, err := s.store.ModTime(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %s", err)
	}
	w, err := s.factory(corpus, asOf)
	if err != nil {
		return nil, fmt.Errorf("building transform: %s", err)
	}
	return w, nil
}

func toBoundOutput(metric string, b models.Bounds) boundOutput {
	out := boundOutput{Metric: metric}
	if !math.IsInf(b.Lower, 0) {
		lower := b.Lower
		out.Lower = &lower
	}
	if !math.IsInf(b.Upper, 0) {
		upper := b.Upper
		out.Upper = &upper
	}
	return out
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{ByMetric: make(map[string]observability.MetricTally)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
