package core

import (
	"sort"

	"github.com/valter-silva-au/winsor/pkg/models"
)

// MetricClampCount tallies how many readings of one metric were seen and
// how many were pulled in from each side.
type MetricClampCount struct {
	Readings    int `json:"readings"`
	ClampedLow  int `json:"clamped_low"`
	ClampedHigh int `json:"clamped_high"`
}

// Clamped returns the number of readings changed on either side.
func (c MetricClampCount) Clamped() int {
	return c.ClampedLow + c.ClampedHigh
}

// ClampReport summarizes one ClampObservations call.
type ClampReport struct {
	Records  int                         `json:"records"`
	Readings int                         `json:"readings"`
	ByMetric map[string]MetricClampCount `json:"by_metric"`
}

// Clamped returns the total number of readings changed.
func (r ClampReport) Clamped() int {
	n := 0
	for _, c := range r.ByMetric {
		n += c.Clamped()
	}
	return n
}

// Metrics returns the metric names in the report in sorted order.
func (r ClampReport) Metrics() []string {
	names := make([]string, 0, len(r.ByMetric))
	for name := range r.ByMetric {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClampObservations limits every mean to its metric's bounds, in place.
// Metrics that are unbounded or missing from bounds are left alone, and the
// covariance is never touched. Applying it twice gives the same result as
// applying it once.
func ClampObservations(records []*models.ObservationData, bounds map[string]models.Bounds) ClampReport {
	report := ClampReport{
		Records:  len(records),
		ByMetric: make(map[string]MetricClampCount),
	}

	for _, rec := range records {
		if rec == nil {
			continue
		}
		n := min(len(rec.MetricNames), len(rec.Means))
		for i := 0; i < n; i++ {
			name := rec.MetricNames[i]
			report.Readings++
			b, ok := bounds[name]
			if !ok || b.IsUnbounded() {
				continue
			}

			count := report.ByMetric[name]
			count.Readings++
			v := rec.Means[i]
			switch {
			case v < b.Lower:
				rec.Means[i] = b.Lower
				count.ClampedLow++
			case v > b.Upper:
				rec.Means[i] = b.Upper
				count.ClampedHigh++
			}
			report.ByMetric[name] = count
		}
	}

	return report
}
