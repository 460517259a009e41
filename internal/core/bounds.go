package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/valter-silva-au/winsor/pkg/models"
)

// ResolveBounds pools the means of every record by metric name and derives a
// (lower, upper) pair per metric from spec. Pooled metrics without a rule
// resolve to unbounded. Metrics named by spec but absent from the pool keep
// any explicit boundary and are unbounded on the other sides.
//
// A nil spec leaves every metric unbounded.
func ResolveBounds(records []*models.ObservationData, spec models.BoundSpec, interp models.Interpolation) (map[string]models.Bounds, error) {
	pools, err := poolObservations(records)
	if err != nil {
		return nil, err
	}
	if !interp.Valid() {
		return nil, fmt.Errorf("unknown interpolation %q", interp)
	}

	metrics := make([]string, 0, len(pools))
	for metric := range pools {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	bounds := make(map[string]models.Bounds, len(pools))
	for _, metric := range metrics {
		values := pools[metric]
		b := models.Unbounded()
		if spec != nil {
			if rule, ok := spec.RuleFor(metric); ok {
				if b, err = boundsFromPool(metric, values, rule, interp); err != nil {
					return nil, err
				}
			}
		}
		bounds[metric] = b
	}

	if spec != nil {
		for _, metric := range spec.Metrics() {
			if _, pooled := bounds[metric]; pooled {
				continue
			}
			rule, _ := spec.RuleFor(metric)
			b, err := boundsFromPool(metric, nil, rule, interp)
			if err != nil {
				return nil, err
			}
			bounds[metric] = b
		}
	}

	return bounds, nil
}

// poolObservations groups every non-NaN mean by metric name and sorts each
// pool ascending.
func poolObservations(records []*models.ObservationData) (map[string][]float64, error) {
	readings := 0
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedObservation, i, err)
		}
		readings += len(rec.Means)
	}
	if readings == 0 {
		return nil, ErrEmptyObservations
	}

	pools := make(map[string][]float64)
	for _, rec := range records {
		for j, name := range rec.MetricNames {
			v := rec.Means[j]
			if _, ok := pools[name]; !ok {
				pools[name] = nil
			}
			if math.IsNaN(v) {
				continue
			}
			pools[name] = append(pools[name], v)
		}
	}
	for _, values := range pools {
		sort.Float64s(values)
	}
	return pools, nil
}

// boundsFromPool applies one rule to a sorted pool. An empty pool yields
// infinite sides wherever no boundary is configured.
func boundsFromPool(metric string, sorted []float64, rule models.WinsorizationConfig, interp models.Interpolation) (models.Bounds, error) {
	if err := ValidateRule(rule); err != nil {
		return models.Bounds{}, fmt.Errorf("metric %q: %w", metric, err)
	}

	b := models.Unbounded()
	if len(sorted) > 0 {
		b.Lower = quantile(sorted, rule.LowerQuantileMargin, interp, lowerSide)
		b.Upper = quantile(sorted, 1-rule.UpperQuantileMargin, interp, upperSide)
	}
	if rule.LowerBoundary != nil {
		b.Lower = *rule.LowerBoundary
	}
	if rule.UpperBoundary != nil {
		b.Upper = *rule.UpperBoundary
	}

	if b.Lower > b.Upper {
		return models.Bounds{}, fmt.Errorf("%w: metric %q resolved to %s", ErrInvertedBounds, metric, b)
	}
	return b, nil
}

// ValidateRule checks that both margins lie in [0, 1) and that no boundary
// is NaN.
func ValidateRule(rule models.WinsorizationConfig) error {
	margins := []struct {
		name  string
		value float64
	}{
		{"lower_quantile_margin", rule.LowerQuantileMargin},
		{"upper_quantile_margin", rule.UpperQuantileMargin},
	}
	for _, m := range margins {
		if math.IsNaN(m.value) || m.value < 0 || m.value >= 1 {
			return fmt.Errorf("%w: %s must be in [0, 1), got %v", ErrInvalidMargin, m.name, m.value)
		}
	}
	if rule.LowerBoundary != nil && math.IsNaN(*rule.LowerBoundary) {
		return fmt.Errorf("%w: lower_boundary is NaN", ErrInvalidMargin)
	}
	if rule.UpperBoundary != nil && math.IsNaN(*rule.UpperBoundary) {
		return fmt.Errorf("%w: upper_boundary is NaN", ErrInvalidMargin)
	}
	return nil
}
