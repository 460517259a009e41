package core

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/valter-silva-au/winsor/pkg/models"
	"pgregory.net/rapid"
)

// =============================================================================
// Generators
// =============================================================================

var propertyMetrics = []string{"latency", "ctr", "revenue", "errors"}

// genInterpolation draws one of the supported interpolations.
func genInterpolation(t *rapid.T) models.Interpolation {
	return rapid.SampledFrom([]models.Interpolation{
		models.InterpolationLinear,
		models.InterpolationNearestObserved,
	}).Draw(t, "interpolation")
}

// genRecord draws an observation over propertyMetrics with finite means.
func genRecord(t *rapid.T, label string) *models.ObservationData {
	n := rapid.IntRange(1, 8).Draw(t, label+"_n")
	names := make([]string, n)
	means := make([]float64, n)
	for i := 0; i < n; i++ {
		names[i] = rapid.SampledFrom(propertyMetrics).Draw(t, fmt.Sprintf("%s_name_%d", label, i))
		means[i] = rapid.Float64Range(-1e6, 1e6).Draw(t, fmt.Sprintf("%s_mean_%d", label, i))
	}
	return record(names, means...)
}

func genCorpus(t *rapid.T) []*models.ObservationData {
	n := rapid.IntRange(1, 5).Draw(t, "records")
	out := make([]*models.ObservationData, n)
	for i := range out {
		out[i] = genRecord(t, fmt.Sprintf("rec%d", i))
	}
	return out
}

// genMargins draws a lower and upper margin that leave a gap between the
// two quantile positions, so rounding in 1-upper can never cross them.
func genMargins(t *rapid.T) (float64, float64) {
	lower := rapid.Float64Range(0, 0.98).Draw(t, "lowerMargin")
	upper := rapid.Float64Range(0, math.Max(0, 0.98-lower)).Draw(t, "upperMargin")
	return lower, upper
}

// pool collects every mean of metric across records.
func pool(records []*models.ObservationData, metric string) []float64 {
	var out []float64
	for _, rec := range records {
		for i, name := range rec.MetricNames {
			if name == metric {
				out = append(out, rec.Means[i])
			}
		}
	}
	return out
}

func cloneAll(records []*models.ObservationData) []*models.ObservationData {
	out := make([]*models.ObservationData, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}

// =============================================================================
// Properties
// =============================================================================

// Property: every resolved bound has lower <= upper.
func TestProperty_LowerNeverExceedsUpper(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genCorpus(t)
		lower, upper := genMargins(t)
		spec := models.GlobalSpec{Rule: models.WinsorizationConfig{LowerQuantileMargin: lower, UpperQuantileMargin: upper}}

		bounds, err := ResolveBounds(records, spec, genInterpolation(t))
		if err != nil {
			t.Fatalf("ResolveBounds() error = %v", err)
		}
		for metric, b := range bounds {
			if b.Lower > b.Upper {
				t.Fatalf("metric %s resolved to %v", metric, b)
			}
		}
	})
}

// Property: any margins either resolve to ordered bounds or fail with
// ErrInvertedBounds, never anything else.
func TestProperty_ArbitraryMarginsOrderedOrRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genCorpus(t)
		spec := models.GlobalSpec{Rule: models.WinsorizationConfig{
			LowerQuantileMargin: rapid.Float64Range(0, 0.99).Draw(t, "lower"),
			UpperQuantileMargin: rapid.Float64Range(0, 0.99).Draw(t, "upper"),
		}}

		bounds, err := ResolveBounds(records, spec, genInterpolation(t))
		if err != nil {
			if !errors.Is(err, ErrInvertedBounds) {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}
		for metric, b := range bounds {
			if b.Lower > b.Upper {
				t.Fatalf("metric %s resolved to %v", metric, b)
			}
		}
	})
}

// Property: zero margins and no boundaries give (min(pool), max(pool)).
func TestProperty_ZeroMarginsGivePoolRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genCorpus(t)

		bounds, err := ResolveBounds(records, models.GlobalSpec{}, genInterpolation(t))
		if err != nil {
			t.Fatalf("ResolveBounds() error = %v", err)
		}
		for metric, b := range bounds {
			values := pool(records, metric)
			want := models.Bounds{Lower: slices.Min(values), Upper: slices.Max(values)}
			if b != want {
				t.Fatalf("metric %s resolved to %v, want %v", metric, b, want)
			}
		}
	})
}

// Property: after clamping with an upper margin and no boundary, no later
// batch reading exceeds the resolved upper quantile.
func TestProperty_ClampedBatchNeverExceedsUpperQuantile(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genCorpus(t)
		margin := rapid.Float64Range(0, 0.99).Draw(t, "upperMargin")
		spec := models.GlobalSpec{Rule: models.WinsorizationConfig{UpperQuantileMargin: margin}}

		w, err := NewWinsorizer(records, WinsorizerOptions{Spec: spec, Interpolation: genInterpolation(t)})
		if err != nil {
			t.Fatalf("NewWinsorizer() error = %v", err)
		}

		batches := rapid.IntRange(1, 3).Draw(t, "batches")
		for i := 0; i < batches; i++ {
			batch := []*models.ObservationData{genRecord(t, fmt.Sprintf("batch%d", i))}
			if _, err := w.TransformObservationData(batch); err != nil {
				t.Fatalf("TransformObservationData() error = %v", err)
			}
			for j, name := range batch[0].MetricNames {
				b, ok := w.BoundsFor(name)
				if !ok {
					continue
				}
				if v := batch[0].Means[j]; v > b.Upper {
					t.Fatalf("batch %d reading %s = %v exceeds upper %v", i, name, v, b.Upper)
				}
			}
		}
	})
}

// Property: an explicit boundary always wins over the quantile on its side.
func TestProperty_BoundaryOverridesQuantile(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genCorpus(t)
		lower, upper := genMargins(t)
		metric := rapid.SampledFrom(propertyMetrics).Draw(t, "metric")
		lowerBoundary := rapid.Float64Range(-2e6, -1e6).Draw(t, "lowerBoundary")
		upperBoundary := rapid.Float64Range(1e6, 2e6).Draw(t, "upperBoundary")

		rule := models.WinsorizationConfig{LowerQuantileMargin: lower, UpperQuantileMargin: upper}
		if rapid.Bool().Draw(t, "setLower") {
			rule.LowerBoundary = models.Float(lowerBoundary)
		}
		if rapid.Bool().Draw(t, "setUpper") {
			rule.UpperBoundary = models.Float(upperBoundary)
		}

		bounds, err := ResolveBounds(records, models.PerMetricSpec{metric: rule}, genInterpolation(t))
		if err != nil {
			t.Fatalf("ResolveBounds() error = %v", err)
		}
		b := bounds[metric]
		if rule.LowerBoundary != nil && b.Lower != lowerBoundary {
			t.Fatalf("lower = %v, want boundary %v", b.Lower, lowerBoundary)
		}
		if rule.UpperBoundary != nil && b.Upper != upperBoundary {
			t.Fatalf("upper = %v, want boundary %v", b.Upper, upperBoundary)
		}
	})
}

// Property: a metric never seen at construction resolves to unbounded and
// passes through clamping unchanged.
func TestProperty_UnseenMetricUntouched(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genCorpus(t)
		lower, upper := genMargins(t)
		spec := models.GlobalSpec{Rule: models.WinsorizationConfig{LowerQuantileMargin: lower, UpperQuantileMargin: upper}}

		w, err := NewWinsorizer(records, WinsorizerOptions{Spec: spec})
		if err != nil {
			t.Fatalf("NewWinsorizer() error = %v", err)
		}

		const unseen = "never_seen"
		b, ok := w.BoundsFor(unseen)
		if ok || !b.IsUnbounded() {
			t.Fatalf("BoundsFor(%q) = %v, %v; want unbounded, false", unseen, b, ok)
		}

		v := rapid.Float64Range(-1e12, 1e12).Draw(t, "value")
		batch := []*models.ObservationData{record([]string{unseen}, v)}
		if _, err := w.TransformObservationData(batch); err != nil {
			t.Fatalf("TransformObservationData() error = %v", err)
		}
		if batch[0].Means[0] != v {
			t.Fatalf("unseen metric changed from %v to %v", v, batch[0].Means[0])
		}
	})
}

// Property: clamping twice equals clamping once, and covariances and
// metric names are never touched.
func TestProperty_ClampIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genCorpus(t)
		lower, upper := genMargins(t)
		spec := models.GlobalSpec{Rule: models.WinsorizationConfig{LowerQuantileMargin: lower, UpperQuantileMargin: upper}}
		bounds, err := ResolveBounds(records, spec, genInterpolation(t))
		if err != nil {
			t.Fatalf("ResolveBounds() error = %v", err)
		}

		// The trailing reading names a metric no corpus record can carry.
		gen := genRecord(t, "batch")
		unseenValue := rapid.Float64Range(-1e6, 1e6).Draw(t, "unseenValue")
		batch := []*models.ObservationData{record(append(gen.MetricNames, "never_seen"), append(gen.Means, unseenValue)...)}
		original := cloneAll(batch)

		ClampObservations(batch, bounds)
		once := cloneAll(batch)
		ClampObservations(batch, bounds)

		if diff := cmp.Diff(once, batch); diff != "" {
			t.Fatalf("second clamp changed the batch (-once +twice):\n%s", diff)
		}
		if diff := cmp.Diff(original[0].Covariance, batch[0].Covariance); diff != "" {
			t.Fatalf("covariance modified:\n%s", diff)
		}
		if diff := cmp.Diff(original[0].MetricNames, batch[0].MetricNames); diff != "" {
			t.Fatalf("metric names modified:\n%s", diff)
		}
		for i, v := range batch[0].Means {
			name := batch[0].MetricNames[i]
			b, ok := bounds[name]
			if !ok {
				if v != original[0].Means[i] {
					t.Fatalf("unseen metric %s changed from %v to %v", name, original[0].Means[i], v)
				}
				continue
			}
			if want := b.Clamp(original[0].Means[i]); v != want {
				t.Fatalf("reading %d = %v, want %v", i, v, want)
			}
		}
		if last := len(batch[0].Means) - 1; batch[0].Means[last] != unseenValue {
			t.Fatalf("unseen reading = %v, want %v", batch[0].Means[last], unseenValue)
		}
	})
}
