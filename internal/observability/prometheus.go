package observability

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrRegistrationFailed is returned when a collector cannot be registered.
var ErrRegistrationFailed = errors.New("metric registration failed")

// PrometheusRecorder exports live winsorization counters.
//
// Thread Safety: safe for concurrent use; the underlying counter vectors are.
type PrometheusRecorder struct {
	batches  prometheus.Counter
	readings *prometheus.CounterVec
	clamped  *prometheus.CounterVec
}

// NewPrometheusRecorder creates the counters and registers them with reg. A
// nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &PrometheusRecorder{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "winsor",
			Name:      "batches_total",
			Help:      "Observation batches winsorized.",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "winsor",
			Name:      "readings_total",
			Help:      "Bounded readings seen by the clamper, by metric.",
		}, []string{"metric"}),
		clamped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "winsor",
			Name:      "readings_clamped_total",
			Help:      "Readings replaced by a bound, by metric and side.",
		}, []string{"metric", "side"}),
	}

	for _, c := range []prometheus.Collector{r.batches, r.readings, r.clamped} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
		}
	}
	return r, nil
}

// ObserveBatch counts one transformed batch.
func (r *PrometheusRecorder) ObserveBatch() {
	r.batches.Inc()
}

// ObserveMetric adds one batch's counts for a metric.
func (r *PrometheusRecorder) ObserveMetric(metric string, readings, clampedLow, clampedHigh int) {
	r.readings.WithLabelValues(metric).Add(float64(readings))
	if clampedLow > 0 {
		r.clamped.WithLabelValues(metric, "lower").Add(float64(clampedLow))
	}
	if clampedHigh > 0 {
		r.clamped.WithLabelValues(metric, "upper").Add(float64(clampedHigh))
	}
}
