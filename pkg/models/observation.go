package models

import "fmt"

// ObservationData holds the metric readings of one evaluated configuration.
// A metric name may appear more than once; each occurrence is a separate
// reading. Covariance is carried alongside the means and is never modified
// by winsorization.
type ObservationData struct {
	Arm         string      `yaml:"arm,omitempty" json:"arm,omitempty"`
	MetricNames []string    `yaml:"metric_names" json:"metric_names"`
	Means       []float64   `yaml:"means" json:"means"`
	Covariance  [][]float64 `yaml:"covariance,omitempty" json:"covariance,omitempty"`
}

// Validate checks that the reading count matches the metric-name count and
// the covariance dimensions.
func (o *ObservationData) Validate() error {
	if o == nil {
		return fmt.Errorf("observation is nil")
	}
	n := len(o.MetricNames)
	if len(o.Means) != n {
		return fmt.Errorf("observation has %d metric names but %d means", n, len(o.Means))
	}
	if len(o.Covariance) != n {
		return fmt.Errorf("observation has %d readings but a %d-row covariance", n, len(o.Covariance))
	}
	for i, row := range o.Covariance {
		if len(row) != n {
			return fmt.Errorf("covariance row %d has %d columns, want %d", i, len(row), n)
		}
	}
	return nil
}

// Clone returns a deep copy of the observation.
func (o *ObservationData) Clone() *ObservationData {
	if o == nil {
		return nil
	}
	c := &ObservationData{
		Arm:         o.Arm,
		MetricNames: append([]string(nil), o.MetricNames...),
		Means:       append([]float64(nil), o.Means...),
	}
	if o.Covariance != nil {
		c.Covariance = make([][]float64, len(o.Covariance))
		for i, row := range o.Covariance {
			c.Covariance[i] = append([]float64(nil), row...)
		}
	}
	return c
}

// Identity returns an n x n identity matrix, the covariance used for
// readings with independent unit noise.
func Identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}
