package models

import (
	"fmt"
	"math"
	"sort"
)

// WinsorizationConfig is the rule applied to one metric. Margins are the
// fraction of each tail trimmed when the bound is derived from data. A
// boundary, when set, replaces the quantile-derived value on its side.
type WinsorizationConfig struct {
	LowerQuantileMargin float64  `yaml:"lower_quantile_margin,omitempty" json:"lower_quantile_margin,omitempty" mapstructure:"lower_quantile_margin"`
	UpperQuantileMargin float64  `yaml:"upper_quantile_margin,omitempty" json:"upper_quantile_margin,omitempty" mapstructure:"upper_quantile_margin"`
	LowerBoundary       *float64 `yaml:"lower_boundary,omitempty" json:"lower_boundary,omitempty" mapstructure:"lower_boundary"`
	UpperBoundary       *float64 `yaml:"upper_boundary,omitempty" json:"upper_boundary,omitempty" mapstructure:"upper_boundary"`
}

// Float returns a pointer to v, for populating boundaries.
func Float(v float64) *float64 {
	return &v
}

// BoundSpec selects the winsorization rule for each metric. It is either a
// GlobalSpec applied to every metric or a PerMetricSpec keyed by name.
type BoundSpec interface {
	// RuleFor returns the rule configured for the metric, if any.
	RuleFor(metric string) (WinsorizationConfig, bool)
	// Metrics returns the explicitly named metrics in sorted order. A
	// GlobalSpec names none.
	Metrics() []string

	isBoundSpec()
}

// GlobalSpec applies one rule to every metric.
type GlobalSpec struct {
	Rule WinsorizationConfig
}

func (s GlobalSpec) RuleFor(string) (WinsorizationConfig, bool) { return s.Rule, true }
func (s GlobalSpec) Metrics() []string                          { return nil }
func (GlobalSpec) isBoundSpec()                                  {}

// PerMetricSpec maps metric names to their rules. Metrics not in the map are
// left unbounded.
type PerMetricSpec map[string]WinsorizationConfig

func (s PerMetricSpec) RuleFor(metric string) (WinsorizationConfig, bool) {
	r, ok := s[metric]
	return r, ok
}

func (s PerMetricSpec) Metrics() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (PerMetricSpec) isBoundSpec() {}

// Bounds is a resolved (lower, upper) pair for one metric.
type Bounds struct {
	Lower float64 `yaml:"lower" json:"lower"`
	Upper float64 `yaml:"upper" json:"upper"`
}

// Unbounded returns (-Inf, +Inf), the bounds of a metric nothing was
// configured to touch.
func Unbounded() Bounds {
	return Bounds{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// IsUnbounded reports whether both sides are infinite.
func (b Bounds) IsUnbounded() bool {
	return math.IsInf(b.Lower, -1) && math.IsInf(b.Upper, 1)
}

// Clamp returns v limited to [Lower, Upper].
func (b Bounds) Clamp(v float64) float64 {
	return math.Max(b.Lower, math.Min(b.Upper, v))
}

func (b Bounds) String() string {
	return fmt.Sprintf("(%g, %g)", b.Lower, b.Upper)
}

// Interpolation selects how a quantile is read off the pooled sorted values.
type Interpolation string

const (
	// InterpolationLinear interpolates linearly between the two order
	// statistics surrounding the quantile position.
	InterpolationLinear Interpolation = "linear"
	// InterpolationNearestObserved picks an observed value: the one at or
	// below the position for a lower bound, at or above it for an upper
	// bound. Bounds never fall strictly between two observations.
	InterpolationNearestObserved Interpolation = "nearest_observed"
)

// Valid reports whether i names a known interpolation. The empty value is
// valid and means linear.
func (i Interpolation) Valid() bool {
	switch i {
	case "", InterpolationLinear, InterpolationNearestObserved:
		return true
	}
	return false
}
