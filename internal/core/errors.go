package core

import "errors"

var (
	// ErrEmptyObservations is returned when there are no readings to derive
	// bounds from.
	ErrEmptyObservations = errors.New("no observations to derive winsorization bounds from")

	// ErrInvalidOptimizationConfig is returned when default bounds are
	// requested from something that is not an optimization config.
	ErrInvalidOptimizationConfig = errors.New("expected optimization_config of type OptimizationConfig")

	// ErrInvalidMargin is returned for a quantile margin outside [0, 1) or a
	// NaN boundary.
	ErrInvalidMargin = errors.New("invalid winsorization margin")

	// ErrInvertedBounds is returned when a metric resolves to lower > upper.
	ErrInvertedBounds = errors.New("lower bound exceeds upper bound")

	// ErrMalformedObservation is returned when a record's means, metric
	// names and covariance disagree in size.
	ErrMalformedObservation = errors.New("malformed observation")
)
