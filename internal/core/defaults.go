package core

import (
	"fmt"

	"github.com/valter-silva-au/winsor/pkg/models"
)

// DefaultQuantileMargin is trimmed from both tails of a single objective
// when no explicit winsorization config is given.
const DefaultQuantileMargin = 0.2

// DefaultBoundSpec derives a bound spec from an optimization config. A
// single objective gets DefaultQuantileMargin on both tails and every other
// metric stays unbounded. Multi-objective problems are not winsorized.
//
// goal is untyped because it usually comes straight from a decoded config
// section; anything that is not an optimization config is rejected.
func DefaultBoundSpec(goal any) (models.BoundSpec, error) {
	g, ok := goal.(models.OptimizationGoal)
	if !ok || isNilGoal(g) {
		return nil, fmt.Errorf("%w, got %T", ErrInvalidOptimizationConfig, goal)
	}

	if g.IsMultiObjective() {
		return models.PerMetricSpec{}, nil
	}

	names := g.ObjectiveMetricNames()
	if len(names) != 1 || names[0] == "" {
		return nil, fmt.Errorf("%w: single-objective config must name one objective metric", ErrInvalidOptimizationConfig)
	}
	return models.PerMetricSpec{
		names[0]: {
			LowerQuantileMargin: DefaultQuantileMargin,
			UpperQuantileMargin: DefaultQuantileMargin,
		},
	}, nil
}

func isNilGoal(g models.OptimizationGoal) bool {
	switch v := g.(type) {
	case *models.OptimizationConfig:
		return v == nil
	case *models.MultiObjectiveOptimizationConfig:
		return v == nil
	}
	return false
}
