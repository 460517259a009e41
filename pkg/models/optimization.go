package models

// Objective names the metric an experiment optimizes. The default bounds
// trim both tails alike, so the optimization direction is not carried.
type Objective struct {
	MetricName string `yaml:"metric" json:"metric" mapstructure:"metric"`
}

// OptimizationGoal is the view of an optimization config that default bound
// derivation needs.
type OptimizationGoal interface {
	IsMultiObjective() bool
	ObjectiveMetricNames() []string
}

// OptimizationConfig describes a single-objective optimization problem.
type OptimizationConfig struct {
	Objective Objective `yaml:"objective" json:"objective"`
}

func (c *OptimizationConfig) IsMultiObjective() bool { return false }

func (c *OptimizationConfig) ObjectiveMetricNames() []string {
	return []string{c.Objective.MetricName}
}

// MultiObjectiveOptimizationConfig describes a problem with several
// objectives traded off against each other.
type MultiObjectiveOptimizationConfig struct {
	Objectives []Objective `yaml:"objectives" json:"objectives"`
}

func (c *MultiObjectiveOptimizationConfig) IsMultiObjective() bool { return true }

func (c *MultiObjectiveOptimizationConfig) ObjectiveMetricNames() []string {
	names := make([]string, len(c.Objectives))
	for i, o := range c.Objectives {
		names[i] = o.MetricName
	}
	return names
}
