package recommend

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Strategy names
const (
	StrategyEfficiencyFocused      = "efficiency_focused"
	StrategyEnergyEfficient        = "energy_efficient"
	StrategyMaintenancePrioritized = "maintenance_prioritized"
	StrategyBalanced               = "balanced"
)

// domainWeightGate is the weight a domain needs before its candidates are generated
const domainWeightGate = 0.3

// Weights are the priority weights of a strategy
type Weights struct {
	Efficiency      float64 `json:"efficiency" yaml:"efficiency"`
	EnergySavings   float64 `json:"energy_savings" yaml:"energy_savings"`
	MaintenanceRisk float64 `json:"maintenance_risk" yaml:"maintenance_risk"`
}

// Constraints are the optional numeric limits of a strategy. A nil limit is inactive.
type Constraints struct {
	// fraction; energy increases above MaxEnergyIncrease*100 kWh are rejected
	MaxEnergyIncrease     *float64 `json:"max_energy_increase,omitempty" yaml:"max_energy_increase"`
	MinEfficiencyGain     *float64 `json:"min_efficiency_gain,omitempty" yaml:"min_efficiency_gain"`
	MaxEfficiencyDecrease *float64 `json:"max_efficiency_decrease,omitempty" yaml:"max_efficiency_decrease"`
	MinEnergySavings      *float64 `json:"min_energy_savings,omitempty" yaml:"min_energy_savings"`
	// informational; recorded on the plan but not used for filtering
	MaxMaintenanceRisk    *float64 `json:"max_maintenance_risk,omitempty" yaml:"max_maintenance_risk"`
	MaintenanceWindowDays *int     `json:"maintenance_window_days,omitempty" yaml:"maintenance_window_days"`
	BalancedTradeoff      bool     `json:"balanced_tradeoff,omitempty" yaml:"balanced_tradeoff"`
}

// Strategy is a named weighting and constraint profile
type Strategy struct {
	Name            string      `json:"name" yaml:"-"`
	PriorityWeights Weights     `json:"priority_weights" yaml:"priority_weights"`
	Constraints     Constraints `json:"constraints" yaml:"constraints"`
}

// Strategies maps strategy names to templates
type Strategies map[string]Strategy

func ptr[T any](v T) *T { return &v }

// DefaultStrategies returns the built-in strategy templates
func DefaultStrategies() Strategies {
	return Strategies{
		StrategyEfficiencyFocused: {
			Name:            StrategyEfficiencyFocused,
			PriorityWeights: Weights{Efficiency: 0.5, EnergySavings: 0.3, MaintenanceRisk: 0.2},
			Constraints: Constraints{
				MaxEnergyIncrease: ptr(0.05),
				MinEfficiencyGain: ptr(0.02),
			},
		},
		StrategyEnergyEfficient: {
			Name:            StrategyEnergyEfficient,
			PriorityWeights: Weights{Efficiency: 0.2, EnergySavings: 0.6, MaintenanceRisk: 0.2},
			Constraints: Constraints{
				MaxEfficiencyDecrease: ptr(0.01),
				MinEnergySavings:      ptr(50.0),
			},
		},
		StrategyMaintenancePrioritized: {
			Name:            StrategyMaintenancePrioritized,
			PriorityWeights: Weights{Efficiency: 0.2, EnergySavings: 0.2, MaintenanceRisk: 0.6},
			Constraints: Constraints{
				MaxMaintenanceRisk:    ptr(0.3),
				MaintenanceWindowDays: ptr(30),
			},
		},
		StrategyBalanced: {
			Name:            StrategyBalanced,
			PriorityWeights: Weights{Efficiency: 0.33, EnergySavings: 0.33, MaintenanceRisk: 0.34},
			Constraints:     Constraints{BalancedTradeoff: true},
		},
	}
}

// Get returns the named strategy
func (s Strategies) Get(name string) (Strategy, bool) {
	st, ok := s[name]
	return st, ok
}

// Names returns the strategy names in sorted order
func (s Strategies) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadStrategies reads strategy templates from a YAML file keyed by name.
// Entries override the built-in templates of the same name.
func LoadStrategies(path string) (Strategies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}
	return ParseStrategies(data)
}

// ParseStrategies merges YAML strategy templates over the built-in ones
func ParseStrategies(data []byte) (Strategies, error) {
	var overrides map[string]Strategy
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse strategy file: %w", err)
	}

	out := DefaultStrategies()
	for name, st := range overrides {
		w := st.PriorityWeights
		sum := w.Efficiency + w.EnergySavings + w.MaintenanceRisk
		if sum < 0.95 || sum > 1.05 {
			return nil, fmt.Errorf("strategy %s: priority weights sum to %.2f, want about 1", name, sum)
		}
		st.Name = name
		out[name] = st
	}
	return out, nil
}
