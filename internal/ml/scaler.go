package ml

import "fmt"

// StandardScaler holds per-feature statistics fitted during training
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform standardizes x in place. A zero scale is treated as 1.
func (s *StandardScaler) Transform(x []float64) error {
	if s == nil {
		return nil
	}
	if len(x) != len(s.Mean) || len(x) != len(s.Scale) {
		return fmt.Errorf("scaler fitted on %d features, got %d", len(s.Mean), len(x))
	}
	for i := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		x[i] = (x[i] - s.Mean[i]) / scale
	}
	return nil
}

func (s *StandardScaler) validate(n int) error {
	if s == nil {
		return nil
	}
	if len(s.Mean) != n || len(s.Scale) != n {
		return fmt.Errorf("scaler has %d/%d statistics for %d features", len(s.Mean), len(s.Scale), n)
	}
	return nil
}
