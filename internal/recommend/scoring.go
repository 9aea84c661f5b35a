package recommend

import (
	"math"
	"sort"

	"carbon-capture-ai/internal/models"
)

var difficultyPenalty = map[string]float64{
	models.DifficultyLow:    0,
	models.DifficultyMedium: 0.1,
	models.DifficultyHigh:   0.2,
}

var riskPenalty = map[string]float64{
	models.RiskLow:    0,
	models.RiskMedium: 0.15,
	models.RiskHigh:   0.3,
}

// Satisfies reports whether rec passes every active constraint
func Satisfies(rec models.Recommendation, c Constraints) bool {
	impact := rec.Impact

	if c.MaxEnergyIncrease != nil && impact.EnergySavings < 0 &&
		math.Abs(impact.EnergySavings) > *c.MaxEnergyIncrease*100 {
		return false
	}
	if c.MinEfficiencyGain != nil && impact.EfficiencyGain < *c.MinEfficiencyGain {
		return false
	}
	if c.MaxEfficiencyDecrease != nil && impact.EfficiencyGain < -*c.MaxEfficiencyDecrease {
		return false
	}
	if c.MinEnergySavings != nil && impact.EnergySavings < *c.MinEnergySavings {
		return false
	}
	return true
}

// Filter drops recommendations that violate c, keeping order
func Filter(recs []models.Recommendation, c Constraints) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if Satisfies(rec, c) {
			out = append(out, rec)
		}
	}
	return out
}

// Score is the weighted impact of rec reduced by its difficulty and risk
// penalties. Energy savings are scaled down by 10 and risk reduction up by
// 100 to bring the three dimensions to a comparable range.
func Score(rec models.Recommendation, w Weights) float64 {
	score := rec.Impact.EfficiencyGain*w.Efficiency +
		rec.Impact.EnergySavings*w.EnergySavings/10 +
		rec.Impact.MaintenanceRiskReduction*w.MaintenanceRisk*100

	score -= score * difficultyPenalty[rec.Difficulty]
	score -= score * riskPenalty[rec.RiskLevel]
	return score
}

// Prioritize returns recs sorted by descending score with 1-based ranks.
// Equal scores keep generation order.
func Prioritize(recs []models.Recommendation, w Weights) []models.Recommendation {
	out := make([]models.Recommendation, len(recs))
	copy(out, recs)
	for i := range out {
		out[i].PriorityScore = Score(out[i], w)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PriorityScore > out[j].PriorityScore
	})

	for i := range out {
		out[i].PriorityRank = i + 1
	}
	return out
}
