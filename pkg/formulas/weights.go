package formulas

// Tolerance constants for floating-point weight comparisons
const (
	WeightTolerance = 1e-6
	Epsilon         = 1e-12
)

// NormalizeWeights scales weights so they sum to 1.0.
// A non-positive total returns the input unchanged.
func NormalizeWeights(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	var total float64
	for k, v := range weights {
		out[k] = v
		total += v
	}
	if total <= 0 {
		return out
	}
	for k, v := range out {
		out[k] = v / total
	}
	return out
}

// SumWeights returns the sum of all weights
func SumWeights(weights map[string]float64) float64 {
	var total float64
	for _, v := range weights {
		total += v
	}
	return total
}

// WeightsSumToOne reports whether weights sum to 1.0 within tolerance
func WeightsSumToOne(weights map[string]float64) bool {
	total := SumWeights(weights)
	return total > 1.0-WeightTolerance && total < 1.0+WeightTolerance
}

// HHI computes the Herfindahl-Hirschman Index, sum of squared normalized
// weights. Ranges from 1/n (equal weight) to 1.0 (single holding).
func HHI(weights map[string]float64) float64 {
	total := SumWeights(weights)
	if total <= 0 {
		return 0
	}
	var hhi float64
	for _, v := range weights {
		w := v / total
		hhi += w * w
	}
	return hhi
}

// EffectiveN computes the effective number of holdings, 1/HHI.
// The equivalent count of equal-weighted positions at the same concentration.
func EffectiveN(weights map[string]float64) float64 {
	hhi := HHI(weights)
	if hhi <= Epsilon {
		return 0
	}
	return 1.0 / hhi
}

// TopWeight returns the largest normalized weight
func TopWeight(weights map[string]float64) float64 {
	total := SumWeights(weights)
	if total <= 0 {
		return 0
	}
	var top float64
	for _, v := range weights {
		if w := v / total; w > top {
			top = w
		}
	}
	return top
}

// Turnover computes half the L1 distance between current and target weights
// over the union of their symbols. The standard portfolio-turnover definition.
func Turnover(current, target map[string]float64) float64 {
	var sum float64
	for _, d := range WeightDeltas(current, target) {
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return 0.5 * sum
}

// WeightDeltas returns target minus current weight per symbol over the union
// of both maps.
func WeightDeltas(current, target map[string]float64) map[string]float64 {
	deltas := make(map[string]float64, len(current)+len(target))
	for k, v := range target {
		deltas[k] = v
	}
	for k, v := range current {
		deltas[k] -= v
	}
	return deltas
}
