package particle

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// WeightedMean returns the weighted mean of values, using gonum's weighted
// mean reduction. It returns NaN for an empty slice.
func WeightedMean(values, weights []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, weights)
}

// WeightedStdDev returns the weighted (sample) standard deviation of
// values. It returns NaN for fewer than two samples or when the weights sum
// to zero.
func WeightedStdDev(values, weights []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return math.Sqrt(stat.Variance(values, weights))
}

// EffectiveSampleSize returns the Kish effective sample size (Σw)²/Σw² of a
// weighted sample set, used by the kernel density bandwidth calculations.
// It returns 0 when all weights are zero.
func EffectiveSampleSize(weights []float64) float64 {
	var sum, sumSq float64
	for _, w := range weights {
		sum += w
		sumSq += w * w
	}
	if sumSq == 0 {
		return 0
	}
	return (sum * sum) / sumSq
}
