package particle

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/flowstate/padaf/internal/randutil"
)

// ErrInvalidWeights is returned by SampleWithReplacement when every weight
// is zero or non-finite, i.e. there is no valid probability mass to draw
// from.
var ErrInvalidWeights = errors.New("particle: invalid weights")

// SampleWithReplacement draws n indices into weights with replacement,
// proportional to weight, using rng. It wraps randutil.CumulativeSample and
// normalizes its failure modes to ErrInvalidWeights per component B of the
// particle filter.
func SampleWithReplacement(weights []float64, n int, rng *rand.Rand) ([]int, error) {
	if !hasPositiveFiniteWeight(weights) {
		return nil, ErrInvalidWeights
	}
	indices, err := randutil.CumulativeSample(weights, n, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWeights, err)
	}
	return indices, nil
}

func hasPositiveFiniteWeight(weights []float64) bool {
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			continue
		}
		if w > 0 {
			return true
		}
	}
	return false
}
