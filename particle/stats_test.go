package particle

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightedMean(t *testing.T) {
	assert := assert.New(t)

	mean := WeightedMean([]float64{1, 2, 3}, []float64{1, 1, 1})
	assert.InDelta(2.0, mean, 1e-9)

	assert.True(math.IsNaN(WeightedMean(nil, nil)))
}

func TestEffectiveSampleSize(t *testing.T) {
	assert := assert.New(t)

	// equal weights: ESS equals the sample count
	assert.InDelta(4.0, EffectiveSampleSize([]float64{1, 1, 1, 1}), 1e-9)
	assert.Equal(0.0, EffectiveSampleSize([]float64{0, 0, 0}))
}

func TestSampleWithReplacementAllZero(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(1))
	_, err := SampleWithReplacement([]float64{0, 0, 0}, 3, rng)
	assert.ErrorIs(err, ErrInvalidWeights)
}

func TestSampleWithReplacementProportional(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(42))
	weights := []float64{0, 1, 0}
	indices, err := SampleWithReplacement(weights, 50, rng)
	assert.NoError(err)
	for _, idx := range indices {
		assert.Equal(1, idx)
	}
}
