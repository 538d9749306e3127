package kde

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyKDE(t *testing.T) {
	assert := assert.New(t)

	k := New()
	assert.True(math.IsNaN(k.Mean()))
	assert.True(math.IsNaN(k.StdDev()))

	_, err := k.Pdf(0)
	assert.ErrorIs(err, ErrEmptyKDE)

	_, err = k.Cdf(0)
	assert.ErrorIs(err, ErrEmptyKDE)

	_, err = k.EnsembleCRPS(0)
	assert.ErrorIs(err, ErrEmptyKDE)
}

func TestBandwidthNotComputed(t *testing.T) {
	assert := assert.New(t)

	k := New()
	k.AddSample(1, 1)
	_, err := k.Pdf(1)
	assert.ErrorIs(err, ErrBandwidthNotComputed)
}

func TestSingleSampleBandwidthIsPositive(t *testing.T) {
	require := require.New(t)

	k := New()
	k.AddSample(5, 1)
	k.ComputeGaussianBandwidth()

	h, ok := k.Bandwidth()
	require.True(ok)
	require.Greater(h, 0.0)
}

func TestPdfIntegratesToOne(t *testing.T) {
	require := require.New(t)

	k := New()
	for _, v := range []float64{1, 2, 3, 4, 5, 2.5, 3.5} {
		k.AddSample(v, 1)
	}
	k.ComputeGaussianBandwidth()

	// numerically integrate via the trapezoidal rule over a wide window
	const lo, hi, steps = -20.0, 30.0, 20000
	step := (hi - lo) / steps
	integral := 0.0
	prev, err := k.Pdf(lo)
	require.NoError(err)
	for i := 1; i <= steps; i++ {
		x := lo + float64(i)*step
		cur, err := k.Pdf(x)
		require.NoError(err)
		integral += 0.5 * (prev + cur) * step
		prev = cur
	}

	require.InDelta(1.0, integral, 1e-3)
}

func TestCRPSBounds(t *testing.T) {
	require := require.New(t)

	k := New()
	samples := []float64{1, 2, 3, 4, 10}
	for _, v := range samples {
		k.AddSample(v, 1)
	}

	obs := 2.5
	crps, err := k.EnsembleCRPS(obs)
	require.NoError(err)

	maxDiff := 0.0
	for _, v := range samples {
		d := math.Abs(v - obs)
		if d > maxDiff {
			maxDiff = d
		}
	}

	require.GreaterOrEqual(crps, 0.0)
	require.LessOrEqual(crps, maxDiff)
}

func TestSortedSamples(t *testing.T) {
	require := require.New(t)

	k := New()
	k.AddSample(3, 0.1)
	k.AddSample(1, 0.2)
	k.AddSample(2, 0.3)

	values, weights := k.SortedSamples()
	require.Equal([]float64{1, 2, 3}, values)
	require.Equal([]float64{0.2, 0.3, 0.1}, weights)
}
