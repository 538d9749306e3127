package kde

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate/padaf/particle"
)

func TestMultiVarDimensionMismatch(t *testing.T) {
	assert := assert.New(t)

	m := NewMultiVar(true)
	require.NoError(t, m.AddSample(particle.NewStateVector([]float64{1, 2}), 1))
	err := m.AddSample(particle.NewStateVector([]float64{1, 2, 3}), 1)
	assert.Error(err)
}

func TestMultiVarFullBandwidthSampleMultiple(t *testing.T) {
	require := require.New(t)

	m := NewMultiVar(true)
	for i := 0; i < 20; i++ {
		require.NoError(m.AddSample(particle.NewStateVector([]float64{float64(i), float64(2 * i)}), 1))
	}
	require.NoError(m.ComputeBandwidth())

	rng := rand.New(rand.NewSource(7))
	samples, err := m.SampleMultiple(5, rng)
	require.NoError(err)
	require.Len(samples, 5)
	for _, s := range samples {
		require.Equal(2, s.Len())
	}
}

func TestMultiVarDiagonalBandwidth(t *testing.T) {
	require := require.New(t)

	m := NewMultiVar(false)
	for i := 0; i < 20; i++ {
		require.NoError(m.AddSample(particle.NewStateVector([]float64{float64(i), 0}), 1))
	}
	require.NoError(m.ComputeBandwidth())

	rng := rand.New(rand.NewSource(3))
	samples, err := m.SampleMultiple(10, rng)
	require.NoError(err)
	require.Len(samples, 10)
}

func TestMultiVarSampleMultipleBeforeBandwidth(t *testing.T) {
	require := require.New(t)

	m := NewMultiVar(true)
	require.NoError(m.AddSample(particle.NewStateVector([]float64{1}), 1))

	rng := rand.New(rand.NewSource(1))
	_, err := m.SampleMultiple(2, rng)
	require.ErrorIs(err, ErrBandwidthNotComputed)
}

func TestFitEnsemble(t *testing.T) {
	require := require.New(t)

	e := particle.Ensemble{
		{ID: "a", State: particle.NewStateVector([]float64{1, 1}), Weight: 1},
		{ID: "b", State: particle.NewStateVector([]float64{2, 2}), Weight: 1},
	}
	m := FitEnsemble(e, false)
	require.Equal(2, m.Len())
}
