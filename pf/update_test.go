package pf

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate/padaf/model"
	"github.com/flowstate/padaf/obs"
	"github.com/flowstate/padaf/particle"
)

func threeParticleEnsemble() particle.Ensemble {
	return particle.Ensemble{
		{ID: "Particle 1", State: particle.NewStateVector([]float64{8.0}), Weight: 1},
		{ID: "Particle 2", State: particle.NewStateVector([]float64{10.0}), Weight: 1},
		{ID: "Particle 3", State: particle.NewStateVector([]float64{12.0}), Weight: 1},
	}
}

// identityRunner passes the state through unchanged and reports state[0] as
// the output, so the observation likelihood directly governs the particle
// weights.
type identityRunner struct{}

func (identityRunner) Run(index int, state *particle.StateVector) model.Result {
	return model.Result{State: particle.CloneState(state), Output: state.AtVec(0)}
}

func TestUpdateTrivialThreeParticle(t *testing.T) {
	require := require.New(t)

	source := threeParticleEnsemble()
	observation, err := obs.New(10.0, 1.0)
	require.NoError(err)

	rng := rand.New(rand.NewSource(1))
	out, err := Update(identityRunner{}, source, observation, Options{OutputSize: 3, Resample: true}, rng)
	require.NoError(err)
	require.Len(out, 3)

	for _, p := range out {
		require.Equal(1.0, p.Weight)
		require.NotEmpty(p.ID)
	}
}

type failAllRunner struct{}

func (failAllRunner) Run(index int, state *particle.StateVector) model.Result {
	return model.Result{Err: "simulated failure"}
}

func TestUpdateAllFailFallback(t *testing.T) {
	require := require.New(t)

	source := threeParticleEnsemble()
	observation, err := obs.New(10.0, 1.0)
	require.NoError(err)

	rng := rand.New(rand.NewSource(2))
	out, err := Update(failAllRunner{}, source, observation, Options{OutputSize: 3, Resample: true}, rng)
	require.NoError(err)
	require.Len(out, 3)
	for _, p := range out {
		require.Equal(1.0, p.Weight)
	}
}

func TestUpdateNoResamplePreservesOrderAndWeights(t *testing.T) {
	require := require.New(t)

	source := threeParticleEnsemble()
	observation, err := obs.New(10.0, 1.0)
	require.NoError(err)

	rng := rand.New(rand.NewSource(3))
	out, err := Update(identityRunner{}, source, observation, Options{OutputSize: 2, Resample: false}, rng)
	require.NoError(err)
	require.Len(out, 2)

	// Order must be non-decreasing in "Particle N" index, since the
	// no-resample branch preserves original insertion order.
	var lastIdx int
	for i, p := range out {
		var idx int
		_, err := fmt.Sscanf(p.ID, "Particle %d", &idx)
		require.NoError(err)
		if i > 0 {
			require.Greater(idx, lastIdx)
		}
		lastIdx = idx
		require.NotEqual(1.0, p.Weight) // weight unchanged from observation.Pdf, not reset to 1
	}
}

func TestUpdateSizePreservedAndWeightsNonNegative(t *testing.T) {
	require := require.New(t)

	source := threeParticleEnsemble()
	observation, err := obs.New(10.0, 1.0)
	require.NoError(err)

	for _, resample := range []bool{true, false} {
		rng := rand.New(rand.NewSource(4))
		out, err := Update(identityRunner{}, source, observation, Options{OutputSize: 3, Resample: resample}, rng)
		require.NoError(err)
		require.Len(out, 3)
		for _, p := range out {
			require.GreaterOrEqual(p.Weight, 0.0)
		}
	}
}

func TestUpdateIDsAreUnique(t *testing.T) {
	require := require.New(t)

	source := threeParticleEnsemble()
	observation, err := obs.New(10.0, 1.0)
	require.NoError(err)

	rng := rand.New(rand.NewSource(5))
	out, err := Update(identityRunner{}, source, observation, Options{OutputSize: 6, Resample: true, Perturb: true}, rng)
	require.NoError(err)
	require.Len(out, 6)

	seen := make(map[string]bool)
	for _, p := range out {
		require.False(seen[p.ID], "duplicate id %q", p.ID)
		seen[p.ID] = true
	}
}

func TestUpdatePerturbBranchChangesState(t *testing.T) {
	assert := assert.New(t)

	source := threeParticleEnsemble()
	observation, err := obs.New(10.0, 2.0)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(6))
	out, err := Update(identityRunner{}, source, observation, Options{OutputSize: 9, Resample: true, Perturb: true, FClassKernels: false}, rng)
	require.NoError(t, err)
	require.Len(t, out, 9)

	// At least one duplicate should have had its state perturbed away from
	// its origin (overwhelmingly likely with a nonzero bandwidth).
	originals := map[string]float64{}
	for _, p := range source {
		originals[p.ID] = p.State.AtVec(0)
	}
	anyPerturbed := false
	for _, p := range out {
		matchesOrigin := false
		for _, orig := range originals {
			if p.State.AtVec(0) == orig {
				matchesOrigin = true
			}
		}
		if !matchesOrigin {
			anyPerturbed = true
		}
	}
	assert.True(anyPerturbed)
}

func TestUpdateEmptySourceErrors(t *testing.T) {
	require := require.New(t)
	observation, err := obs.New(10.0, 1.0)
	require.NoError(err)

	rng := rand.New(rand.NewSource(7))
	_, err = Update(identityRunner{}, particle.Ensemble{}, observation, Options{OutputSize: 3, Resample: true}, rng)
	require.Error(err)
}
