package assim

import (
	"fmt"
	"math/rand"

	"github.com/flowstate/padaf/kde"
	"github.com/flowstate/padaf/particle"
)

// Seed builds the initial ensemble of size n from the caller-supplied
// initial states. When there are at least n of them, the first n become
// the ensemble directly, ids "Root 1".."Root n". When there are fewer, a
// MultiVarKernelDensity is fit over them and the remainder is drawn via
// SampleMultiple, ids "Generated 1".."Generated (n-k)" following the k
// "Root" particles.
func Seed(initial []*particle.StateVector, n int, fClassKernels bool, rng *rand.Rand) (particle.Ensemble, error) {
	if n <= 0 {
		return nil, fmt.Errorf("assim: ensemble size must be positive, got %d", n)
	}
	if len(initial) == 0 {
		return nil, fmt.Errorf("assim: no initial states to seed from")
	}

	k := len(initial)
	if k > n {
		k = n
	}

	ensemble := make(particle.Ensemble, 0, n)
	for i := 0; i < k; i++ {
		ensemble = append(ensemble, particle.Particle{
			ID:     fmt.Sprintf("Root %d", i+1),
			State:  particle.CloneState(initial[i]),
			Weight: 1.0,
		})
	}

	if len(initial) >= n {
		return ensemble, nil
	}

	density := kde.NewMultiVar(fClassKernels)
	for _, s := range initial {
		if err := density.AddSample(s, 1.0); err != nil {
			return nil, fmt.Errorf("assim: seed: %w", err)
		}
	}
	if err := density.ComputeBandwidth(); err != nil {
		return nil, fmt.Errorf("assim: seed: %w", err)
	}

	remaining := n - k
	drawn, err := density.SampleMultiple(remaining, rng)
	if err != nil {
		return nil, fmt.Errorf("assim: seed: %w", err)
	}
	for i, s := range drawn {
		ensemble = append(ensemble, particle.Particle{
			ID:     fmt.Sprintf("Generated %d", i+1),
			State:  s,
			Weight: 1.0,
		})
	}

	return ensemble, nil
}
