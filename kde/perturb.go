package kde

import (
	"math"
	"math/rand"

	"github.com/flowstate/padaf/internal/randutil"
	"github.com/flowstate/padaf/particle"
)

// Perturb draws a single zero-mean perturbation from the fitted bandwidth
// and adds it to center, returning a new state vector. It is the primitive
// the particle filter's perturb branch (component G, step 5b) uses to turn
// a resampled center into a jittered replica, as distinct from
// SampleMultiple which also redraws the center itself.
func (m *MultiVarKernelDensity) Perturb(center *particle.StateVector, rng *rand.Rand) (*particle.StateVector, error) {
	if !m.bandwidthReady {
		return nil, ErrBandwidthNotComputed
	}

	v := particle.CloneState(center)

	if m.fClassKernels {
		draw, err := randutil.GaussianWithCov(m.bandwidth, 1, rng)
		if err != nil {
			return nil, err
		}
		for d := 0; d < m.dim; d++ {
			v.SetVec(d, v.AtVec(d)+draw.At(d, 0))
		}
		return v, nil
	}

	for d := 0; d < m.dim; d++ {
		v.SetVec(d, v.AtVec(d)+rng.NormFloat64()*math.Sqrt(m.diagBandwidth[d]))
	}
	return v, nil
}
