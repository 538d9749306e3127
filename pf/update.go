// Package pf implements the generic, model-agnostic particle filter update
// (component G): simulate each particle, weight it by observation
// likelihood, optionally resample, and optionally perturb the survivors.
package pf

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/flowstate/padaf/kde"
	"github.com/flowstate/padaf/model"
	"github.com/flowstate/padaf/obs"
	"github.com/flowstate/padaf/particle"
)

// ErrInvalidWeights is returned when a resample step has no usable
// probability mass to draw from. It is particle.ErrInvalidWeights,
// re-exported so callers only need to import pf to match on it.
var ErrInvalidWeights = particle.ErrInvalidWeights

// Options configures one particle filter update.
type Options struct {
	// OutputSize is the desired ensemble size N' of the result.
	OutputSize int
	// Resample enables step 4 (weighted resampling with replacement). When
	// false, the no-resample branch (step 3) runs instead.
	Resample bool
	// Perturb enables step 5b (kernel perturbation of resampled
	// duplicates). Only meaningful when Resample is true; ignored
	// otherwise.
	Perturb bool
	// FClassKernels selects full-covariance (true) or diagonal (false)
	// bandwidth for the perturbation kernel.
	FClassKernels bool
}

// Update runs one sequential Monte-Carlo step over source, producing the
// posterior ensemble. rng controls every random draw in the update and
// should be seeded by the caller for determinism (spec: "RNG is
// per-thread-seeded").
func Update(runner model.Runner, source particle.Ensemble, observation obs.Normal, opts Options, rng *rand.Rand) (particle.Ensemble, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("pf: empty source ensemble")
	}

	staged, weightSum := simulate(runner, source, observation)

	if weightSum == 0 {
		logrus.Warnf("[pf] all %d particles failed; falling back to uniform weights", len(staged))
		for i := range staged {
			staged[i] = staged[i].WithWeight(1.0)
		}
	}

	if !opts.Resample {
		return noResampleSubset(staged, opts.OutputSize, rng), nil
	}

	return resample(staged, opts, rng)
}

// simulate is step 1 of component G: run the model for every source
// particle and build the staging ensemble. A failed run keeps the source
// state and gets weight 0.
func simulate(runner model.Runner, source particle.Ensemble, observation obs.Normal) (particle.Ensemble, float64) {
	staged := make(particle.Ensemble, len(source))
	weightSum := 0.0

	for i, p := range source {
		res := runner.Run(i+1, p.State)

		id := fmt.Sprintf("Particle %d", i+1)
		if res.Ok() {
			w := observation.Pdf(res.Output)
			staged[i] = particle.Particle{ID: id, State: res.State, Weight: w}
			weightSum += w
		} else {
			logrus.Warnf("[pf] particle %d failed: %s", i+1, res.Err)
			staged[i] = particle.Particle{ID: id, State: p.State, Weight: 0}
		}
	}

	return staged, weightSum
}

// noResampleSubset implements step 3: a uniform random subset without
// replacement of size min(N, N'), returned in original index order, with
// weights preserved (not normalized).
func noResampleSubset(staged particle.Ensemble, outputSize int, rng *rand.Rand) particle.Ensemble {
	n := len(staged)
	size := outputSize
	if n < size {
		size = n
	}

	perm := rng.Perm(n)
	chosen := perm[:size]

	// sort chosen ascending to preserve original index order
	for i := 1; i < len(chosen); i++ {
		for j := i; j > 0 && chosen[j-1] > chosen[j]; j-- {
			chosen[j-1], chosen[j] = chosen[j], chosen[j-1]
		}
	}

	out := make(particle.Ensemble, len(chosen))
	for i, idx := range chosen {
		out[i] = staged[idx]
	}
	return out
}

// resample implements steps 4 and 5: weighted draw with replacement, then
// either plain duplication (5a) or kernel perturbation (5b).
func resample(staged particle.Ensemble, opts Options, rng *rand.Rand) (particle.Ensemble, error) {
	weights := staged.Weights()
	indices, err := particle.SampleWithReplacement(weights, opts.OutputSize, rng)
	if err != nil {
		return nil, fmt.Errorf("pf: resample: %w", err)
	}

	counts := make([]int, len(staged))
	for _, idx := range indices {
		counts[idx]++
	}

	var density *kde.MultiVarKernelDensity
	if opts.Perturb {
		density = kde.NewMultiVar(opts.FClassKernels)
		for _, p := range staged {
			if p.Weight > 0 {
				if err := density.AddSample(p.State, p.Weight); err != nil {
					return nil, fmt.Errorf("pf: perturb: %w", err)
				}
			}
		}
		if density.Len() > 0 {
			if err := density.ComputeBandwidth(); err != nil {
				return nil, fmt.Errorf("pf: perturb: %w", err)
			}
		} else {
			density = nil
		}
	}

	out := make(particle.Ensemble, 0, opts.OutputSize)
	for idx, count := range counts {
		if count == 0 {
			continue
		}
		orig := staged[idx]
		out = append(out, orig.WithWeight(1.0))

		for r := 1; r < count; r++ {
			id := fmt.Sprintf("%s - resample %d", orig.ID, r)
			state := orig.State
			if density != nil {
				perturbed, err := density.Perturb(orig.State, rng)
				if err != nil {
					return nil, fmt.Errorf("pf: perturb: %w", err)
				}
				state = perturbed
			} else {
				state = particle.CloneState(orig.State)
			}
			out = append(out, particle.Particle{ID: id, State: state, Weight: 1.0})
		}
	}

	return out, nil
}
