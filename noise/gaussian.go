// Package noise provides zero-mean Gaussian perturbation sampling used by
// model.Mock to exercise the particle filter against a noisy scalar
// output, standing in for a real simulator's own measurement noise.
package noise

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is multivariate Gaussian noise with a caller-supplied mean,
// covariance, and random source.
type Gaussian struct {
	dist *distmv.Normal
	mean []float64
	cov  mat.Symmetric
	rng  *rand.Rand
}

// NewGaussian creates Gaussian noise with the given mean and covariance,
// drawing samples from rng. An explicit rng (rather than one seeded from
// wall-clock time) makes repeated runs reproducible.
func NewGaussian(mean []float64, cov mat.Symmetric, rng *rand.Rand) (*Gaussian, error) {
	dist, ok := distmv.NewNormal(mean, cov, rng)
	if !ok {
		return nil, fmt.Errorf("noise: failed to create Gaussian (covariance not positive-definite)")
	}

	return &Gaussian{dist: dist, mean: mean, cov: cov, rng: rng}, nil
}

// Sample draws one sample from the Gaussian.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Cov returns the covariance matrix of the Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	return g.cov
}

// Mean returns the Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return g.mean
}

// Reset rebuilds the underlying distribution from the same rng, mean, and
// covariance, continuing the rng's stream rather than reseeding it.
func (g *Gaussian) Reset() error {
	dist, ok := distmv.NewNormal(g.mean, g.cov, g.rng)
	if !ok {
		return fmt.Errorf("noise: failed to reset Gaussian (covariance not positive-definite)")
	}
	g.dist = dist
	return nil
}

// String implements fmt.Stringer.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
