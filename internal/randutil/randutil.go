// Package randutil holds the two random-number primitives the particle
// filter core is built on: weighted sampling with replacement over a
// cumulative distribution, and drawing zero-mean Gaussian vectors with a
// given covariance. Both take an explicit *rand.Rand so callers control
// determinism and thread-safety instead of sharing a global generator.
package randutil

import (
	"fmt"
	"math"
	mrand "math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CumulativeSample draws n indices into weights by the Roulette Wheel /
// Fitness Proportionate Selection method: build the cumulative sum of
// weights, draw a uniform value in [0, total) and binary-search for the
// first index whose cumulative weight exceeds it. Ties at equal cumulative
// mass resolve to the first such index, matching sort.Search's contract.
// It returns an error if weights is empty, all zero, or contains a
// non-finite value.
func CumulativeSample(weights []float64, n int, rng *mrand.Rand) ([]int, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("randutil: empty weight vector")
	}

	cdf := make([]float64, len(weights))
	floats.CumSum(cdf, weights)

	total := cdf[len(cdf)-1]
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("randutil: invalid weights (sum=%v)", total)
	}

	indices := make([]int, n)
	for i := range indices {
		val := rng.Float64() * total
		indices[i] = sort.Search(len(cdf), func(j int) bool { return cdf[j] > val })
	}

	return indices, nil
}

// GaussianWithCov draws n samples from a zero-mean Gaussian with covariance
// cov, returned as columns of an (dim x n) matrix. It factorizes cov with
// SVD rather than Cholesky because particle covariances can be singular or
// near-singular for small or degenerate ensembles.
func GaussianWithCov(cov mat.Symmetric, n int, rng *mrand.Rand) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("randutil: invalid sample count %d", n)
	}

	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("randutil: SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(math.Max(vals[i], 0))
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	rows, _ := cov.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}
