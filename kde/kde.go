// Package kde implements weighted, Gaussian-kernel density estimation: a
// one-dimensional KernelDensity (component C) used for per-variable
// forecast buckets, and a MultiVarKernelDensity (component D) used to seed
// and perturb particle-filter ensembles.
package kde

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/flowstate/padaf/particle"
)

// ErrBandwidthNotComputed is returned by Pdf/Cdf when ComputeGaussianBandwidth
// has not yet been called.
var ErrBandwidthNotComputed = errors.New("kde: bandwidth not computed")

// ErrEmptyKDE is returned by Pdf/Cdf/EnsembleCRPS when the density has no
// samples.
var ErrEmptyKDE = errors.New("kde: no samples")

// minBandwidth is the implementation-defined floor used when a density has
// exactly one sample, per spec: a small positive minimum rather than zero.
func minBandwidth(value float64) float64 {
	return 1e-6*math.Abs(value) + 1e-9
}

// KernelDensity is a one-dimensional weighted kernel density estimate built
// incrementally from (value, weight) samples.
type KernelDensity struct {
	values    []float64
	weights   []float64
	bandwidth float64
	hasBW     bool
}

// New returns an empty KernelDensity.
func New() *KernelDensity {
	return &KernelDensity{}
}

// AddSample records a weighted sample. Adding a sample invalidates any
// previously computed bandwidth.
func (k *KernelDensity) AddSample(value, weight float64) {
	k.values = append(k.values, value)
	k.weights = append(k.weights, weight)
	k.hasBW = false
}

// Len returns the number of recorded samples.
func (k *KernelDensity) Len() int {
	return len(k.values)
}

// Mean returns the weighted mean of the samples, or NaN if empty.
func (k *KernelDensity) Mean() float64 {
	return particle.WeightedMean(k.values, k.weights)
}

// StdDev returns the weighted standard deviation of the samples, or NaN if
// fewer than two samples are present.
func (k *KernelDensity) StdDev() float64 {
	return particle.WeightedStdDev(k.values, k.weights)
}

// ComputeGaussianBandwidth fits a Gaussian kernel bandwidth using Silverman's
// rule of thumb over the weighted effective sample size. A single-sample
// density gets a small positive floor instead of a zero bandwidth.
func (k *KernelDensity) ComputeGaussianBandwidth() {
	n := len(k.values)
	switch {
	case n == 0:
		k.bandwidth = math.NaN()
	case n == 1:
		k.bandwidth = minBandwidth(k.values[0])
	default:
		sigma := k.StdDev()
		neff := particle.EffectiveSampleSize(k.weights)
		if neff <= 1 || math.IsNaN(sigma) || sigma == 0 {
			k.bandwidth = minBandwidth(k.Mean())
		} else {
			k.bandwidth = 1.06 * sigma * math.Pow(neff, -0.2)
		}
	}
	k.hasBW = true
}

// Bandwidth returns the computed bandwidth, or (0, false) if
// ComputeGaussianBandwidth has not been called.
func (k *KernelDensity) Bandwidth() (float64, bool) {
	return k.bandwidth, k.hasBW
}

// Pdf evaluates the weighted Gaussian kernel density at x.
func (k *KernelDensity) Pdf(x float64) (float64, error) {
	if len(k.values) == 0 {
		return math.NaN(), ErrEmptyKDE
	}
	if !k.hasBW {
		return 0, ErrBandwidthNotComputed
	}

	h := k.bandwidth
	sumW := 0.0
	sum := 0.0
	for i, v := range k.values {
		w := k.weights[i]
		sumW += w
		z := (x - v) / h
		sum += w * math.Exp(-0.5*z*z) / (h * math.Sqrt(2*math.Pi))
	}
	if sumW == 0 {
		return 0, nil
	}
	return sum / sumW, nil
}

// Cdf evaluates the weighted Gaussian kernel cumulative distribution at x.
func (k *KernelDensity) Cdf(x float64) (float64, error) {
	if len(k.values) == 0 {
		return math.NaN(), ErrEmptyKDE
	}
	if !k.hasBW {
		return 0, ErrBandwidthNotComputed
	}

	h := k.bandwidth
	sumW := 0.0
	sum := 0.0
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	for i, v := range k.values {
		w := k.weights[i]
		sumW += w
		sum += w * norm.CDF((x-v)/h)
	}
	if sumW == 0 {
		return 0, nil
	}
	return sum / sumW, nil
}

// EnsembleCRPS computes the Continuous Ranked Probability Score of the
// weighted empirical sample set against a scalar observation, using the
// energy-score estimator:
//
//	CRPS = E|X - obs| - 0.5 E|X - X'|
//
// which satisfies 0 <= CRPS <= max_i |obs - x_i|.
func (k *KernelDensity) EnsembleCRPS(obs float64) (float64, error) {
	n := len(k.values)
	if n == 0 {
		return math.NaN(), ErrEmptyKDE
	}

	sumW := 0.0
	for _, w := range k.weights {
		sumW += w
	}
	if sumW == 0 {
		return math.NaN(), ErrEmptyKDE
	}

	term1 := 0.0
	for i, v := range k.values {
		term1 += k.weights[i] * math.Abs(v-obs)
	}
	term1 /= sumW

	term2 := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			term2 += k.weights[i] * k.weights[j] * math.Abs(k.values[i]-k.values[j])
		}
	}
	term2 /= 2 * sumW * sumW

	return term1 - term2, nil
}

// SortedSamples returns the weighted samples sorted by value, as required
// for downstream CRPS/density reporting. The returned slices are copies.
func (k *KernelDensity) SortedSamples() (values, weights []float64) {
	type pair struct {
		v, w float64
	}
	pairs := make([]pair, len(k.values))
	for i := range k.values {
		pairs[i] = pair{k.values[i], k.weights[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

	values = make([]float64, len(pairs))
	weights = make([]float64, len(pairs))
	for i, p := range pairs {
		values[i] = p.v
		weights[i] = p.w
	}
	return values, weights
}
