package kde

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/flowstate/padaf/internal/randutil"
	"github.com/flowstate/padaf/particle"
)

// ErrNoSamples is returned by multivariate operations attempted before any
// sample has been added.
var ErrNoSamples = errors.New("kde: multivariate density has no samples")

// MultiVarKernelDensity is a weighted multivariate kernel density estimate.
// Its bandwidth mode — full covariance or per-dimension diagonal variance —
// is chosen at construction time via fClassKernels (component D).
type MultiVarKernelDensity struct {
	samples        []*particle.StateVector
	weights        []float64
	dim            int
	fClassKernels  bool
	bandwidth      mat.Symmetric // full covariance, only set when fClassKernels
	diagBandwidth  []float64     // per-dimension variance, only set when !fClassKernels
	bandwidthReady bool
}

// NewMultiVar returns an empty MultiVarKernelDensity. fClassKernels selects
// full covariance bandwidth (true) or diagonal per-dimension bandwidth
// (false).
func NewMultiVar(fClassKernels bool) *MultiVarKernelDensity {
	return &MultiVarKernelDensity{fClassKernels: fClassKernels}
}

// AddSample records a weighted vector sample. All samples must share the
// same dimension.
func (m *MultiVarKernelDensity) AddSample(v *particle.StateVector, weight float64) error {
	if len(m.samples) > 0 && v.Len() != m.dim {
		return errors.New("kde: sample dimension mismatch")
	}
	if len(m.samples) == 0 {
		m.dim = v.Len()
	}
	m.samples = append(m.samples, v)
	m.weights = append(m.weights, weight)
	m.bandwidthReady = false
	return nil
}

// Len returns the number of recorded samples.
func (m *MultiVarKernelDensity) Len() int {
	return len(m.samples)
}

// FitEnsemble loads an ensemble into the density, one sample per particle,
// weighted by particle weight.
func FitEnsemble(e particle.Ensemble, fClassKernels bool) *MultiVarKernelDensity {
	m := NewMultiVar(fClassKernels)
	for _, p := range e {
		_ = m.AddSample(p.State, p.Weight)
	}
	return m
}

// ComputeBandwidth fits the Gaussian bandwidth: a weighted covariance matrix
// scaled by a Silverman-style factor when fClassKernels is true, or
// per-dimension weighted variances when false.
func (m *MultiVarKernelDensity) ComputeBandwidth() error {
	n := len(m.samples)
	if n == 0 {
		return ErrNoSamples
	}

	mean := m.weightedMean()
	neff := particle.EffectiveSampleSize(m.weights)
	if neff < 1 {
		neff = 1
	}
	// Silverman-style scaling factor for a d-dimensional Gaussian kernel.
	factor := math.Pow(4.0/(float64(m.dim)+2.0), 2.0/(float64(m.dim)+4.0)) * math.Pow(neff, -2.0/(float64(m.dim)+4.0))

	if m.fClassKernels {
		cov := m.weightedCovariance(mean)
		cov.ScaleSym(factor, cov)
		m.bandwidth = cov
	} else {
		diag := m.weightedDiagVariance(mean)
		for i := range diag {
			diag[i] *= factor
			if diag[i] <= 0 {
				diag[i] = minBandwidth(mean[i])
			}
		}
		m.diagBandwidth = diag
	}
	m.bandwidthReady = true
	return nil
}

func (m *MultiVarKernelDensity) weightedMean() []float64 {
	sumW := 0.0
	mean := make([]float64, m.dim)
	for i, s := range m.samples {
		w := m.weights[i]
		sumW += w
		for d := 0; d < m.dim; d++ {
			mean[d] += w * s.AtVec(d)
		}
	}
	if sumW == 0 {
		return mean
	}
	for d := range mean {
		mean[d] /= sumW
	}
	return mean
}

func (m *MultiVarKernelDensity) weightedCovariance(mean []float64) *mat.SymDense {
	sumW := 0.0
	for _, w := range m.weights {
		sumW += w
	}

	cov := mat.NewSymDense(m.dim, nil)
	if sumW == 0 {
		return cov
	}

	for i, s := range m.samples {
		w := m.weights[i]
		for r := 0; r < m.dim; r++ {
			dr := s.AtVec(r) - mean[r]
			for c := r; c < m.dim; c++ {
				dc := s.AtVec(c) - mean[c]
				cov.SetSym(r, c, cov.At(r, c)+w*dr*dc)
			}
		}
	}
	cov.ScaleSym(1/sumW, cov)
	return cov
}

func (m *MultiVarKernelDensity) weightedDiagVariance(mean []float64) []float64 {
	sumW := 0.0
	for _, w := range m.weights {
		sumW += w
	}

	variance := make([]float64, m.dim)
	if sumW == 0 {
		return variance
	}

	for i, s := range m.samples {
		w := m.weights[i]
		for d := 0; d < m.dim; d++ {
			diff := s.AtVec(d) - mean[d]
			variance[d] += w * diff * diff
		}
	}
	for d := range variance {
		variance[d] /= sumW
	}
	return variance
}

// SampleMultiple draws k vectors: for each draw, pick a center by weighted
// sampling over the recorded samples (particle.SampleWithReplacement), then
// add a zero-mean Gaussian perturbation with the fitted bandwidth — an
// SVD-based draw for the full-covariance mode, independent per-dimension
// draws for the diagonal mode.
func (m *MultiVarKernelDensity) SampleMultiple(k int, rng *rand.Rand) ([]*particle.StateVector, error) {
	if !m.bandwidthReady {
		return nil, ErrBandwidthNotComputed
	}
	if len(m.samples) == 0 {
		return nil, ErrNoSamples
	}

	indices, err := particle.SampleWithReplacement(m.weights, k, rng)
	if err != nil {
		return nil, err
	}

	out := make([]*particle.StateVector, k)
	if m.fClassKernels {
		perturb, err := randutil.GaussianWithCov(m.bandwidth, k, rng)
		if err != nil {
			return nil, err
		}
		for i, idx := range indices {
			v := particle.CloneState(m.samples[idx])
			for d := 0; d < m.dim; d++ {
				v.SetVec(d, v.AtVec(d)+perturb.At(d, i))
			}
			out[i] = v
		}
		return out, nil
	}

	for i, idx := range indices {
		v := particle.CloneState(m.samples[idx])
		for d := 0; d < m.dim; d++ {
			v.SetVec(d, v.AtVec(d)+rng.NormFloat64()*math.Sqrt(m.diagBandwidth[d]))
		}
		out[i] = v
	}
	return out, nil
}
