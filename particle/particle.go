// Package particle implements the core value types of the particle filter:
// the state vector, the particle itself, an ensemble of particles, and the
// weighted statistics and resampling operations shared by the assimilation
// driver and the forecast engine.
package particle

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// StateVector is an ordered sequence of real numbers describing one
// particle's hydrologic state. Its dimension is fixed for the lifetime of
// an assimilation run; the semantic meaning of each index is opaque to the
// core and is only interpreted by the external configurator.
type StateVector = mat.VecDense

// NewStateVector builds a StateVector from raw values.
func NewStateVector(values []float64) *StateVector {
	data := make([]float64, len(values))
	copy(data, values)
	return mat.NewVecDense(len(data), data)
}

// CloneState returns an independent copy of v.
func CloneState(v mat.Vector) *StateVector {
	c := mat.NewVecDense(v.Len(), nil)
	c.CloneFromVec(v)
	return c
}

// StateData returns the raw values of a StateVector as a new slice.
func StateData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}

// Particle is a single ensemble member: an identifier, a state vector and a
// non-negative weight. Particles are treated as read-only once weighted;
// every operation that would change a particle's state or weight returns a
// new value rather than mutating the receiver.
type Particle struct {
	ID     string
	State  *StateVector
	Weight float64
}

// New validates and constructs a Particle. It returns an error if weight is
// negative or not finite; a weight of exactly zero is allowed and denotes a
// failed simulation kept for accounting purposes.
func New(id string, state *StateVector, weight float64) (Particle, error) {
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return Particle{}, fmt.Errorf("particle %q: non-finite weight %v", id, weight)
	}
	if weight < 0 {
		return Particle{}, fmt.Errorf("particle %q: negative weight %v", id, weight)
	}
	return Particle{ID: id, State: state, Weight: weight}, nil
}

// WithWeight returns a copy of p with weight replaced by w.
func (p Particle) WithWeight(w float64) Particle {
	return Particle{ID: p.ID, State: p.State, Weight: w}
}

// WithID returns a copy of p with its identifier replaced.
func (p Particle) WithID(id string) Particle {
	return Particle{ID: id, State: p.State, Weight: p.Weight}
}

// Ensemble is an ordered collection of particles of a fixed size. All states
// in a valid ensemble share the same dimension.
type Ensemble []Particle

// Dim returns the dimension of the ensemble's state vectors, or 0 for an
// empty ensemble.
func (e Ensemble) Dim() int {
	if len(e) == 0 {
		return 0
	}
	return e[0].State.Len()
}

// WeightSum returns the sum of all particle weights.
func (e Ensemble) WeightSum() float64 {
	sum := 0.0
	for _, p := range e {
		sum += p.Weight
	}
	return sum
}

// Weights returns the particle weights as a plain slice.
func (e Ensemble) Weights() []float64 {
	w := make([]float64, len(e))
	for i, p := range e {
		w[i] = p.Weight
	}
	return w
}

// Column returns the values at state dimension idx across the ensemble, in
// member order. It panics if idx is out of range for Dim().
func (e Ensemble) Column(idx int) []float64 {
	col := make([]float64, len(e))
	for i, p := range e {
		col[i] = p.State.AtVec(idx)
	}
	return col
}

// Clone returns a deep copy of the ensemble: new Particle values with cloned
// state vectors, safe to mutate independently of e.
func (e Ensemble) Clone() Ensemble {
	out := make(Ensemble, len(e))
	for i, p := range e {
		out[i] = Particle{ID: p.ID, State: CloneState(p.State), Weight: p.Weight}
	}
	return out
}
