// Package model defines the ModelRunner contract (component F) the
// particle filter core uses to drive an external hydrologic simulator, and
// ships a deterministic in-memory mock implementation used throughout the
// test suite.
package model

import "github.com/flowstate/padaf/particle"

// Result is the outcome of one ModelRunner invocation. Err == "" signals
// success; on failure State is nil, Output is NaN and Err carries a
// human-readable message, matching the text report surfaces of component K
// (§6), which must be able to print the failure reason verbatim.
type Result struct {
	State  *particle.StateVector
	Output float64
	Err    string
}

// Ok reports whether the run succeeded.
func (r Result) Ok() bool {
	return r.Err == ""
}

// Runner is the model-invocation contract. Implementations must be safe
// for concurrent use: the forecast engine calls Run concurrently for
// different indices, and must not retain references to the state vector
// passed in.
type Runner interface {
	// Run advances particle index (1-based, per spec's "Particle i"
	// convention) from state by one model step and returns the resulting
	// state plus the scalar output used for observation weighting.
	Run(index int, state *particle.StateVector) Result
}
