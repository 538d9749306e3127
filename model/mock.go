package model

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/flowstate/padaf/noise"
	"github.com/flowstate/padaf/particle"
)

// Mock is a deterministic, in-memory ModelRunner used throughout the test
// suite in place of the external simulator adapter (component K). It is
// grounded on the teacher's toy linear "Fall" model
// (examples/bf/bf.go in the reference corpus): a configurable state
// transition plus an output projection, with optional injected noise and
// failure/delay behavior for exercising the particle filter's error paths.
type Mock struct {
	// Transition maps a state to its next value. A nil Transition passes
	// the state through unchanged.
	Transition func(state []float64) []float64
	// OutputFunc derives the scalar output from the transitioned state.
	// A nil OutputFunc returns state[0].
	OutputFunc func(state []float64) float64
	// FailIndices marks exactly the given particle indices as failing.
	FailIndices map[int]bool
	// FailAll makes every invocation fail, used to exercise the particle
	// filter's degenerate all-particles-failed fallback.
	FailAll bool
	// Delay sleeps before returning, used to exercise forecast engine
	// timeouts.
	Delay time.Duration
	// NoiseStdDev, when positive, perturbs the output with zero-mean
	// Gaussian noise.
	NoiseStdDev float64
	// Seed seeds the noise generator; nil disables noise even if
	// NoiseStdDev is set. Run derives a fresh generator per call from
	// Seed and the particle index rather than sharing one rand.Source
	// across calls, so forecast workers evaluating distinct particles
	// concurrently never touch the same mutable RNG state (the RNG is
	// per-thread-seeded, per the concurrency model) while still giving
	// identical noise draws for a given seed and index.
	Seed *uint64
}

// Run implements model.Runner.
func (m *Mock) Run(index int, state *particle.StateVector) Result {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	if m.FailAll || (m.FailIndices != nil && m.FailIndices[index]) {
		return Result{Output: math.NaN(), Err: "mock: simulated particle failure"}
	}

	values := particle.StateData(state)

	next := values
	if m.Transition != nil {
		next = m.Transition(values)
	}

	var output float64
	if m.OutputFunc != nil {
		output = m.OutputFunc(next)
	} else {
		output = next[0]
	}

	if m.NoiseStdDev > 0 && m.Seed != nil {
		rng := rand.New(rand.NewSource(*m.Seed + uint64(index)))
		g, err := noise.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{m.NoiseStdDev * m.NoiseStdDev}), rng)
		if err == nil {
			output += g.Sample().AtVec(0)
		}
	}

	return Result{State: particle.NewStateVector(next), Output: output}
}

// RunWindow implements model.WindowRunner by repeatedly applying Run from
// start to end in increments of step, packing each step's scalar output
// into all five forecast variable buckets (the mock has no notion of
// distinct hydrologic outputs, so it reuses a single derived value for
// all of them; this is sufficient to exercise the forecast engine's
// bucketing and KDE fitting in tests). It checks ctx before every step so
// a cancelled forecast budget stops an in-flight window promptly instead
// of running it to completion, and again after every step: a step that
// finishes after cancellation is discarded, just as a simulator process
// killed mid-run produces no output.
func (m *Mock) RunWindow(ctx context.Context, index int, state *particle.StateVector, start, end time.Time, step time.Duration) ([]WindowSample, error) {
	var samples []WindowSample
	current := state
	for t := start.Add(step); !t.After(end); t = t.Add(step) {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		res := m.Run(index, current)
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		if !res.Ok() {
			return samples, fmt.Errorf("mock: %s", res.Err)
		}
		samples = append(samples, WindowSample{
			Time:  t,
			State: res.State,
			Outputs: map[string]float64{
				VarDischarge:   res.Output,
				VarEvaporation: res.Output,
				VarSoilLayer1:  res.Output,
				VarSoilLayer2:  res.Output,
				VarSoilLayer3:  res.Output,
			},
		})
		current = res.State
	}
	return samples, nil
}
