package model

import (
	"context"
	"time"

	"github.com/flowstate/padaf/particle"
)

// WindowSample is one timestamped row of a window simulation: the particle
// state at that time plus the named scalar outputs the forecast engine
// buckets into per-variable KDEs (discharge, evaporation, soil-moisture
// layers).
type WindowSample struct {
	Time    time.Time
	State   *particle.StateVector
	Outputs map[string]float64
}

// Variable name keys used in WindowSample.Outputs, matching the forecast
// engine's per-variable KDE buckets and the Q/Ev/SM1/SM2/SM3 report files.
const (
	VarDischarge   = "Q"
	VarEvaporation = "Ev"
	VarSoilLayer1  = "SM1"
	VarSoilLayer2  = "SM2"
	VarSoilLayer3  = "SM3"
)

// WindowRunner drives a single particle across a full forecast window in
// one call, as component F/K does when backed by the external simulator: a
// single child process simulates the whole window and emits a table of
// per-timestamp outputs. Implementations must return samples only for the
// prefix of the window they completed; a partial failure is reported via
// err but any samples already produced are still returned. Implementations
// must observe ctx cancellation and return promptly (with whatever samples
// were already produced) once it fires, so the forecast engine's
// wall-clock budget actually bounds in-flight work rather than only
// stopping new dequeues.
type WindowRunner interface {
	RunWindow(ctx context.Context, index int, state *particle.StateVector, start, end time.Time, step time.Duration) ([]WindowSample, error)
}
