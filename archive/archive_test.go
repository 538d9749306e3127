package archive

import (
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/padaf/model"
	"github.com/flowstate/padaf/particle"
)

func sampleEnsemble() particle.Ensemble {
	return particle.Ensemble{
		{ID: "Particle 1", State: particle.NewStateVector([]float64{1.0, 2.0}), Weight: 0.5},
		{ID: "Particle 2", State: particle.NewStateVector([]float64{3.0, 4.0}), Weight: 1.5},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	require := require.New(t)

	a, err := New(t.TempDir(), 50, rand.New(rand.NewSource(1)))
	require.NoError(err)

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	want := sampleEnsemble()
	require.NoError(a.Write(ts, want))

	got, err := a.Read(ts)
	require.NoError(err)
	require.Len(got, len(want))
	for i := range want {
		require.Equal(want[i].ID, got[i].ID)
		require.InDelta(want[i].Weight, got[i].Weight, 1e-12)
		require.Equal(particle.StateData(want[i].State), particle.StateData(got[i].State))
	}
}

func TestReadMissingReturnsStateNotFound(t *testing.T) {
	require := require.New(t)

	a, err := New(t.TempDir(), 50, rand.New(rand.NewSource(1)))
	require.NoError(err)

	_, err = a.Read(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(err, ErrStateNotFound)
}

func TestNearestBefore(t *testing.T) {
	require := require.New(t)

	a, err := New(t.TempDir(), 50, rand.New(rand.NewSource(1)))
	require.NoError(err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(a.Write(base, sampleEnsemble()))
	require.NoError(a.Write(base.Add(time.Hour), sampleEnsemble()))

	nearest, ok := a.NearestBefore(base.Add(90 * time.Minute))
	require.True(ok)
	require.True(nearest.Equal(base.Add(time.Hour)))

	_, ok = a.NearestBefore(base)
	require.False(ok)
}

// TestArchiveCapEvictsUniformly writes 60 snapshots against a cap of 50 and
// asserts exactly 50 remain, none of which is necessarily the oldest.
func TestArchiveCapEvictsUniformly(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	a, err := New(dir, 50, rand.New(rand.NewSource(42)))
	require.NoError(err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		require.NoError(a.Write(ts, sampleEnsemble()))
	}

	entries, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	require.NoError(err)
	require.Len(entries, 50)

	// The most recently written snapshot always survives its own cap
	// check.
	last := base.Add(59 * time.Hour)
	_, err = a.Read(last)
	require.NoError(err)
}

func TestArchiveDefaultCap(t *testing.T) {
	require := require.New(t)

	a, err := New(t.TempDir(), 0, rand.New(rand.NewSource(1)))
	require.NoError(err)
	require.Equal(defaultMaxFiles, a.maxFiles)
}

func TestReadOrSynthesize(t *testing.T) {
	require := require.New(t)

	a, err := New(t.TempDir(), 50, rand.New(rand.NewSource(1)))
	require.NoError(err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(a.Write(base, particle.Ensemble{
		{ID: "Particle 1", State: particle.NewStateVector([]float64{10.0}), Weight: 1.0},
	}))

	runner := incrementRunner{}
	target := base.Add(3 * time.Hour)
	got, err := a.ReadOrSynthesize(target, time.Hour, runner)
	require.NoError(err)
	require.Len(got, 1)
	require.Equal(13.0, got[0].State.AtVec(0))

	// Synthesized state is cached.
	cached, err := a.Read(target)
	require.NoError(err)
	require.Equal(13.0, cached[0].State.AtVec(0))
}

type incrementRunner struct{}

func (incrementRunner) Run(index int, state *particle.StateVector) model.Result {
	next := particle.NewStateVector([]float64{state.AtVec(0) + 1})
	return model.Result{State: next, Output: next.AtVec(0)}
}
