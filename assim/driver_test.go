package assim

import (
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/padaf/archive"
	"github.com/flowstate/padaf/model"
	"github.com/flowstate/padaf/particle"
)

func passThroughRunnerFactory(t time.Time) model.Runner {
	return &model.Mock{}
}

func threeParticleSeed() particle.Ensemble {
	return particle.Ensemble{
		{ID: "Root 1", State: particle.NewStateVector([]float64{8.0}), Weight: 1},
		{ID: "Root 2", State: particle.NewStateVector([]float64{10.0}), Weight: 1},
		{ID: "Root 3", State: particle.NewStateVector([]float64{12.0}), Weight: 1},
	}
}

func buildObsMap(start time.Time, step time.Duration, n int, value float64) map[time.Time]float64 {
	m := make(map[time.Time]float64, n)
	t := start
	for i := 0; i < n; i++ {
		t = t.Add(step)
		m[t] = value
	}
	return m
}

func TestDriverRunsFullLoopAndWritesOutputs(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	step := time.Hour

	arc, err := archive.New(filepath.Join(dir, "states"), 50, rand.New(rand.NewSource(1)))
	require.NoError(err)

	opts := Options{
		Start:          start,
		End:            start.Add(3 * step),
		DAStep:         step,
		EnsembleSize:   3,
		ObsError:       1.0,
		AbsoluteError:  true,
		Resample:       true,
		MaxDARetries:   0,
		StreamflowPath: filepath.Join(dir, "Streamflow.txt"),
	}

	observations := buildObsMap(start, step, 3, 10.0)
	driver := NewDriver(passThroughRunnerFactory, arc, observations, opts, rand.New(rand.NewSource(2)))

	final, err := driver.Run(threeParticleSeed())
	require.NoError(err)
	require.Len(final, 3)

	posterior, err := arc.Read(start.Add(3 * step))
	require.NoError(err)
	require.Len(posterior, 3)

	resumeT, ok := lastStreamflowTimestamp(opts.StreamflowPath)
	require.True(ok)
	require.True(resumeT.Equal(start.Add(3 * step)))
}

func TestDriverMissingObservationErrors(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	step := time.Hour

	arc, err := archive.New(filepath.Join(dir, "states"), 50, rand.New(rand.NewSource(1)))
	require.NoError(err)

	opts := Options{
		Start:          start,
		End:            start.Add(2 * step),
		DAStep:         step,
		EnsembleSize:   3,
		ObsError:       1.0,
		AbsoluteError:  true,
		StreamflowPath: filepath.Join(dir, "Streamflow.txt"),
	}

	driver := NewDriver(passThroughRunnerFactory, arc, map[time.Time]float64{}, opts, rand.New(rand.NewSource(2)))
	_, err = driver.Run(threeParticleSeed())
	require.ErrorIs(err, ErrMissingObservation)
}

// TestDriverResumesFromCheckpoint exercises S6: running the driver twice
// against the same outputs directory, the second run must not redo work
// already recorded in Streamflow.txt.
func TestDriverResumesFromCheckpoint(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	step := time.Hour
	streamflowPath := filepath.Join(dir, "Streamflow.txt")
	archiveDir := filepath.Join(dir, "states")

	observations := buildObsMap(start, step, 5, 10.0)

	firstOpts := Options{
		Start:          start,
		End:            start.Add(2 * step),
		DAStep:         step,
		EnsembleSize:   3,
		ObsError:       1.0,
		AbsoluteError:  true,
		StreamflowPath: streamflowPath,
	}
	arc1, err := archive.New(archiveDir, 50, rand.New(rand.NewSource(1)))
	require.NoError(err)
	driver1 := NewDriver(passThroughRunnerFactory, arc1, observations, firstOpts, rand.New(rand.NewSource(2)))
	_, err = driver1.Run(threeParticleSeed())
	require.NoError(err)

	resumeT, ok := lastStreamflowTimestamp(streamflowPath)
	require.True(ok)
	require.True(resumeT.Equal(start.Add(2 * step)))

	secondOpts := firstOpts
	secondOpts.End = start.Add(5 * step)
	arc2, err := archive.New(archiveDir, 50, rand.New(rand.NewSource(1)))
	require.NoError(err)
	driver2 := NewDriver(passThroughRunnerFactory, arc2, observations, secondOpts, rand.New(rand.NewSource(3)))
	// The seed passed here is irrelevant once a checkpoint exists; the
	// driver reloads the posterior ensemble from the archive instead.
	_, err = driver2.Run(threeParticleSeed())
	require.NoError(err)

	finalT, ok := lastStreamflowTimestamp(streamflowPath)
	require.True(ok)
	require.True(finalT.Equal(start.Add(5 * step)))

	_, err = arc2.Read(start.Add(step))
	require.NoError(err, "step 1 archived by the first run must still be present")
}
