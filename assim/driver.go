// Package assim implements the assimilation driver (component H): the
// sequential time-stepping loop that runs the particle filter update
// (pf) at each DA timestamp, writes the streamflow report, and persists
// the posterior ensemble to the state archive.
package assim

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/flowstate/padaf/archive"
	"github.com/flowstate/padaf/internal/matutil"
	"github.com/flowstate/padaf/model"
	"github.com/flowstate/padaf/obs"
	"github.com/flowstate/padaf/particle"
	"github.com/flowstate/padaf/pf"
)

// ErrMissingObservation is returned when the driver needs an observation
// at a timestamp the observation map does not cover.
var ErrMissingObservation = errors.New("assim: missing observation")

// ErrZeroObservationInRelativeMode is returned when relative-error mode
// is selected and the observed value is zero (or negative), making the
// resulting standard deviation non-positive.
var ErrZeroObservationInRelativeMode = errors.New("assim: zero observation in relative mode")

// streamflowTimestampLayout is the "Date time" column format used by
// Streamflow.txt.
const streamflowTimestampLayout = "2006-01-02 15:04:05"

// RunnerFactory builds the model.Runner used for the DA step ending at t.
// Implementations backed by the external simulator typically return a new
// simulator.Adapter scoped to a scratch directory labeled by t.
type RunnerFactory func(t time.Time) model.Runner

// Options configures one assimilation run.
type Options struct {
	Start, End time.Time
	// DAStep is the assimilation interval Δ_da; it must be an exact
	// multiple of the model step (config.Validate enforces this), but the
	// driver itself never steps the model internally — each DA step is a
	// single call into the runner (the external simulator, or a mock that
	// mimics it), which owns its own internal stepping, so the model step
	// itself is not carried here.
	DAStep        time.Duration
	EnsembleSize  int
	ObsError      float64
	AbsoluteError bool
	Resample      bool
	Perturb       bool
	FClassKernels bool
	MaxDARetries  int
	// StreamflowPath is the Streamflow.txt location; also doubles as the
	// resume checkpoint (its last row's timestamp is the resume point).
	StreamflowPath string
}

// Driver runs the sequential assimilation loop.
type Driver struct {
	runnerFor RunnerFactory
	archive   *archive.Archive
	obs       map[time.Time]float64
	opts      Options
	rng       *rand.Rand
}

// NewDriver builds a Driver. observations maps DA timestamps to observed
// values (see LoadObservations); rng should be a single per-run seeded
// generator shared with the archive's eviction policy so that repeated
// runs with the same seed are byte-identical (testable property 5).
func NewDriver(runnerFor RunnerFactory, arc *archive.Archive, observations map[time.Time]float64, opts Options, rng *rand.Rand) *Driver {
	return &Driver{runnerFor: runnerFor, archive: arc, obs: observations, opts: opts, rng: rng}
}

// Run executes the main loop starting from seed, resuming from the
// Streamflow.txt checkpoint if one exists, and returns the posterior
// ensemble as of the last completed DA step (seed itself if the run
// covers no steps).
func (d *Driver) Run(seed particle.Ensemble) (particle.Ensemble, error) {
	current := seed
	t := d.opts.Start

	if resumeT, ok := lastStreamflowTimestamp(d.opts.StreamflowPath); ok {
		archived, err := d.archive.Read(resumeT)
		if err != nil {
			return nil, fmt.Errorf("assim: resume at %s: %w", resumeT, err)
		}
		current = archived
		t = resumeT
		logrus.Infof("[assim] resuming at %s", resumeT.Format(streamflowTimestampLayout))
	}

	sf, err := openStreamflowFile(d.opts.StreamflowPath)
	if err != nil {
		return nil, err
	}
	defer sf.Close()

	for t.Before(d.opts.End) {
		obsTime := t.Add(d.opts.DAStep)

		observed, ok := d.obs[obsTime]
		if !ok {
			return nil, fmt.Errorf("%w: at %s", ErrMissingObservation, obsTime)
		}

		observation, err := d.buildObservation(observed)
		if err != nil {
			return nil, err
		}

		updated, err := d.stepWithRetries(current, observation, obsTime)
		if err != nil {
			logrus.Errorf("[assim] DA step %s exhausted %d retries, recording null row: %v", obsTime, d.opts.MaxDARetries, err)
			if writeErr := writeStreamflowRow(sf, obsTime, observed, math.NaN(), math.NaN()); writeErr != nil {
				return nil, writeErr
			}
			t = obsTime
			continue
		}

		current = updated
		t = obsTime

		mean := particle.WeightedMean(current.Column(0), current.Weights())
		stdev := particle.WeightedStdDev(current.Column(0), current.Weights())
		if err := writeStreamflowRow(sf, t, observed, mean, stdev); err != nil {
			return nil, err
		}
		logrus.Debugf("[assim] posterior state at %s:\n%v", t, matutil.Format(ensembleStateMatrix(current)))

		if err := d.archive.Write(t, current); err != nil {
			return nil, fmt.Errorf("assim: archive write at %s: %w", t, err)
		}
	}

	return current, nil
}

func (d *Driver) stepWithRetries(current particle.Ensemble, observation obs.Normal, obsTime time.Time) (particle.Ensemble, error) {
	var lastErr error
	for attempt := 0; attempt <= d.opts.MaxDARetries; attempt++ {
		runner := d.runnerFor(obsTime)
		updated, err := pf.Update(runner, current, observation, pf.Options{
			OutputSize:    d.opts.EnsembleSize,
			Resample:      d.opts.Resample,
			Perturb:       d.opts.Perturb,
			FClassKernels: d.opts.FClassKernels,
		}, d.rng)
		if err == nil {
			return updated, nil
		}
		lastErr = err
		logrus.Warnf("[assim] DA step %s attempt %d/%d failed: %v", obsTime, attempt+1, d.opts.MaxDARetries+1, err)
	}
	return nil, lastErr
}

func (d *Driver) buildObservation(observed float64) (obs.Normal, error) {
	if d.opts.AbsoluteError {
		n, err := obs.NewAbsolute(observed, d.opts.ObsError)
		if err != nil {
			return obs.Normal{}, fmt.Errorf("assim: observation config: %w", err)
		}
		return n, nil
	}
	n, err := obs.NewRelative(observed, d.opts.ObsError)
	if err != nil {
		return obs.Normal{}, fmt.Errorf("%w: %v", ErrZeroObservationInRelativeMode, err)
	}
	return n, nil
}

func openStreamflowFile(path string) (*os.File, error) {
	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("assim: open %s: %w", path, err)
	}
	if !exists {
		if _, err := fmt.Fprintln(f, "Date time\tObserved\tMean streamflow\tSt. dev."); err != nil {
			f.Close()
			return nil, fmt.Errorf("assim: write header %s: %w", path, err)
		}
	}
	return f, nil
}

func writeStreamflowRow(w *os.File, t time.Time, observed, mean, stdev float64) error {
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		t.Format(streamflowTimestampLayout),
		strconv.FormatFloat(observed, 'g', -1, 64),
		strconv.FormatFloat(mean, 'g', -1, 64),
		strconv.FormatFloat(stdev, 'g', -1, 64))
	return err
}

// lastStreamflowTimestamp returns the timestamp of the last data row in
// an existing Streamflow.txt, enabling the resumable-driver behavior
// (testable scenario S6): the driver treats this as the point already
// committed and resumes from the following DA step.
func lastStreamflowTimestamp(path string) (time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	first := true
	var lastLine string
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lastLine = line
		}
	}
	if lastLine == "" {
		return time.Time{}, false
	}

	fields := strings.Split(lastLine, "\t")
	t, err := time.Parse(streamflowTimestampLayout, fields[0])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ensembleStateMatrix stacks every particle's state as a row, for
// debug-printing the posterior via matutil.Format.
func ensembleStateMatrix(e particle.Ensemble) mat.Matrix {
	dim := e.Dim()
	data := make([]float64, 0, len(e)*dim)
	for _, p := range e {
		data = append(data, particle.StateData(p.State)...)
	}
	return mat.NewDense(len(e), dim, data)
}
