// Package simulator implements the external-process ModelRunner adapter
// (component K): a private scratch directory per run, a context-bounded
// child-process spawn, and parsers for the simulator's tabular text
// output.
package simulator

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowstate/padaf/model"
	"github.com/flowstate/padaf/particle"
)

// discharge is reported in m3/h; the core works in L/s.
const m3PerHourToLitersPerSecond = 3.6

// column indices (0-based) into the simulator's whitespace-separated
// output tables, per the external interface contract.
const (
	streamFlowDischargeColumn    = 4
	aggregatedEvaporationColumn  = 8
	aggregatedSoilLayer1Column   = 30
	aggregatedSoilLayer2Column   = 31
	aggregatedSoilLayer3Column   = 32
)

// Config configures an Adapter.
type Config struct {
	// BinaryPath is the external simulator executable.
	BinaryPath string
	// ScratchRoot is the parent of every per-run scratch directory.
	ScratchRoot string
	// Budget bounds one child-process run; zero means unbounded.
	Budget time.Duration
	// RemoveScratch deletes each run's scratch directory after parsing
	// its output, per the `removeDAFiles`/`removeForecastFiles` options.
	RemoveScratch bool
}

// Adapter implements model.Runner and model.WindowRunner for one
// assimilation or forecast timestamp, identified by label (used to keep
// scratch directories distinct across calls: spec requires separate
// scratch directories per (timestamp, index)).
type Adapter struct {
	cfg   Config
	label string
}

// New returns an Adapter scoped to one timestamp label (e.g. the DA step's
// formatted time, or the forecast's starting time).
func New(cfg Config, label string) *Adapter {
	return &Adapter{cfg: cfg, label: label}
}

func (a *Adapter) scratchDir(index int) string {
	return filepath.Join(a.cfg.ScratchRoot, a.label, strconv.Itoa(index))
}

// Run implements model.Runner: one model step. It spawns the simulator
// once and reads the last row of its output tables as the post-step
// state and weighting output.
func (a *Adapter) Run(index int, state *particle.StateVector) model.Result {
	dir := a.scratchDir(index)
	if a.cfg.RemoveScratch {
		defer os.RemoveAll(dir)
	}

	if err := a.spawn(context.Background(), dir, index, state); err != nil {
		return model.Result{Output: math.NaN(), Err: err.Error()}
	}

	discharge, evap, sm1, sm2, sm3, err := a.parseOutputs(dir)
	if err != nil {
		return model.Result{Output: math.NaN(), Err: err.Error()}
	}

	next := particle.NewStateVector([]float64{discharge, evap, sm1, sm2, sm3})
	return model.Result{State: next, Output: discharge}
}

// RunWindow implements model.WindowRunner: one spawn simulates the whole
// [start, end] window, and the resulting tables are walked row by row,
// one WindowSample per completed timestamp. Parsing stops (without error)
// at the first row the table is missing, per the partial-failure
// semantics of component I. ctx bounds the child process in addition to
// the per-run budget (Run itself is bounded by the budget alone):
// cancelling it kills the in-flight spawn so a forecast wall-clock budget
// actually stops in-flight work.
func (a *Adapter) RunWindow(ctx context.Context, index int, state *particle.StateVector, start, end time.Time, step time.Duration) ([]model.WindowSample, error) {
	dir := a.scratchDir(index)
	if a.cfg.RemoveScratch {
		defer os.RemoveAll(dir)
	}

	if err := a.spawn(ctx, dir, index, state); err != nil {
		return nil, err
	}

	dischargeRows, err := parseTable(filepath.Join(dir, "output", "Stream.Flow"), streamFlowDischargeColumn)
	if err != nil {
		return nil, err
	}
	aggRows, err := parseAggregatedTable(filepath.Join(dir, "output", "Aggregated.Values"))
	if err != nil {
		return nil, err
	}

	n := len(dischargeRows)
	if len(aggRows) < n {
		n = len(aggRows)
	}

	samples := make([]model.WindowSample, 0, n)
	for i := 0; i < n; i++ {
		t := start.Add(time.Duration(i+1) * step)
		if t.After(end) {
			break
		}
		agg := aggRows[i]
		discharge := dischargeRows[i] / m3PerHourToLitersPerSecond
		samples = append(samples, model.WindowSample{
			Time:  t,
			State: particle.NewStateVector([]float64{discharge, agg.evap, agg.sm1, agg.sm2, agg.sm3}),
			Outputs: map[string]float64{
				model.VarDischarge:   discharge,
				model.VarEvaporation: agg.evap,
				model.VarSoilLayer1:  agg.sm1,
				model.VarSoilLayer2:  agg.sm2,
				model.VarSoilLayer3:  agg.sm3,
			},
		})
	}

	return samples, nil
}

// spawn writes the per-run input files, launches the simulator under ctx,
// additionally bounded by the configured per-run budget, and kills it on
// whichever expires first.
func (a *Adapter) spawn(ctx context.Context, dir string, index int, state *particle.StateVector) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("simulator: scratch dir %s: %w", dir, err)
	}

	configPath, err := writeInputFiles(dir, state)
	if err != nil {
		return err
	}

	if a.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Budget)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, a.cfg.BinaryPath, configPath)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("simulator: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("simulator: start: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		logrus.Debugf("[simulator] particle %d: %s", index, scanner.Text())
	}

	waitErr := cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		logrus.Warnf("[simulator] particle %d timed out after %s", index, a.cfg.Budget)
		return fmt.Errorf("simulator: timeout after %s", a.cfg.Budget)
	}
	if waitErr != nil {
		return fmt.Errorf("simulator: particle %d exited: %w", index, waitErr)
	}
	return nil
}

func writeInputFiles(dir string, state *particle.StateVector) (string, error) {
	statePath := filepath.Join(dir, "state.txt")
	sf, err := os.Create(statePath)
	if err != nil {
		return "", fmt.Errorf("simulator: write state: %w", err)
	}
	for _, v := range particle.StateData(state) {
		fmt.Fprintln(sf, strconv.FormatFloat(v, 'g', -1, 64))
	}
	if err := sf.Close(); err != nil {
		return "", fmt.Errorf("simulator: write state: %w", err)
	}

	configPath := filepath.Join(dir, "config.txt")
	cf, err := os.Create(configPath)
	if err != nil {
		return "", fmt.Errorf("simulator: write config: %w", err)
	}
	fmt.Fprintf(cf, "state_file=%s\n", statePath)
	if err := cf.Close(); err != nil {
		return "", fmt.Errorf("simulator: write config: %w", err)
	}

	return configPath, nil
}

func (a *Adapter) parseOutputs(dir string) (discharge, evap, sm1, sm2, sm3 float64, err error) {
	dischargeRows, err := parseTable(filepath.Join(dir, "output", "Stream.Flow"), streamFlowDischargeColumn)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	if len(dischargeRows) == 0 {
		return 0, 0, 0, 0, 0, fmt.Errorf("simulator: %s: no rows", dir)
	}
	discharge = dischargeRows[len(dischargeRows)-1] / m3PerHourToLitersPerSecond

	aggRows, err := parseAggregatedTable(filepath.Join(dir, "output", "Aggregated.Values"))
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	if len(aggRows) == 0 {
		return 0, 0, 0, 0, 0, fmt.Errorf("simulator: %s: no rows", dir)
	}
	last := aggRows[len(aggRows)-1]
	return discharge, last.evap, last.sm1, last.sm2, last.sm3, nil
}

// parseTable reads every row of a whitespace-separated output table and
// returns the values at column (0-based), in file order. A row that
// cannot supply the requested column ends parsing at that point rather
// than erroring, matching the "parse what exists" partial-failure
// semantics.
func parseTable(path string, column int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("simulator: open %s: %w", path, err)
	}
	defer f.Close()

	var values []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) <= column {
			break
		}
		v, err := strconv.ParseFloat(fields[column], 64)
		if err != nil {
			break
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("simulator: read %s: %w", path, err)
	}
	return values, nil
}

type aggregatedRow struct {
	evap, sm1, sm2, sm3 float64
}

func parseAggregatedTable(path string) ([]aggregatedRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("simulator: open %s: %w", path, err)
	}
	defer f.Close()

	var rows []aggregatedRow
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) <= aggregatedSoilLayer3Column {
			break
		}
		row, err := parseAggregatedRow(fields)
		if err != nil {
			break
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("simulator: read %s: %w", path, err)
	}
	return rows, nil
}

func parseAggregatedRow(fields []string) (aggregatedRow, error) {
	evap, err := strconv.ParseFloat(fields[aggregatedEvaporationColumn], 64)
	if err != nil {
		return aggregatedRow{}, err
	}
	sm1, err := strconv.ParseFloat(fields[aggregatedSoilLayer1Column], 64)
	if err != nil {
		return aggregatedRow{}, err
	}
	sm2, err := strconv.ParseFloat(fields[aggregatedSoilLayer2Column], 64)
	if err != nil {
		return aggregatedRow{}, err
	}
	sm3, err := strconv.ParseFloat(fields[aggregatedSoilLayer3Column], 64)
	if err != nil {
		return aggregatedRow{}, err
	}
	return aggregatedRow{evap: evap, sm1: sm1, sm2: sm2, sm3: sm3}, nil
}
