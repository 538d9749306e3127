package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flowstate/padaf/archive"
	"github.com/flowstate/padaf/assim"
	"github.com/flowstate/padaf/config"
	"github.com/flowstate/padaf/forecast"
	"github.com/flowstate/padaf/model"
	"github.com/flowstate/padaf/particle"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the assimilation driver end to end, then forecast from the posterior",
	RunE:  runRun,
}

var (
	runObsPath      string
	runOutDir       string
	runStart        string
	runEnd          string
	runForecastEnd  string
	runInitialValue float64
)

const cliTimestampLayout = "2006-01-02T15:04:05"

func init() {
	runCmd.Flags().StringVar(&runObsPath, "obs", "", "observation file (one value per line)")
	runCmd.Flags().StringVar(&runOutDir, "out", "./out", "output directory for the archive, reports, and checkpoints")
	runCmd.Flags().StringVar(&runStart, "start", "", "assimilation start timestamp, RFC3339-ish (2006-01-02T15:04:05)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "assimilation end timestamp")
	runCmd.Flags().StringVar(&runForecastEnd, "forecast-end", "", "forecast end timestamp; defaults to one day past the assimilation end")
	runCmd.Flags().Float64Var(&runInitialValue, "initial", 10.0, "scalar initial state for the mock scenario's single root particle")
	_ = runCmd.MarkFlagRequired("obs")
	_ = runCmd.MarkFlagRequired("start")
	_ = runCmd.MarkFlagRequired("end")
}

func runRun(cmd *cobra.Command, args []string) error {
	return runAssimilationAndForecast(assimilationRunParams{
		obsPath:      runObsPath,
		outDir:       runOutDir,
		start:        runStart,
		end:          runEnd,
		forecastEnd:  runForecastEnd,
		initialValue: runInitialValue,
	})
}

// assimilationRunParams carries the flag values common to `run` and
// `resume`; resume passes the same parameters a second time so that
// assim.Driver's own Streamflow.txt checkpoint (§4.H) picks up where the
// first invocation left off instead of restarting the window.
type assimilationRunParams struct {
	obsPath      string
	outDir       string
	start        string
	end          string
	forecastEnd  string
	initialValue float64
}

func runAssimilationAndForecast(p assimilationRunParams) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	configureLogging(cfg.Log.Level, cfg.Log.Format)

	start, err := time.Parse(cliTimestampLayout, p.start)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	end, err := time.Parse(cliTimestampLayout, p.end)
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}
	forecastEnd := end.Add(24 * time.Hour)
	if p.forecastEnd != "" {
		forecastEnd, err = time.Parse(cliTimestampLayout, p.forecastEnd)
		if err != nil {
			return fmt.Errorf("--forecast-end: %w", err)
		}
	}

	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", p.outDir, err)
	}

	rng := rand.New(rand.NewSource(1))

	observations, err := assim.LoadObservations(p.obsPath, start.Add(cfg.Time.DAStep.Dur()), cfg.Time.DAStep.Dur())
	if err != nil {
		return err
	}

	arc, err := archive.New(filepath.Join(p.outDir, "archive"), 0, rng)
	if err != nil {
		return err
	}

	factory := func(t time.Time) model.Runner {
		return &model.Mock{Transition: func(s []float64) []float64 { return s }}
	}

	opts := assim.Options{
		Start:          start,
		End:            end,
		DAStep:         cfg.Time.DAStep.Dur(),
		EnsembleSize:   cfg.Ensemble.Size,
		ObsError:       cfg.Observation.Error,
		AbsoluteError:  cfg.Observation.Absolute,
		Resample:       cfg.Ensemble.Resample,
		Perturb:        cfg.Ensemble.Perturb,
		FClassKernels:  cfg.Ensemble.ClassKernels,
		MaxDARetries:   cfg.DA.MaxRetries,
		StreamflowPath: filepath.Join(p.outDir, "Streamflow.txt"),
	}

	seed, err := assim.Seed([]*particle.StateVector{particle.NewStateVector([]float64{p.initialValue})}, cfg.Ensemble.Size, cfg.Ensemble.ClassKernels, rng)
	if err != nil {
		return err
	}

	driver := assim.NewDriver(factory, arc, observations, opts, rng)
	posterior, err := driver.Run(seed)
	if err != nil {
		return fmt.Errorf("assimilation: %w", err)
	}
	logrus.Infof("[padaf] assimilation complete, posterior ensemble size %d", len(posterior))

	return runForecastFrom(cfg, posterior, end, forecastEnd, p.outDir)
}

func runForecastFrom(cfg *config.Config, ensemble particle.Ensemble, start, end time.Time, outDir string) error {
	runner := &model.Mock{Transition: func(s []float64) []float64 { return s }}
	engine := forecast.New(runner, forecast.Options{
		StartTime: start,
		EndTime:   end,
		ModelStep: cfg.Time.ModelStep.Dur(),
		Threads:   cfg.Forecast.ThreadCount,
		Budget:    cfg.Forecast.WallClockBudget.Dur(),
	})

	result, err := engine.Run(context.Background(), ensemble)
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	logrus.Infof("[padaf] forecast complete: %d/%d particles completed", result.Completed, result.Completed+result.Dropped)

	reportsDir := filepath.Join(outDir, "forecast")
	if err := forecast.WriteReports(reportsDir, result); err != nil {
		return err
	}
	return nil
}

func loadCLIConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(cfgFile)
}
