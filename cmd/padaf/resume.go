package main

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Re-invoke run against an existing output directory, resuming from its checkpoint",
	RunE:  runResume,
}

var (
	resumeObsPath      string
	resumeOutDir       string
	resumeStart        string
	resumeEnd          string
	resumeForecastEnd  string
	resumeInitialValue float64
)

func init() {
	resumeCmd.Flags().StringVar(&resumeObsPath, "obs", "", "observation file (one value per line)")
	resumeCmd.Flags().StringVar(&resumeOutDir, "out", "./out", "output directory used by the original run")
	resumeCmd.Flags().StringVar(&resumeStart, "start", "", "the original run's assimilation start timestamp")
	resumeCmd.Flags().StringVar(&resumeEnd, "end", "", "the original (or extended) assimilation end timestamp")
	resumeCmd.Flags().StringVar(&resumeForecastEnd, "forecast-end", "", "forecast end timestamp; defaults to one day past the assimilation end")
	resumeCmd.Flags().Float64Var(&resumeInitialValue, "initial", 10.0, "unused once Streamflow.txt has a checkpoint, kept for symmetry with run")
	_ = resumeCmd.MarkFlagRequired("obs")
	_ = resumeCmd.MarkFlagRequired("start")
	_ = resumeCmd.MarkFlagRequired("end")
}

// runResume re-invokes the same assimilation-then-forecast path as `run`.
// assim.Driver detects the existing Streamflow.txt checkpoint in --out and
// resumes from it (§4.H), so no separate resume-specific driver logic is
// needed here.
func runResume(cmd *cobra.Command, args []string) error {
	return runAssimilationAndForecast(assimilationRunParams{
		obsPath:      resumeObsPath,
		outDir:       resumeOutDir,
		start:        resumeStart,
		end:          resumeEnd,
		forecastEnd:  resumeForecastEnd,
		initialValue: resumeInitialValue,
	})
}
