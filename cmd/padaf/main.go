// Command padaf is a small cobra CLI exercising the assimilation driver
// and forecast engine end to end against the in-memory mock model. It
// does not implement a real hydrologic scenario, configurator, or grid
// I/O; those remain the responsibility of a caller that owns a
// simulator.Adapter-compatible binary and its input configurator.
package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "padaf",
	Short: "Sequential Monte-Carlo data assimilation and forecasting",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (built-in defaults when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(forecastCmd)
}

func configureLogging(level, format string) {
	if verbose {
		level = "debug"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Fatalf("invalid log level %q: %v", level, err)
	}
	logrus.SetLevel(parsed)
	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
