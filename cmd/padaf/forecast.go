package main

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowstate/padaf/archive"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Load a posterior ensemble from the archive and run only the forecast engine",
	RunE:  runForecastCmd,
}

var (
	forecastOutDir string
	forecastAt     string
	forecastEnd    string
)

func init() {
	forecastCmd.Flags().StringVar(&forecastOutDir, "out", "./out", "output directory holding the archive")
	forecastCmd.Flags().StringVar(&forecastAt, "at", "", "archived timestamp to forecast from")
	forecastCmd.Flags().StringVar(&forecastEnd, "end", "", "forecast end timestamp; defaults to one day past --at")
	_ = forecastCmd.MarkFlagRequired("at")
}

func runForecastCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	configureLogging(cfg.Log.Level, cfg.Log.Format)

	at, err := time.Parse(cliTimestampLayout, forecastAt)
	if err != nil {
		return fmt.Errorf("--at: %w", err)
	}
	end := at.Add(24 * time.Hour)
	if forecastEnd != "" {
		end, err = time.Parse(cliTimestampLayout, forecastEnd)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
	}

	arc, err := archive.New(filepath.Join(forecastOutDir, "archive"), 0, rand.New(rand.NewSource(1)))
	if err != nil {
		return err
	}

	ensemble, err := arc.Read(at)
	if err != nil {
		return fmt.Errorf("load posterior at %s: %w", at, err)
	}

	return runForecastFrom(cfg, ensemble, at, end, forecastOutDir)
}
