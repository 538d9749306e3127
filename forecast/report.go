package forecast

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const reportTimestampLayout = "2006-01-02 15:04:05"

// WriteReports emits the per-lead-time text reports (§6): Stats.txt (one
// row per timestamp with mean/stdev per variable), one values file per
// variable, and a single weights file W.txt holding the weights of the
// discharge (Q) samples in Q.txt's order, all keyed by timestamp.
func WriteReports(dir string, result *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("forecast: mkdir %s: %w", dir, err)
	}

	sorted := make([]time.Time, len(result.Timestamps))
	copy(sorted, result.Timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	if err := writeStats(filepath.Join(dir, "Stats.txt"), sorted, result); err != nil {
		return err
	}

	fileNames := map[string]string{
		"Q":   "Q.txt",
		"Ev":  "Ev.txt",
		"SM1": "SM1.txt",
		"SM2": "SM2.txt",
		"SM3": "SM3.txt",
	}
	for v, name := range fileNames {
		if err := writeVariableTable(filepath.Join(dir, name), sorted, result, v, false); err != nil {
			return err
		}
	}
	if err := writeVariableTable(filepath.Join(dir, "W.txt"), sorted, result, "Q", true); err != nil {
		return err
	}

	return nil
}

func writeStats(path string, sorted []time.Time, result *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("forecast: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "Date time\tMean Q\tSt. dev. Q\tMean Ev\tSt. dev. Ev\tMean SM1\tSt. dev. SM1\tMean SM2\tSt. dev. SM2\tMean SM3\tSt. dev. SM3"); err != nil {
		return err
	}

	for _, t := range sorted {
		row := []string{t.Format(reportTimestampLayout)}
		buckets := result.Buckets[t]
		for _, v := range variables {
			d := buckets[v]
			row = append(row, formatFloat(d.Mean()), formatFloat(d.StdDev()))
		}
		if _, err := fmt.Fprintln(f, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func writeVariableTable(path string, sorted []time.Time, result *Result, variable string, weights bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("forecast: create %s: %w", path, err)
	}
	defer f.Close()

	for _, t := range sorted {
		d := result.Buckets[t][variable]
		values, sampleWeights := d.SortedSamples()
		row := []string{t.Format(reportTimestampLayout)}
		source := values
		if weights {
			source = sampleWeights
		}
		for _, v := range source {
			row = append(row, formatFloat(v))
		}
		if _, err := fmt.Fprintln(f, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
