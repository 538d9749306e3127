package forecast

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/flowstate/padaf/model"
)

// Performance holds the six scalar forecast-quality metrics computed over
// every timestamp with a matching observation in the forecast window.
type Performance struct {
	NSEL2                float64
	NSEL1                float64
	MeanAbsRelativeError float64
	MeanPdf              float64
	MeanCRPS             float64
	MeanRarity           float64
}

// ComputePerformance evaluates the discharge bucket of result against
// observations at every timestamp both cover.
func ComputePerformance(result *Result, observations map[time.Time]float64) (Performance, error) {
	var obsVals, predVals, pdfs, crpss, rarities []float64

	for _, t := range result.Timestamps {
		observed, ok := observations[t]
		if !ok {
			continue
		}
		d := result.Buckets[t][model.VarDischarge]
		if d == nil || d.Len() == 0 {
			continue
		}

		obsVals = append(obsVals, observed)
		predVals = append(predVals, d.Mean())

		if pdf, err := d.Pdf(observed); err == nil {
			pdfs = append(pdfs, pdf)
		}
		if crps, err := d.EnsembleCRPS(observed); err == nil {
			crpss = append(crpss, crps)
		}
		if cdf, err := d.Cdf(observed); err == nil {
			rarities = append(rarities, 2*math.Abs(cdf-0.5))
		}
	}

	if len(obsVals) == 0 {
		return Performance{}, fmt.Errorf("forecast: no overlapping observations for performance metrics")
	}

	meanObs := mean(obsVals)

	var sqErr, absErr, sqDevMean, absDevMean, relErr float64
	for i := range obsVals {
		diff := obsVals[i] - predVals[i]
		sqErr += diff * diff
		absErr += math.Abs(diff)

		devMean := obsVals[i] - meanObs
		sqDevMean += devMean * devMean
		absDevMean += math.Abs(devMean)

		if obsVals[i] != 0 {
			relErr += math.Abs(diff) / math.Abs(obsVals[i])
		}
	}

	perf := Performance{
		MeanAbsRelativeError: relErr / float64(len(obsVals)),
		MeanPdf:              mean(pdfs),
		MeanCRPS:             mean(crpss),
		MeanRarity:           mean(rarities),
		NSEL2:                math.NaN(),
		NSEL1:                math.NaN(),
	}
	if sqDevMean > 0 {
		perf.NSEL2 = 1 - sqErr/sqDevMean
	}
	if absDevMean > 0 {
		perf.NSEL1 = 1 - absErr/absDevMean
	}

	return perf, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// WritePerformance writes the six metrics to Performance.txt.
func WritePerformance(path string, perf Performance) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("forecast: create %s: %w", path, err)
	}
	defer f.Close()

	rows := []struct {
		name  string
		value float64
	}{
		{"NSE (L2)", perf.NSEL2},
		{"NSE (L1)", perf.NSEL1},
		{"Mean absolute relative error", perf.MeanAbsRelativeError},
		{"Mean pdf", perf.MeanPdf},
		{"Mean CRPS", perf.MeanCRPS},
		{"Mean rarity", perf.MeanRarity},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(f, "%s\t%s\n", r.name, formatFloat(r.value)); err != nil {
			return fmt.Errorf("forecast: write %s: %w", path, err)
		}
	}
	return nil
}
