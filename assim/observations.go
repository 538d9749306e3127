package assim

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadObservations parses an observation file (one numeric value per
// line) into a time -> value map, assigning the first line to start and
// stepping by step thereafter, per the external interface contract (§6).
func LoadObservations(path string, start time.Time, step time.Duration) (map[time.Time]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("assim: open observations %s: %w", path, err)
	}
	defer f.Close()

	result := make(map[time.Time]float64)
	scanner := bufio.NewScanner(f)

	t := start
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("assim: observations %s: %w", path, err)
		}
		result[t] = v
		t = t.Add(step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("assim: read observations %s: %w", path, err)
	}
	return result, nil
}
