// Package archive implements the on-disk state archive (component J): a
// directory of tab-separated snapshot files keyed by timestamp, with
// atomic writes, a synthesis path for missing base states, and a
// uniform-random eviction policy once the archive grows past its file cap.
package archive

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/flowstate/padaf/model"
	"github.com/flowstate/padaf/particle"
)

// ErrStateNotFound is returned by Read when no archived snapshot exists for
// the requested timestamp.
var ErrStateNotFound = errors.New("archive: state not found")

// timestampLayout matches the external-interface filename convention
// "yyyyMMdd HH-mm.txt".
const timestampLayout = "20060102 15-04"

const defaultMaxFiles = 50

// Archive is a directory of timestamped ensemble snapshots.
type Archive struct {
	dir      string
	maxFiles int
	rng      *rand.Rand
}

// New returns an Archive rooted at dir, creating it if necessary. maxFiles
// <= 0 selects the default cap of 50. rng drives the uniform-random
// eviction policy and should be the same per-run seeded generator the
// caller uses elsewhere, so that two runs with the same seed produce
// byte-identical archives (testable property 5).
func New(dir string, maxFiles int, rng *rand.Rand) (*Archive, error) {
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: mkdir %s: %w", dir, err)
	}
	return &Archive{dir: dir, maxFiles: maxFiles, rng: rng}, nil
}

func (a *Archive) pathFor(t time.Time) string {
	return filepath.Join(a.dir, t.Format(timestampLayout)+".txt")
}

// Write persists e under timestamp t, overwriting any existing snapshot.
// The write is atomic: the file is written to a temporary path then
// renamed into place, so a crash mid-write never leaves a partial
// snapshot visible under the real name. After writing, the cap is
// enforced.
func (a *Archive) Write(t time.Time, e particle.Ensemble) error {
	path := a.pathFor(t)
	tmp := path + ".tmp"

	if err := writeEnsembleFile(tmp, e); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("archive: rename %s: %w", tmp, err)
	}

	return a.enforceCap()
}

func writeEnsembleFile(path string, e particle.Ensemble) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	dim := e.Dim()

	header := make([]string, 0, dim+2)
	header = append(header, "Id", "Weight")
	for d := 0; d < dim; d++ {
		header = append(header, fmt.Sprintf("var_%d", d+1))
	}
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		f.Close()
		return fmt.Errorf("archive: write header: %w", err)
	}

	for _, p := range e {
		row := make([]string, 0, dim+2)
		row = append(row, p.ID, strconv.FormatFloat(p.Weight, 'g', -1, 64))
		for _, v := range particle.StateData(p.State) {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			f.Close()
			return fmt.Errorf("archive: write row: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("archive: flush %s: %w", path, err)
	}
	return f.Close()
}

// Read returns the ensemble archived at t, or ErrStateNotFound if no
// snapshot exists for that exact timestamp.
func (a *Archive) Read(t time.Time) (particle.Ensemble, error) {
	path := a.pathFor(t)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("archive: %s: empty file", path)
	}

	var e particle.Ensemble
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("archive: %s: malformed row %q", path, line)
		}

		weight, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("archive: %s: weight: %w", path, err)
		}

		values := make([]float64, 0, len(fields)-2)
		for _, raw := range fields[2:] {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("archive: %s: value: %w", path, err)
			}
			values = append(values, v)
		}

		e = append(e, particle.Particle{ID: fields[0], State: particle.NewStateVector(values), Weight: weight})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("archive: %s: %w", path, err)
	}
	return e, nil
}

// NearestBefore returns the most recent archived timestamp strictly less
// than t, and whether one exists.
func (a *Archive) NearestBefore(t time.Time) (time.Time, bool) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return time.Time{}, false
	}

	var best time.Time
	found := false
	for _, entry := range entries {
		ts, ok := parseTimestamp(entry.Name())
		if !ok || !ts.Before(t) {
			continue
		}
		if !found || ts.After(best) {
			best = ts
			found = true
		}
	}
	return best, found
}

func parseTimestamp(name string) (time.Time, bool) {
	if !strings.HasSuffix(name, ".txt") {
		return time.Time{}, false
	}
	t, err := time.Parse(timestampLayout, strings.TrimSuffix(name, ".txt"))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// enforceCap deletes uniformly-randomly chosen snapshots, never the newest
// one, until the archive holds at most maxFiles: a coarse memory bound,
// not an LRU.
func (a *Archive) enforceCap() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("archive: list %s: %w", a.dir, err)
	}

	var files []string
	newest := -1
	var newestT time.Time
	for _, entry := range entries {
		ts, ok := parseTimestamp(entry.Name())
		if !ok {
			continue
		}
		if newest < 0 || ts.After(newestT) {
			newest, newestT = len(files), ts
		}
		files = append(files, entry.Name())
	}
	if newest < 0 {
		return nil
	}
	// The newest snapshot is not an eviction candidate but still counts
	// towards the cap.
	files[newest] = files[len(files)-1]
	files = files[:len(files)-1]

	for len(files)+1 > a.maxFiles {
		idx := a.rng.Intn(len(files))
		victim := files[idx]
		if err := os.Remove(filepath.Join(a.dir, victim)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("archive: evict %s: %w", victim, err)
		}
		files[idx] = files[len(files)-1]
		files = files[:len(files)-1]
	}
	return nil
}

// ReadOrSynthesize returns the ensemble at t, synthesising it when absent:
// it reads the nearest prior snapshot and runs the model forward step by
// step to t, caching the result before returning it.
func (a *Archive) ReadOrSynthesize(t time.Time, step time.Duration, runner model.Runner) (particle.Ensemble, error) {
	e, err := a.Read(t)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return nil, err
	}

	base, ok := a.NearestBefore(t)
	if !ok {
		return nil, ErrStateNotFound
	}
	current, err := a.Read(base)
	if err != nil {
		return nil, err
	}

	for cursor := base; cursor.Before(t); cursor = cursor.Add(step) {
		next := make(particle.Ensemble, len(current))
		for i, p := range current {
			res := runner.Run(i+1, p.State)
			if !res.Ok() {
				next[i] = p
				continue
			}
			next[i] = particle.Particle{ID: p.ID, State: res.State, Weight: p.Weight}
		}
		current = next
	}

	if err := a.Write(t, current); err != nil {
		return nil, err
	}
	return current, nil
}
