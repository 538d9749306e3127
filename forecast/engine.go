// Package forecast implements the forecast engine (component I): a
// bounded-parallel worker pool that runs every particle forward across a
// forecast window, bucketing the per-timestamp outputs into per-variable
// kernel density estimates, bounded by a wall-clock budget that reports
// partial results rather than blocking indefinitely.
package forecast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowstate/padaf/kde"
	"github.com/flowstate/padaf/model"
	"github.com/flowstate/padaf/particle"
)

// variables is the fixed set of output buckets maintained per forecast
// timestamp.
var variables = []string{
	model.VarDischarge,
	model.VarEvaporation,
	model.VarSoilLayer1,
	model.VarSoilLayer2,
	model.VarSoilLayer3,
}

// Options configures one forecast run.
type Options struct {
	StartTime time.Time
	EndTime   time.Time
	ModelStep time.Duration
	// Threads is the worker pool size C. <= 0 means 1.
	Threads int
	// Budget bounds the whole run's wall-clock time; <= 0 means
	// unbounded.
	Budget time.Duration
}

// Engine runs forecasts for a posterior ensemble against a model.WindowRunner.
type Engine struct {
	runner model.WindowRunner
	opts   Options
}

// New returns an Engine.
func New(runner model.WindowRunner, opts Options) *Engine {
	return &Engine{runner: runner, opts: opts}
}

// Result is the outcome of one forecast run.
type Result struct {
	// Timestamps are every forecast timestamp in increasing order.
	Timestamps []time.Time
	// Buckets maps timestamp -> variable name -> fitted KDE.
	Buckets map[time.Time]map[string]*kde.KernelDensity
	// FinalStates maps particle id -> its state at the last timestamp it
	// completed, for chaining subsequent lead times.
	FinalStates map[string]*particle.StateVector
	// Completed and Dropped count particles that did/did not contribute
	// at least one sample.
	Completed, Dropped int
}

// Run executes the forecast: it enqueues every particle, launches
// opts.Threads workers to drain the queue, and returns once all particles
// finish or, when opts.Budget elapses first, once the particles already in
// flight have stopped. A budget timeout reports whatever samples were
// gathered by then; queued-but-undequeued particles are dropped with no
// samples.
func (e *Engine) Run(ctx context.Context, ensemble particle.Ensemble) (*Result, error) {
	timestamps := stepTimestamps(e.opts.StartTime, e.opts.EndTime, e.opts.ModelStep)

	buckets := make(map[time.Time]*varBucket, len(timestamps))
	for _, t := range timestamps {
		buckets[t] = newVarBucket()
	}

	runCtx := ctx
	if e.opts.Budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Budget)
		defer cancel()
	}

	jobs := make(chan int, len(ensemble))
	for i := range ensemble {
		jobs <- i
	}
	close(jobs)

	threads := e.opts.Threads
	if threads <= 0 {
		threads = 1
	}

	finalStates := make(map[string]*particle.StateVector)
	var finalMu sync.Mutex
	var completed int32

	var wg sync.WaitGroup
	for w := 0; w < threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case idx, ok := <-jobs:
					if !ok {
						return
					}
					e.runOne(runCtx, ensemble[idx], idx, buckets, finalStates, &finalMu, &completed)
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		logrus.Warnf("[forecast] wall-clock budget exceeded; waiting for in-flight particles to stop")
		<-done
	}

	result := &Result{
		Timestamps:  timestamps,
		Buckets:     make(map[time.Time]map[string]*kde.KernelDensity, len(buckets)),
		FinalStates: finalStates,
		Completed:   int(atomic.LoadInt32(&completed)),
	}
	result.Dropped = len(ensemble) - result.Completed
	for t, b := range buckets {
		b.computeBandwidths()
		result.Buckets[t] = b.densities
	}

	return result, nil
}

func (e *Engine) runOne(ctx context.Context, p particle.Particle, idx int, buckets map[time.Time]*varBucket, finalStates map[string]*particle.StateVector, finalMu *sync.Mutex, completed *int32) {
	samples, err := e.runner.RunWindow(ctx, idx+1, p.State, e.opts.StartTime, e.opts.EndTime, e.opts.ModelStep)
	if err != nil {
		logrus.Warnf("[forecast] particle %d: %v", idx+1, err)
	}
	if len(samples) == 0 {
		return
	}

	for _, s := range samples {
		if b, ok := buckets[s.Time]; ok {
			b.add(s.Outputs, p.Weight)
		}
	}

	last := samples[len(samples)-1]
	finalMu.Lock()
	finalStates[p.ID] = last.State
	finalMu.Unlock()

	atomic.AddInt32(completed, 1)
}

func stepTimestamps(start, end time.Time, step time.Duration) []time.Time {
	var ts []time.Time
	for t := start.Add(step); !t.After(end); t = t.Add(step) {
		ts = append(ts, t)
	}
	return ts
}

type varBucket struct {
	mu        sync.Mutex
	densities map[string]*kde.KernelDensity
}

func newVarBucket() *varBucket {
	b := &varBucket{densities: make(map[string]*kde.KernelDensity, len(variables))}
	for _, v := range variables {
		b.densities[v] = kde.New()
	}
	return b
}

func (b *varBucket) add(outputs map[string]float64, weight float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, d := range b.densities {
		if v, ok := outputs[name]; ok {
			d.AddSample(v, weight)
		}
	}
}

func (b *varBucket) computeBandwidths() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.densities {
		d.ComputeGaussianBandwidth()
	}
}
