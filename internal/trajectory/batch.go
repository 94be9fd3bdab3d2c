package trajectory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/star/ascent/internal/dynamics"
)

// Run is one independent simulation configuration.
type Run struct {
	Name    string
	Model   dynamics.Model
	Grid    []float64
	Options Options
}

// Result is the output of a single run.
type Result struct {
	Name       string
	Trajectory *Trajectory
	Duration   time.Duration
	Err        error
}

// batchJob is a unit of work for the worker pool.
type batchJob struct {
	index int
	run   Run
}

// batchResult carries a result back to its slot.
type batchResult struct {
	index  int
	result Result
}

// WorkerPool runs simulations on a fixed number of goroutines. Each run owns
// its integrator, so runs share nothing.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// RunBatch simulates every run and returns results in input order, along
// with success and failure counts. Runs not started before ctx is cancelled
// carry ctx.Err().
func (wp *WorkerPool) RunBatch(ctx context.Context, runs []Run) ([]Result, int, int) {
	if len(runs) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan batchJob, wp.workers*2)
	results := make(chan batchResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- batchResult{index: job.index, result: runSingle(ctx, job.run)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, run := range runs {
			select {
			case jobs <- batchJob{index: i, run: run}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, len(runs))
	done := make([]bool, len(runs))
	var successCount, errorCount int

	for r := range results {
		out[r.index] = r.result
		done[r.index] = true
		if r.result.Err != nil {
			errorCount++
			wp.logger.Warn("simulation failed",
				"run", r.result.Name,
				"error", r.result.Err,
			)
			continue
		}
		successCount++
	}

	for i := range out {
		if !done[i] {
			out[i] = Result{Name: runs[i].Name, Err: ctx.Err()}
			errorCount++
		}
	}

	return out, successCount, errorCount
}

func runSingle(ctx context.Context, run Run) Result {
	start := time.Now()
	tr, err := Simulate(ctx, run.Model, run.Grid, run.Options)
	return Result{
		Name:       run.Name,
		Trajectory: tr,
		Duration:   time.Since(start),
		Err:        err,
	}
}
