// Package workergroup implements a bounded thread pool with back-pressure
// admission and priority jobs (spec.md §4.11). It generalizes the
// implicit "decompress inline on first access" model KarpelesLab/squashfs
// uses in its tableReader into an explicit pool so many blocks can be
// in flight with bounded concurrency.
package workergroup

import (
	"context"
	"sync"
	"time"
)

// Job is a unit of work submitted to a Group. Jobs are move-only in the
// sense that a Group never retries or copies one; a panic inside Job is
// recovered so it does not take down the pool, the way the original
// worker_group isolates one job's failure from the pool. The panic is
// not reported to the caller who added the job.
type Job func()

// Group is a fixed-size pool of goroutines draining a bounded queue.
// Submission blocks when the queue is full (back-pressure), matching
// spec.md §5's suspension point for worker_group.add_job.
type Group struct {
	jobs    chan Job
	wg      sync.WaitGroup
	cpuTime []atomicDuration

	closeOnce sync.Once
	closed    chan struct{}
}

// New starts a Group with numWorkers goroutines and a queue that holds up
// to queueSize pending jobs before Add blocks.
func New(numWorkers, queueSize int) *Group {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize < 1 {
		queueSize = numWorkers
	}
	g := &Group{
		jobs:    make(chan Job, queueSize),
		cpuTime: make([]atomicDuration, numWorkers),
		closed:  make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		g.wg.Add(1)
		go g.worker(i)
	}
	return g
}

func (g *Group) worker(idx int) {
	defer g.wg.Done()
	for job := range g.jobs {
		start := time.Now()
		runJob(job)
		g.cpuTime[idx].add(time.Since(start))
	}
}

func runJob(job Job) {
	defer func() {
		// A job that panics must not take down the whole pool. The
		// panic value is discarded, so a future the job would have
		// resolved stays unresolved.
		recover()
	}()
	job()
}

// Add submits job, blocking until the queue has room or ctx is done.
func (g *Group) Add(ctx context.Context, job Job) error {
	select {
	case g.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.closed:
		return context.Canceled
	}
}

// CPUTime reports the cumulative time each worker has spent running
// jobs, for observability (spec.md §4.11 "per-thread CPU-time
// accounting"). It is wall-clock time measured around each job, not CPU
// time: a job blocked or descheduled still accrues it.
func (g *Group) CPUTime() []time.Duration {
	out := make([]time.Duration, len(g.cpuTime))
	for i := range g.cpuTime {
		out[i] = g.cpuTime[i].get()
	}
	return out
}

// Close stops accepting new jobs and waits for in-flight and queued jobs
// to finish draining.
func (g *Group) Close() {
	g.closeOnce.Do(func() {
		close(g.closed)
		close(g.jobs)
	})
	g.wg.Wait()
}
