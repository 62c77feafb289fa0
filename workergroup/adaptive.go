package workergroup

import (
	"context"
	"sync"
	"time"
)

// AdaptiveGroup wraps a fixed-size Group with a semaphore that throttles
// the *effective* parallelism between 1 and the pool's full size, based
// on a rolling CPU-utilization sample (spec.md §4.11): above a high
// watermark it releases one slot (widens parallelism), below a low
// watermark it takes one back (narrows it).
type AdaptiveGroup struct {
	inner *Group
	max   int

	mu      sync.Mutex
	permits int // currently granted concurrency slots
	sem     chan struct{}

	highWatermark float64
	lowWatermark  float64
}

// NewAdaptive wraps group, whose worker count is max, with load-adaptive
// throttling between 1 and max concurrent jobs.
func NewAdaptive(group *Group, max int) *AdaptiveGroup {
	if max < 1 {
		max = 1
	}
	a := &AdaptiveGroup{
		inner:         group,
		max:           max,
		permits:       max,
		sem:           make(chan struct{}, max),
		highWatermark: 0.75,
		lowWatermark:  0.25,
	}
	for i := 0; i < max; i++ {
		a.sem <- struct{}{}
	}
	return a
}

// Add submits job, first acquiring one of the currently granted
// concurrency permits (fewer than max when the group has throttled down).
func (a *AdaptiveGroup) Add(ctx context.Context, job Job) error {
	select {
	case <-a.sem:
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.inner.Add(ctx, func() {
		defer func() { a.sem <- struct{}{} }()
		job()
	})
}

// Observe feeds a rolling CPU-utilization sample (0..1) and adjusts
// effective parallelism: load > high watermark releases one slot back to
// the semaphore (if fewer than max outstanding), load < low watermark
// removes one slot (down to a floor of 1).
func (a *AdaptiveGroup) Observe(load float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case load > a.highWatermark && a.permits < a.max:
		a.permits++
		select {
		case a.sem <- struct{}{}:
		default:
		}
	case load < a.lowWatermark && a.permits > 1:
		select {
		case <-a.sem:
			a.permits--
		default:
		}
	}
}

// CPUTime delegates to the wrapped Group.
func (a *AdaptiveGroup) CPUTime() []time.Duration { return a.inner.CPUTime() }

// Close delegates to the wrapped Group.
func (a *AdaptiveGroup) Close() { a.inner.Close() }
