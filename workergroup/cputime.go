package workergroup

import (
	"sync/atomic"
	"time"
)

// atomicDuration accumulates a time.Duration across goroutines using an
// atomic int64 of nanoseconds.
type atomicDuration struct {
	nanos int64
}

func (d *atomicDuration) add(v time.Duration) {
	atomic.AddInt64(&d.nanos, int64(v))
}

func (d *atomicDuration) get() time.Duration {
	return time.Duration(atomic.LoadInt64(&d.nanos))
}
