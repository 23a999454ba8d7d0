// Package job provides the global job dispatcher: a fixed worker-thread
// pool with a delayed-job timer. A Job pairs a function with a byte
// payload; island workers dispatch their update jobs with a plain-bytes
// payload (an encoded worker handle). The chunk jobs of ParallelFor are
// closures instead: they capture the caller's fn and a completion counter
// shared by every chunk of one call.
package job

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Job is a unit of work: a function pointer and its opaque payload.
type Job struct {
	Data []byte
	Fn   func(data []byte)
}

// Dispatcher owns the worker pool and the delayed-job timer.
type Dispatcher struct {
	queue chan Job
	wg    sync.WaitGroup

	// mu guards stopped and timers; Dispatch holds it shared while
	// sending so Stop cannot close the queue under a sender.
	mu      sync.RWMutex
	stopped bool
	timers  map[*time.Timer]struct{}
}

// NewDispatcher starts a pool with the given number of worker goroutines
// (GOMAXPROCS when workers <= 0).
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	d := &Dispatcher{
		queue:  make(chan Job, 1024),
		timers: make(map[*time.Timer]struct{}),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		j.Fn(j.Data)
	}
}

// Dispatch enqueues a job for the pool. Dispatching after Stop is a no-op.
func (d *Dispatcher) Dispatch(j Job) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}
	d.queue <- j
}

// DispatchAfter enqueues the job once the delay elapses.
func (d *Dispatcher) DispatchAfter(delay time.Duration, j Job) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, t)
		d.mu.Unlock()
		d.Dispatch(j)
	})
	d.timers[t] = struct{}{}
	d.mu.Unlock()
}

// ParallelFor splits [0,n) across the pool and dispatches completion
// exactly once after every index has been processed. fn must only touch
// pre-partitioned per-index state.
func (d *Dispatcher) ParallelFor(n int, fn func(i int), completion Job) {
	if n <= 0 {
		d.Dispatch(completion)
		return
	}

	workers := runtime.GOMAXPROCS(0)
	chunkSize := (n + workers - 1) / workers
	chunks := (n + chunkSize - 1) / chunkSize

	var remaining atomic.Int64
	remaining.Store(int64(chunks))

	for c := 0; c < chunks; c++ {
		start := c * chunkSize
		end := min(start+chunkSize, n)
		d.Dispatch(Job{Fn: func([]byte) {
			for i := start; i < end; i++ {
				fn(i)
			}
			if remaining.Add(-1) == 0 {
				d.Dispatch(completion)
			}
		}})
	}
}

// Stop drains the pool and cancels pending delayed jobs.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for t := range d.timers {
		t.Stop()
	}
	d.timers = nil
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
