// Package userworker implements the per-simulated-user driver loop
// (spec.md §4.5): acquire a rate-limiter token, pick a task, run it,
// report the outcome, repeat until told to stop.
package userworker

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusload/swarmworker/internal/ratelimiter"
	"github.com/nimbusload/swarmworker/internal/stats"
	"github.com/nimbusload/swarmworker/internal/task"
)

// unknownErrorType tags a failure reported on a user task's behalf after
// its error escaped as a Go error or a recovered panic, matching the
// wire-visible "unknown" error type of the originating runtime (spec.md
// §4.5).
const unknownErrorType = "unknown"

// Worker runs one simulated user. Its loop checks the stop flag only
// between iterations, never inside task code — cancellation is
// cooperative (spec.md §4.5, §5).
type Worker struct {
	id        int
	limiter   ratelimiter.RateLimiter // nil when unconfigured
	selector  *task.Selector
	aggregator *stats.Aggregator
	logger    *zap.SugaredLogger

	stopped atomic.Bool
	done    chan struct{}
}

// New constructs a Worker. limiter may be nil, meaning the Runner did not
// configure a rate limiter; the worker then runs unthrottled.
func New(id int, limiter ratelimiter.RateLimiter, selector *task.Selector, aggregator *stats.Aggregator, logger *zap.SugaredLogger) *Worker {
	return &Worker{
		id:         id,
		limiter:    limiter,
		selector:   selector,
		aggregator: aggregator,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Stop sets the cooperative cancellation flag. The worker observes it at
// the top of its next loop iteration and exits; Stop does not block on
// that exit (spec.md §4.6's "do not block on their exit").
func (w *Worker) Stop() {
	w.stopped.Store(true)
}

// IsStopped reports whether Stop has been called.
func (w *Worker) IsStopped() bool {
	return w.stopped.Load()
}

// Done is closed once the loop has observed cancellation and returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run drives the loop until Stop is called. Call it in its own goroutine.
func (w *Worker) Run() {
	defer close(w.done)

	for {
		if w.stopped.Load() {
			return
		}

		if w.limiter != nil {
			if !w.limiter.Acquire() {
				// Limiter stopped out from under us; treat like a
				// cancellation request rather than spinning.
				return
			}
		}

		t := w.selector.Pick()
		w.runTask(t)
	}
}

func (w *Worker) runTask(t task.Task) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			elapsed := time.Since(start)
			w.reportUnknownFailure(t.Name, elapsed, fmt.Sprintf("%v", r))
		}
	}()

	err := t.Fn()
	if err != nil {
		elapsed := time.Since(start)
		w.reportUnknownFailure(t.Name, elapsed, err.Error())
	}
}

// reportUnknownFailure is the worker-shell fallback path: user code is not
// required to call reportSuccess/reportFailure itself (spec.md §4.5's
// default is that the task does its own timing), but if it throws without
// reporting, the shell reports on its behalf with elapsed wall time.
func (w *Worker) reportUnknownFailure(name string, elapsed time.Duration, errText string) {
	w.aggregator.ReportFailure(unknownErrorType, name, float64(elapsed.Milliseconds()), errText)
	if w.logger != nil {
		w.logger.Warnw("user task failed", "worker_id", w.id, "task", name, "error", errText)
	}
}
