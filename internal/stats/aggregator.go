// Package stats implements the worker's StatsAggregator (spec.md §4.2): a
// near-zero-cost sink for per-request outcomes from potentially hundreds of
// thousands of concurrent UserWorkers, aggregated off the hot path into
// periodic report snapshots.
package stats

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ReportInterval is the cadence at which the aggregator emits a Snapshot
// (spec.md §6).
const ReportInterval = 3 * time.Second

// eventQueueCapacity bounds the success and failure event queues (the
// clear queue holds a single pending request). A full queue causes
// ReportSuccess/ReportFailure to drop the event rather than block — the
// producer-side contract (spec.md §4.2) is "non-blocking; never fails".
const eventQueueCapacity = 65536

type successEvent struct {
	method, name       string
	responseTimeMs     float64
	contentLengthBytes int64
}

type failureEvent struct {
	method, name   string
	responseTimeMs float64
	errorText      string
}

// Aggregator is the StatsAggregator. The exported methods are the producer
// contract; everything else runs exclusively on the aggregation goroutine
// started by Run.
type Aggregator struct {
	logger *zap.SugaredLogger

	successQ chan successEvent
	failureQ chan failureEvent
	clearQ   chan struct{}

	outboundQ chan Snapshot

	dropped atomic.Int64

	reportInterval time.Duration

	// owned exclusively by the goroutine started in Run
	entries map[entryKey]*Entry
	total   *Entry
	errors  map[string]*ErrorEntry
}

// New constructs an Aggregator. Call Run in its own goroutine to start
// aggregating; the zero value is not usable.
func New(logger *zap.SugaredLogger) *Aggregator {
	return &Aggregator{
		logger:         logger,
		successQ:       make(chan successEvent, eventQueueCapacity),
		failureQ:       make(chan failureEvent, eventQueueCapacity),
		clearQ:         make(chan struct{}, 1),
		outboundQ:      make(chan Snapshot, 4),
		entries:        map[entryKey]*Entry{},
		total:          newEntry(totalName, ""),
		errors:         map[string]*ErrorEntry{},
		reportInterval: ReportInterval,
	}
}

// SetReportInterval overrides the snapshot cadence (config.Config.ReportInterval).
// Must be called before Run.
func (a *Aggregator) SetReportInterval(d time.Duration) {
	a.reportInterval = d
}

// ReportSuccess is non-blocking and never fails from the caller's
// perspective (spec.md §4.2). Ordering across producers is not guaranteed.
func (a *Aggregator) ReportSuccess(method, name string, responseTimeMs float64, contentLengthBytes int64) {
	select {
	case a.successQ <- successEvent{method, name, responseTimeMs, contentLengthBytes}:
	default:
		a.dropped.Add(1)
	}
}

// ReportFailure is non-blocking and never fails from the caller's
// perspective.
func (a *Aggregator) ReportFailure(method, name string, responseTimeMs float64, errorText string) {
	select {
	case a.failureQ <- failureEvent{method, name, responseTimeMs, errorText}:
	default:
		a.dropped.Add(1)
	}
}

// RequestClear requests a full reset at the next aggregation tick.
func (a *Aggregator) RequestClear() {
	select {
	case a.clearQ <- struct{}{}:
	default:
	}
}

// Snapshots returns the channel Run publishes report snapshots to.
func (a *Aggregator) Snapshots() <-chan Snapshot {
	return a.outboundQ
}

// QueueDepths reports the current length of each producer queue, for the
// metrics package. len() on a channel is safe to call from any goroutine.
func (a *Aggregator) QueueDepths() map[string]int {
	return map[string]int{
		"success": len(a.successQ),
		"failure": len(a.failureQ),
	}
}

// DroppedEvents returns the number of ReportSuccess/ReportFailure calls
// that were discarded because a producer queue was full. Exposed for the
// metrics package; never affects the producer contract's "never fails"
// guarantee.
func (a *Aggregator) DroppedEvents() int64 {
	return a.dropped.Load()
}

// Run drives the aggregation loop until ctx is canceled. It owns the
// entries table exclusively — no other goroutine may read or write it —
// and never holds a lock across a producer's code, because producers never
// do anything but the non-blocking select send above.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-a.successQ:
			a.logRequest(e.method, e.name, e.responseTimeMs, e.contentLengthBytes)
		case e := <-a.failureQ:
			a.logFailure(e.method, e.name, e.responseTimeMs, e.errorText)
		case <-a.clearQ:
			a.clear()
		case <-ticker.C:
			a.emitSnapshot()
		}
	}
}

func (a *Aggregator) entry(method, name string) *Entry {
	key := entryKey{Method: method, Name: name}
	e, ok := a.entries[key]
	if !ok {
		e = newEntry(name, method)
		a.entries[key] = e
	}
	return e
}

func (a *Aggregator) logRequest(method, name string, rt float64, bytes int64) {
	a.entry(method, name).logRequest(rt, bytes)
	a.total.logRequest(rt, bytes)
}

func (a *Aggregator) logFailure(method, name string, rt float64, errText string) {
	a.entry(method, name).logFailure(rt)
	a.total.logFailure(rt)

	fp := fingerprint(method, name, errText)
	ee, ok := a.errors[fp]
	if !ok {
		ee = &ErrorEntry{Method: method, Name: name, ErrorText: errText}
		a.errors[fp] = ee
	}
	ee.Occurrences++
}

// clear resets all entries and the Total to fresh zero state; histograms
// and per-second maps are emptied (spec.md §4.2).
func (a *Aggregator) clear() {
	for k := range a.entries {
		delete(a.entries, k)
	}
	a.total.reset()
	a.errors = map[string]*ErrorEntry{}
}

// emitSnapshot builds and enqueues one Snapshot, per spec.md §4.2's report
// construction rule: entries with activity are collected, the errors map is
// moved out and emptied, per-entry histograms are preserved (not reset).
func (a *Aggregator) emitSnapshot() {
	snap := Snapshot{
		StatsTotal: a.total.snapshot(),
		Errors:     a.errors,
	}

	for _, e := range a.entries {
		if e.NumRequests > 0 || e.NumFailures > 0 {
			snap.Stats = append(snap.Stats, e.snapshot())
		}
	}

	a.errors = map[string]*ErrorEntry{}

	select {
	case a.outboundQ <- snap:
	case <-time.After(a.reportInterval):
		if a.logger != nil {
			a.logger.Warnw("dropping stats snapshot, outbound queue is backed up")
		}
	}
}
