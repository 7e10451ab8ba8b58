package stats

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLogFailureIsAdditive(t *testing.T) {
	a := New(nil)

	a.logFailure("GET", "/foo", 12.5, "boom")

	e := a.entry("GET", "/foo")
	if e.NumRequests != 1 {
		t.Fatalf("NumRequests = %d, want 1 (a failure must also count as a request)", e.NumRequests)
	}
	if e.NumFailures != 1 {
		t.Fatalf("NumFailures = %d, want 1", e.NumFailures)
	}
	if a.total.NumRequests != 1 || a.total.NumFailures != 1 {
		t.Fatalf("total not updated: %+v", a.total)
	}
}

func TestTotalEqualsSumOfEntries(t *testing.T) {
	a := New(nil)

	a.logRequest("GET", "/a", 10, 100)
	a.logRequest("GET", "/a", 20, 200)
	a.logRequest("POST", "/b", 30, 300)
	a.logFailure("POST", "/b", 40, "boom")

	snap := a.snapshotForTest()

	var sumReq, sumFail, sumBytes int64
	var sumRT float64
	for _, e := range snap.Stats {
		sumReq += e.NumRequests
		sumFail += e.NumFailures
		sumBytes += e.TotalContentLength
		sumRT += e.TotalResponseTime
	}

	if sumReq != snap.StatsTotal.NumRequests {
		t.Errorf("sum NumRequests = %d, total = %d", sumReq, snap.StatsTotal.NumRequests)
	}
	if sumFail != snap.StatsTotal.NumFailures {
		t.Errorf("sum NumFailures = %d, total = %d", sumFail, snap.StatsTotal.NumFailures)
	}
	if sumBytes != snap.StatsTotal.TotalContentLength {
		t.Errorf("sum TotalContentLength = %d, total = %d", sumBytes, snap.StatsTotal.TotalContentLength)
	}
	if sumRT != snap.StatsTotal.TotalResponseTime {
		t.Errorf("sum TotalResponseTime = %v, total = %v", sumRT, snap.StatsTotal.TotalResponseTime)
	}
}

func TestMinMaxResponseTimeBounds(t *testing.T) {
	a := New(nil)

	rts := []float64{55, 10, 999, 3, 400}
	for _, rt := range rts {
		a.logRequest("GET", "/x", rt, 1)
	}

	e := a.entry("GET", "/x")
	for _, rt := range rts {
		if rt < e.MinResponseTime || rt > e.MaxResponseTime {
			t.Fatalf("rt %v outside [%v, %v]", rt, e.MinResponseTime, e.MaxResponseTime)
		}
	}
	if e.MinResponseTime != 3 || e.MaxResponseTime != 999 {
		t.Fatalf("got min=%v max=%v, want min=3 max=999", e.MinResponseTime, e.MaxResponseTime)
	}
}

func TestRequestsPerSecondNeverExceedsTotal(t *testing.T) {
	a := New(nil)

	for i := 0; i < 25; i++ {
		a.logRequest("GET", "/x", float64(i), 1)
	}

	e := a.entry("GET", "/x")
	var sumPerSec int64
	for _, n := range e.ReqsPerSec {
		sumPerSec += n
	}
	if sumPerSec != e.NumRequests {
		t.Fatalf("sum(reqsPerSec) = %d, NumRequests = %d", sumPerSec, e.NumRequests)
	}
	for sec, n := range e.ReqsPerSec {
		if n > e.NumRequests {
			t.Fatalf("reqsPerSec[%d] = %d exceeds NumRequests %d", sec, n, e.NumRequests)
		}
	}
}

func TestClearResetsToZeroState(t *testing.T) {
	a := New(nil)

	a.logRequest("GET", "/a", 10, 100)
	a.logFailure("GET", "/a", 20, "boom")
	a.clear()

	if len(a.entries) != 0 {
		t.Fatalf("entries not cleared: %v", a.entries)
	}
	if len(a.errors) != 0 {
		t.Fatalf("errors not cleared: %v", a.errors)
	}
	if a.total.NumRequests != 0 || a.total.NumFailures != 0 {
		t.Fatalf("total not reset: %+v", a.total)
	}

	snap := a.snapshotForTest()
	if len(snap.Stats) != 0 {
		t.Fatalf("snapshot after clear has entries: %v", snap.Stats)
	}
	if snap.StatsTotal.NumRequests != 0 {
		t.Fatalf("snapshot total after clear: %+v", snap.StatsTotal)
	}
}

func TestEmitSnapshotMovesErrorsOut(t *testing.T) {
	a := New(nil)

	a.logFailure("GET", "/a", 5, "boom")
	if len(a.errors) != 1 {
		t.Fatalf("expected one error bucket before emit, got %d", len(a.errors))
	}

	snap := a.snapshotForTest()
	if len(snap.Errors) != 1 {
		t.Fatalf("expected snapshot to carry the error bucket, got %d", len(snap.Errors))
	}
	if len(a.errors) != 0 {
		t.Fatalf("errors map should be emptied after emit, still has %d", len(a.errors))
	}
}

// snapshotForTest calls emitSnapshot and returns what landed on outboundQ,
// bypassing Run's ticker so invariant tests don't need to wait out
// ReportInterval.
func (a *Aggregator) snapshotForTest() Snapshot {
	a.emitSnapshot()
	select {
	case s := <-a.outboundQ:
		return s
	default:
		panic("emitSnapshot did not enqueue a snapshot")
	}
}

// TestConcurrentProducersAggregateExactly drives the real producer contract
// (ReportSuccess, non-blocking, called from many goroutines) through a live
// Run loop and checks the aggregate lands exactly where arithmetic says it
// must: 100 producers x 1000 calls = 100000 requests, 100 bytes each =
// 10,000,000 total content length, and exactly 50 distinct histogram
// buckets for response times drawn from [10, 59].
func TestConcurrentProducersAggregateExactly(t *testing.T) {
	a := New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	const producers = 100
	const perProducer = 1000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				rt := float64(10 + i%50)
				a.ReportSuccess("GET", "/load", rt, 100)
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for len(a.successQ) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("producer queue never drained, %d events left", len(a.successQ))
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done

	if a.DroppedEvents() != 0 {
		t.Fatalf("DroppedEvents = %d, want 0 (queue capacity %d)", a.DroppedEvents(), eventQueueCapacity)
	}

	want := int64(producers * perProducer)
	if a.total.NumRequests != want {
		t.Fatalf("total.NumRequests = %d, want %d", a.total.NumRequests, want)
	}
	if a.total.TotalContentLength != want*100 {
		t.Fatalf("total.TotalContentLength = %d, want %d", a.total.TotalContentLength, want*100)
	}
	if len(a.total.ResponseTimes) != 50 {
		t.Fatalf("distinct histogram buckets = %d, want 50", len(a.total.ResponseTimes))
	}
}
