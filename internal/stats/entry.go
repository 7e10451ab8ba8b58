package stats

import "time"

// entryKey identifies a per-(name, method) bucket. The "Total" bucket uses
// the zero key's sentinel name below.
type entryKey struct {
	Method string
	Name   string
}

const totalName = "Total"

// Entry is a per-(name, method) (or Total) counter set, mutated exclusively
// by the aggregation goroutine (spec.md §3, §5 ownership rule).
type Entry struct {
	Name   string
	Method string

	NumRequests        int64
	NumFailures        int64
	TotalResponseTime  float64
	TotalContentLength int64

	minSet          bool
	MinResponseTime float64
	MaxResponseTime float64

	StartTime            time.Time
	LastRequestTimestamp time.Time

	ResponseTimes histogram
	ReqsPerSec    map[int64]int64
	FailsPerSec   map[int64]int64
}

func newEntry(name, method string) *Entry {
	return &Entry{
		Name:          name,
		Method:        method,
		StartTime:     time.Now(),
		ResponseTimes: histogram{},
		ReqsPerSec:    map[int64]int64{},
		FailsPerSec:   map[int64]int64{},
	}
}

// logRequest is the single mutation path for both successes and the
// response-time side-effect of a failure (spec.md §4.2's aggregation
// rules): it always increments numRequests, even when called from a failed
// attempt, matching the additive interpretation of numFailures picked in
// SPEC_FULL.md/DESIGN.md.
func (e *Entry) logRequest(rt float64, bytes int64) {
	now := time.Now()

	e.NumRequests++
	e.TotalResponseTime += rt
	e.TotalContentLength += bytes
	e.LastRequestTimestamp = now

	if !e.minSet || rt < e.MinResponseTime {
		e.MinResponseTime = rt
		e.minSet = true
	}
	if rt > e.MaxResponseTime {
		e.MaxResponseTime = rt
	}

	e.ResponseTimes.record(rt)
	e.ReqsPerSec[now.Unix()]++
}

func (e *Entry) logFailure(rt float64) {
	e.NumFailures++
	e.FailsPerSec[time.Now().Unix()]++
	e.logRequest(rt, 0)
}

// snapshot returns a deep-enough copy safe to hand off the aggregation
// goroutine's ownership boundary (spec.md §5).
func (e *Entry) snapshot() *Entry {
	out := *e
	out.ResponseTimes = e.ResponseTimes.clone()
	out.ReqsPerSec = cloneCounts(e.ReqsPerSec)
	out.FailsPerSec = cloneCounts(e.FailsPerSec)
	return &out
}

func cloneCounts(m map[int64]int64) map[int64]int64 {
	out := make(map[int64]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (e *Entry) reset() {
	name, method := e.Name, e.Method
	*e = *newEntry(name, method)
}

// MinResponseTimeOrZero returns 0 when no request has been observed yet,
// matching the wire payload's "unset" sentinel (spec.md §3).
func (e *Entry) MinResponseTimeOrZero() float64 {
	if !e.minSet {
		return 0
	}
	return e.MinResponseTime
}
