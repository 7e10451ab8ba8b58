package runner

import (
	"github.com/nimbusload/swarmworker/internal/protocol"
	"github.com/nimbusload/swarmworker/internal/stats"
)

// statsPayload converts an aggregator Snapshot into the wire-visible
// StatsPayload of spec.md §6.
func statsPayload(snap stats.Snapshot, userCount int64) protocol.StatsPayload {
	out := protocol.StatsPayload{
		Stats:     make([]protocol.StatsEntryPayload, len(snap.Stats)),
		StatsTotal: statsEntryPayload(snap.StatsTotal),
		Errors:    make(map[string]protocol.StatsErrorPayload, len(snap.Errors)),
		UserCount: userCount,
	}

	for i, e := range snap.Stats {
		out.Stats[i] = statsEntryPayload(e)
	}
	for fp, e := range snap.Errors {
		out.Errors[fp] = protocol.StatsErrorPayload{
			Method:      e.Method,
			Name:        e.Name,
			ErrorText:   e.ErrorText,
			Occurrences: e.Occurrences,
		}
	}
	return out
}

func statsEntryPayload(e *stats.Entry) protocol.StatsEntryPayload {
	p := protocol.StatsEntryPayload{
		Name:                 e.Name,
		Method:               e.Method,
		LastRequestTimestamp: float64(e.LastRequestTimestamp.UnixNano()) / 1e9,
		StartTime:            float64(e.StartTime.UnixNano()) / 1e9,
		NumRequests:          e.NumRequests,
		NumFailures:          e.NumFailures,
		TotalResponseTime:    e.TotalResponseTime,
		MaxResponseTime:      e.MaxResponseTime,
		TotalContentLength:   e.TotalContentLength,
		ResponseTimes:        map[int64]int64(e.ResponseTimes),
		NumRequestsPerSecond: e.ReqsPerSec,
		NumFailuresPerSecond: e.FailsPerSec,
	}
	if min := e.MinResponseTimeOrZero(); min != 0 {
		p.MinResponseTime = &min
	}
	return p
}
