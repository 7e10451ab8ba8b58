// Package metrics exposes the worker's own runtime health as Prometheus
// collectors (SPEC_FULL.md §6, Observability endpoint) — distinct from
// the StatsAggregator's load-test metrics, which travel to the master.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the gauges/counters a Runner updates as it runs.
type Registry struct {
	RunnerState          *prometheus.GaugeVec
	LiveUsers            prometheus.Gauge
	TargetUsers          prometheus.Gauge
	RateLimiterThreshold prometheus.Gauge
	RateLimiterMax       prometheus.Gauge
	AggregatorQueueDepth *prometheus.GaugeVec
	AggregatorDropped    prometheus.Counter
	HeartbeatFailures    prometheus.Counter
}

// New registers and returns a Registry on the given prometheus.Registerer.
// Pass prometheus.DefaultRegisterer for the common case.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		RunnerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "swarmworker",
			Name:      "runner_state",
			Help:      "1 for the currently active RunnerState, 0 for all others.",
		}, []string{"state"}),
		LiveUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmworker",
			Name:      "live_users",
			Help:      "Current number of running UserWorkers.",
		}),
		TargetUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmworker",
			Name:      "target_users",
			Help:      "Most recently requested target UserWorker count.",
		}),
		RateLimiterThreshold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmworker",
			Name:      "rate_limiter_current_threshold",
			Help:      "Current token bucket level, if a rate limiter is configured.",
		}),
		RateLimiterMax: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmworker",
			Name:      "rate_limiter_max_threshold",
			Help:      "Configured maximum token bucket level.",
		}),
		AggregatorQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "swarmworker",
			Name:      "aggregator_queue_depth",
			Help:      "Depth of the StatsAggregator's producer queues.",
		}, []string{"queue"}),
		AggregatorDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmworker",
			Name:      "aggregator_dropped_events_total",
			Help:      "Events dropped because a producer queue was full.",
		}),
		HeartbeatFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmworker",
			Name:      "heartbeat_send_failures_total",
			Help:      "Total heartbeat send failures observed.",
		}),
	}
}

// SetRunnerState zeroes every known state gauge and sets only the active
// one to 1, giving `swarmworker_runner_state{state="..."}` a clean
// single-active-series reading.
func (r *Registry) SetRunnerState(states []string, active string) {
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1.0
		}
		r.RunnerState.WithLabelValues(s).Set(v)
	}
}

// Handler returns the standard promhttp handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
