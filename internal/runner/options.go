package runner

import (
	"time"

	"go.uber.org/zap"

	"github.com/nimbusload/swarmworker/internal/metrics"
	"github.com/nimbusload/swarmworker/internal/ratelimiter"
)

type runnerConfig struct {
	recvTimeout       time.Duration
	heartbeatInterval time.Duration
	masterMissing     time.Duration
	maxHeartbeatFails int
	spawnConcurrency  int64
	logger            *zap.SugaredLogger
	metrics           *metrics.Registry
	limiterFactory    func() ratelimiter.RateLimiter
	nodeID            string
}

// Option configures a Runner at construction, mirroring the teacher's
// functional-options pattern (loadtester.LoadtestOption).
type Option func(*runnerConfig)

func defaultConfig() runnerConfig {
	return runnerConfig{
		recvTimeout:       300 * time.Millisecond,
		heartbeatInterval: time.Second,
		masterMissing:     60 * time.Second,
		maxHeartbeatFails: 3,
		spawnConcurrency:  32,
	}
}

// RecvTimeout overrides the transport's bounded receive timeout (default
// 300ms).
func RecvTimeout(d time.Duration) Option {
	return func(c *runnerConfig) { c.recvTimeout = d }
}

// HeartbeatInterval overrides the heartbeat cadence (default 1s).
func HeartbeatInterval(d time.Duration) Option {
	return func(c *runnerConfig) { c.heartbeatInterval = d }
}

// MasterMissing overrides the master-silence timeout before transitioning
// to Missing (default 60s).
func MasterMissing(d time.Duration) Option {
	return func(c *runnerConfig) { c.masterMissing = d }
}

// MaxHeartbeatFailures overrides the consecutive heartbeat send failure
// count before transitioning to Missing (default 3, per spec.md §4.6).
func MaxHeartbeatFailures(n int) Option {
	return func(c *runnerConfig) { c.maxHeartbeatFails = n }
}

// SpawnConcurrency bounds how many spawn-creation goroutines may be
// in flight at once while reconciling toward a target (default 32).
func SpawnConcurrency(n int64) Option {
	return func(c *runnerConfig) { c.spawnConcurrency = n }
}

// Logger sets the structured logger used by every control loop.
func Logger(l *zap.SugaredLogger) Option {
	return func(c *runnerConfig) { c.logger = l }
}

// Metrics wires a Prometheus registry the Runner updates as it runs.
func Metrics(m *metrics.Registry) Option {
	return func(c *runnerConfig) { c.metrics = m }
}

// NodeID fixes the Runner's protocol identity instead of generating one,
// so it can be made to match a transport socket identity dialed before
// the Runner is constructed.
func NodeID(id string) Option {
	return func(c *runnerConfig) { c.nodeID = id }
}

// RateLimiterFactory supplies a constructor for a fresh RateLimiter each
// time the Runner enters Spawning (spec.md: "(re)started on each
// transition into Spawning"). Omit for no rate limiting.
func RateLimiterFactory(f func() ratelimiter.RateLimiter) Option {
	return func(c *runnerConfig) { c.limiterFactory = f }
}
