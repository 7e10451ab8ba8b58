// Package runner implements the Runner core controller (spec.md §4.6): the
// RunnerState machine, the spawn/rescale reconcile algorithm, and the four
// control-plane goroutines (Receiver, Sender, Heartbeater,
// MasterLivenessWatcher) that own the RPC transport.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nimbusload/swarmworker/internal/procinfo"
	"github.com/nimbusload/swarmworker/internal/protocol"
	"github.com/nimbusload/swarmworker/internal/ratelimiter"
	"github.com/nimbusload/swarmworker/internal/stats"
	"github.com/nimbusload/swarmworker/internal/task"
	"github.com/nimbusload/swarmworker/internal/transport"
	"github.com/nimbusload/swarmworker/internal/userworker"
)

// Runner is the worker's core controller. One Runner owns exactly one
// RpcTransport, one StatsAggregator, and the live UserWorker population.
type Runner struct {
	cfg       runnerConfig
	transport *transport.RpcTransport
	codec     protocol.Codec
	aggregator *stats.Aggregator
	selector  *task.Selector
	nodeID    string
	cpu       *procinfo.Sampler

	mu        sync.Mutex
	state     State
	limiter   ratelimiter.RateLimiter
	target    int64
	population []*userworker.Worker
	nextWorkerID int

	lastInboundAt time.Time
	heartbeatFails int
	lastDropped    int64

	spawnGeneration int64
	spawnCancel     context.CancelFunc
}

// New constructs a Runner. selector and aggregator are shared, read-only
// handles each spawned UserWorker receives (spec.md §3, UserPopulation
// ownership rule).
func New(t *transport.RpcTransport, codec protocol.Codec, agg *stats.Aggregator, sel *task.Selector, opts ...Option) *Runner {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop().Sugar()
	}
	t.SetRecvTimeout(cfg.recvTimeout)

	id := cfg.nodeID
	if id == "" {
		id = nodeID()
	}

	return &Runner{
		cfg:        cfg,
		transport:  t,
		codec:      codec,
		aggregator: agg,
		selector:   sel,
		nodeID:     id,
		cpu:        procinfo.NewSampler(),
		state:      Ready,
	}
}

func (r *Runner) setState(s State) {
	r.state = s
	if r.cfg.metrics != nil {
		r.cfg.metrics.SetRunnerState(States(), s.String())
	}
}

// State returns the Runner's current RunnerState. Safe for concurrent use.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run starts the control pool — Receiver, Sender, Heartbeater,
// MasterLivenessWatcher — as a bounded-4 group (spec.md §4.6, §5) and
// blocks until ctx is canceled or one of them returns a fatal error. It
// sends client_ready before starting the pool, and on the way out stops
// the live workers and closes the transport; client_stopped is sent only
// by the stop/quit handlers, not by Run itself.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.lastInboundAt = time.Now()
	r.mu.Unlock()

	if err := r.sendClientReady(); err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return r.receiveLoop(gctx) })
	group.Go(func() error { return r.senderLoop(gctx) })
	group.Go(func() error { return r.heartbeatLoop(gctx) })
	group.Go(func() error { return r.livenessLoop(gctx) })

	err := group.Wait()

	r.cancelWorkers()
	_ = r.transport.Close()

	if err == errQuit {
		return nil
	}
	return err
}

// errQuit is returned by receiveLoop when a quit message arrives. It is
// not a failure: returning it from a goroutine in the errgroup cancels
// gctx, which is the signal the other three control-plane goroutines use
// to stop — Run itself translates it back to a nil error.
var errQuit = errors.New("runner: quit requested")

func (r *Runner) sendClientReady() error {
	msg, err := protocol.NewMessage(r.codec, protocol.TypeClientReady, r.nodeID, protocol.ClientReadyPayload{
		Version: protocol.ProtocolVersion,
	})
	if err != nil {
		return err
	}
	return r.transport.Send(msg)
}

// receiveLoop is the Receiver control coroutine (spec.md §4.6, §5): reads
// inbound messages and applies them to the state machine. TimedOut is
// normal; a FatalError ends the group and the Runner moves to Quitting.
func (r *Runner) receiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, ok, err := r.transport.Recv()
		if err != nil {
			r.cfg.logger.Errorw("transport receive failed, runner quitting", "error", err)
			r.mu.Lock()
			r.setState(Quitting)
			r.mu.Unlock()
			return err
		}
		if !ok {
			continue
		}

		r.mu.Lock()
		r.lastInboundAt = time.Now()
		if r.state == Missing {
			r.setState(Ready)
		}
		r.mu.Unlock()

		if r.dispatch(ctx, msg) {
			// quit: return a sentinel error so errgroup cancels gctx and
			// the other three control-plane goroutines unwind too.
			return errQuit
		}
	}
}

// dispatch applies one inbound message to the state machine (spec.md
// §4.6's dispatch table). Unknown types are logged and ignored. It
// reports true when the Runner should shut down its control pool (quit).
func (r *Runner) dispatch(ctx context.Context, msg protocol.Message) bool {
	switch msg.Type {
	case protocol.TypeSpawn:
		var payload protocol.SpawnPayload
		if err := msg.DecodeData(r.codec, &payload); err != nil {
			r.cfg.logger.Warnw("dropping malformed spawn message", "error", err)
			return false
		}
		r.handleSpawn(ctx, payload)

	case protocol.TypeStop:
		r.handleStop()

	case protocol.TypeQuit:
		r.handleStop()
		r.mu.Lock()
		r.setState(Quitting)
		r.mu.Unlock()
		return true

	case protocol.TypeReconnect:
		// Preserve accumulated stats and the live population; only the
		// transport's registration handshake is redone.
		if err := r.sendClientReady(); err != nil {
			r.cfg.logger.Warnw("client_ready resend after reconnect failed", "error", err)
		}

	case protocol.TypeHeartbeat:
		// presence already recorded by receiveLoop; no payload to act on.

	case protocol.TypeAck:
		r.mu.Lock()
		if r.state == Missing {
			r.setState(Ready)
		}
		r.mu.Unlock()

	default:
		r.cfg.logger.Warnw("ignoring unknown inbound message type", "type", msg.Type)
	}

	return false
}

func (r *Runner) handleStop() {
	r.mu.Lock()
	if r.spawnCancel != nil {
		r.spawnCancel()
		r.spawnCancel = nil
	}
	// Invalidate any in-flight reconcile so it cannot reach
	// finishReconcile and flip the state back to Running.
	r.spawnGeneration++
	if r.limiter != nil {
		r.limiter.Stop()
	}
	r.setState(Stopped)
	r.target = 0
	r.mu.Unlock()

	r.cancelWorkers()

	msg, err := protocol.NewMessage(r.codec, protocol.TypeClientStopped, r.nodeID, struct{}{})
	if err != nil {
		r.cfg.logger.Errorw("failed to build client_stopped message", "error", err)
		return
	}
	if err := r.transport.Send(msg); err != nil {
		r.cfg.logger.Warnw("client_stopped send failed", "error", err)
	}
}

func (r *Runner) cancelWorkers() {
	r.mu.Lock()
	workers := r.population
	r.population = nil
	r.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}

// handleSpawn implements spec.md §4.6's spawn/reconcile algorithm. A
// spawn arriving mid-reconcile retargets the running reconcile rather than
// restarting it (Open Question decision, SPEC_FULL.md §9).
func (r *Runner) handleSpawn(ctx context.Context, payload protocol.SpawnPayload) {
	r.mu.Lock()
	r.target = payload.UserCount
	if r.cfg.metrics != nil {
		r.cfg.metrics.TargetUsers.Set(float64(payload.UserCount))
	}
	if r.state == Ready || r.state == Stopped {
		r.startRateLimiter()
	}
	r.setState(Spawning)

	if r.spawnCancel != nil {
		// A reconcile is already in flight; it reads r.target on each
		// pacing tick, so retargeting here is enough.
		r.mu.Unlock()
		return
	}

	spawnCtx, cancel := context.WithCancel(ctx)
	r.spawnCancel = cancel
	r.spawnGeneration++
	generation := r.spawnGeneration
	rate := payload.SpawnRate
	r.mu.Unlock()

	go r.reconcile(spawnCtx, generation, rate)
}

func (r *Runner) startRateLimiter() {
	if r.cfg.limiterFactory == nil {
		return
	}
	r.limiter = r.cfg.limiterFactory()
	r.limiter.Start()
}

// reconcile paces the live population toward r.target at rate workers per
// second until they match, then sends spawning_complete and transitions
// to Running. Scale-down signals excess workers LIFO without blocking on
// their exit (spec.md §4.6).
func (r *Runner) reconcile(ctx context.Context, generation int64, rate float64) {
	if rate <= 0 {
		rate = 1
	}
	interval := time.Duration(float64(time.Second) / rate)
	if interval <= 0 {
		interval = time.Millisecond
	}

	sem := semaphore.NewWeighted(r.cfg.spawnConcurrency)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.mu.Lock()
		if r.spawnGeneration != generation {
			r.mu.Unlock()
			return
		}
		live := int64(len(r.population))
		target := r.target
		r.mu.Unlock()

		if live == target {
			r.finishReconcile(generation, target)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if live < target {
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			go func() {
				defer sem.Release(1)
				r.spawnOne()
			}()
		} else {
			r.stopOne()
		}
	}
}

func (r *Runner) spawnOne() {
	r.mu.Lock()
	if r.state != Spawning && r.state != Running {
		r.mu.Unlock()
		return
	}
	id := r.nextWorkerID
	r.nextWorkerID++
	limiter := r.limiter
	r.mu.Unlock()

	w := userworker.New(id, limiter, r.selector, r.aggregator, r.cfg.logger)

	r.mu.Lock()
	if r.state != Spawning && r.state != Running {
		// A stop arrived while this worker was being built.
		r.mu.Unlock()
		return
	}
	r.population = append(r.population, w)
	if r.cfg.metrics != nil {
		r.cfg.metrics.LiveUsers.Set(float64(len(r.population)))
	}
	r.mu.Unlock()

	go w.Run()
}

// stopOne signals the most recently spawned worker to stop (LIFO,
// spec.md §4.6) and does not wait for its exit.
func (r *Runner) stopOne() {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.population)
	if n == 0 {
		return
	}
	w := r.population[n-1]
	r.population = r.population[:n-1]
	if r.cfg.metrics != nil {
		r.cfg.metrics.LiveUsers.Set(float64(len(r.population)))
	}
	w.Stop()
}

func (r *Runner) finishReconcile(generation, userCount int64) {
	r.mu.Lock()
	if r.spawnGeneration != generation {
		r.mu.Unlock()
		return
	}
	r.spawnCancel = nil
	r.setState(Running)
	r.mu.Unlock()

	msg, err := protocol.NewMessage(r.codec, protocol.TypeSpawningComplete, r.nodeID, protocol.SpawningCompletePayload{
		UserCount: userCount,
	})
	if err != nil {
		r.cfg.logger.Errorw("failed to build spawning_complete message", "error", err)
		return
	}
	if err := r.transport.Send(msg); err != nil {
		r.cfg.logger.Warnw("spawning_complete send failed", "error", err)
	}
}

// senderLoop is the Sender control coroutine (spec.md §4.6, §5): relays
// StatsAggregator snapshots as outbound stats messages. A send failure is
// logged and the snapshot discarded — it is cumulative and will be
// superseded (spec.md §4.6 failure semantics).
func (r *Runner) senderLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-r.aggregator.Snapshots():
			r.mu.Lock()
			userCount := int64(len(r.population))
			r.mu.Unlock()

			msg, err := protocol.NewMessage(r.codec, protocol.TypeStats, r.nodeID, statsPayload(snap, userCount))
			if err != nil {
				r.cfg.logger.Errorw("failed to build stats message", "error", err)
				continue
			}
			if err := r.transport.Send(msg); err != nil {
				r.cfg.logger.Warnw("stats send failed, snapshot discarded", "error", err)
			}
		}
	}
}

// heartbeatLoop is the Heartbeater control coroutine (spec.md §4.6, §5).
// After MaxHeartbeatFailures consecutive send failures, the Runner
// transitions to Missing (spec.md §4.6 failure semantics).
func (r *Runner) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sendHeartbeat()
		}
	}
}

func (r *Runner) sendHeartbeat() {
	r.mu.Lock()
	state := r.state
	count := int64(len(r.population))
	limiter := r.limiter
	r.mu.Unlock()

	r.sampleMetrics(limiter)

	msg, err := protocol.NewMessage(r.codec, protocol.TypeHeartbeat, r.nodeID, protocol.HeartbeatPayload{
		State:           state.String(),
		CurrentCPUUsage: r.cpu.CPUPercent(),
		Count:           count,
	})
	if err != nil {
		r.cfg.logger.Errorw("failed to build heartbeat message", "error", err)
		return
	}

	if err := r.transport.Send(msg); err != nil {
		r.mu.Lock()
		r.heartbeatFails++
		fails := r.heartbeatFails
		if fails >= r.cfg.maxHeartbeatFails {
			r.setState(Missing)
		}
		r.mu.Unlock()
		if r.cfg.metrics != nil {
			r.cfg.metrics.HeartbeatFailures.Inc()
		}
		r.cfg.logger.Warnw("heartbeat send failed", "error", err, "consecutive_failures", fails)
		return
	}

	r.mu.Lock()
	r.heartbeatFails = 0
	r.mu.Unlock()
}

// sampleMetrics publishes point-in-time gauges that have no natural event
// to hang off — rate limiter bucket level and the aggregator's drop
// counter — piggybacking on the heartbeat cadence.
func (r *Runner) sampleMetrics(limiter ratelimiter.RateLimiter) {
	if r.cfg.metrics == nil {
		return
	}
	if limiter != nil {
		r.cfg.metrics.RateLimiterThreshold.Set(float64(limiter.CurrentThreshold()))
		r.cfg.metrics.RateLimiterMax.Set(float64(limiter.MaxThreshold()))
	}
	for queue, depth := range r.aggregator.QueueDepths() {
		r.cfg.metrics.AggregatorQueueDepth.WithLabelValues(queue).Set(float64(depth))
	}

	dropped := r.aggregator.DroppedEvents()
	r.mu.Lock()
	delta := dropped - r.lastDropped
	r.lastDropped = dropped
	r.mu.Unlock()
	if delta > 0 {
		r.cfg.metrics.AggregatorDropped.Add(float64(delta))
	}
}

// livenessLoop is the MasterLivenessWatcher control coroutine (spec.md
// §4.6, §5): if no inbound message has arrived for MasterMissing, the
// Runner transitions to Missing.
func (r *Runner) livenessLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.masterMissing / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.mu.Lock()
			silentFor := time.Since(r.lastInboundAt)
			if silentFor >= r.cfg.masterMissing && r.state != Missing {
				r.setState(Missing)
			}
			r.mu.Unlock()
		}
	}
}

// LiveUserCount reports the current population size, for tests and
// metrics.
func (r *Runner) LiveUserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.population)
}
