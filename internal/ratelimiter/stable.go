package ratelimiter

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stable is a token bucket with capacity maxThreshold, refilled to full
// every period (spec.md §4.3, default period 1000ms). The fast path —
// currentThreshold >= 0 after the decrement — is lock-free; only a waiter
// that finds the bucket empty pays for the condition variable.
type Stable struct {
	maxThreshold    int64
	period          time.Duration
	currentThreshold atomic.Int64

	mu   sync.Mutex
	cond *sync.Cond

	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// NewStable constructs a Stable rate limiter. Call Start to begin the
// refill timer.
func NewStable(maxThreshold int64, period time.Duration) *Stable {
	s := &Stable{
		maxThreshold: maxThreshold,
		period:       period,
		done:         make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.currentThreshold.Store(maxThreshold)
	return s
}

// Start begins the periodic refill. Safe to call once per limiter
// lifetime (spec.md: "(re)started on each transition into Spawning").
func (s *Stable) Start() {
	s.stopped.Store(false)
	go s.refillLoop()
}

func (s *Stable) refillLoop() {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.currentThreshold.Store(s.maxThreshold)
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		}
	}
}

// Stop halts the refill timer and wakes any parked waiters; they observe
// IsStopped and return false from Acquire.
func (s *Stable) Stop() {
	s.stopped.Store(true)
	s.once.Do(func() { close(s.done) })
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Stable) IsStopped() bool {
	return s.stopped.Load()
}

func (s *Stable) CurrentThreshold() int64 {
	return s.currentThreshold.Load()
}

func (s *Stable) MaxThreshold() int64 {
	return s.maxThreshold
}

// Acquire decrements the bucket. A non-negative result after the decrement
// means a token was free; a negative result means the caller must wait for
// the next refill (spec.md §4.3). Acquire returns false only when the
// limiter has been stopped while the caller was waiting.
func (s *Stable) Acquire() bool {
	if s.currentThreshold.Add(-1) >= 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.currentThreshold.Load() < 0 {
		if s.stopped.Load() {
			return false
		}
		s.cond.Wait()
	}
	return !s.stopped.Load()
}
