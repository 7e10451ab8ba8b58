// Package ratelimiter implements the worker's RateLimiter (spec.md §4.3):
// an aggregate token-bucket throttle shared by every UserWorker. It ships
// two variants — Stable and RampUp — behind a common interface so the
// Runner can swap them without caring which one is configured.
package ratelimiter

// RateLimiter is the common contract both variants satisfy. Acquire blocks
// the calling UserWorker until a token is available (or the limiter is
// stopped), returning false in the latter case so the caller knows not to
// proceed.
type RateLimiter interface {
	Acquire() bool
	Start()
	Stop()
	IsStopped() bool

	// CurrentThreshold and MaxThreshold expose the live token-bucket level
	// and its configured ceiling, for the metrics package.
	CurrentThreshold() int64
	MaxThreshold() int64
}
