// Package procinfo samples this process's own CPU usage for the
// heartbeat{current_cpu_usage} field (spec.md §4.6, §6). No library in the
// retrieved example pack wraps process CPU accounting (the closest
// candidate, prometheus/client_golang, exposes Go-runtime metrics, not a
// ready current_cpu_usage percentage), so this package reads /proc
// directly rather than reaching for a third-party dependency.
package procinfo

import (
	"bytes"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"
)

const clockTicksPerSec = 100

// Sampler tracks this process's CPU usage as a percentage of total
// available capacity, sampled between successive calls to CPUPercent.
type Sampler struct {
	mu       sync.Mutex
	lastWall time.Time
	lastCPU  time.Duration
	numCPU   int
}

// NewSampler constructs a Sampler anchored at the current time.
func NewSampler() *Sampler {
	return &Sampler{
		lastWall: time.Now(),
		lastCPU:  processCPUTime(),
		numCPU:   runtime.NumCPU(),
	}
}

// CPUPercent returns CPU usage as a percentage of total available
// capacity across all cores (0-100) since the previous call.
func (s *Sampler) CPUPercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cpu := processCPUTime()

	wallDelta := now.Sub(s.lastWall)
	cpuDelta := cpu - s.lastCPU

	s.lastWall = now
	s.lastCPU = cpu

	if wallDelta <= 0 || s.numCPU == 0 {
		return 0
	}

	pct := 100 * float64(cpuDelta) / (float64(wallDelta) * float64(s.numCPU))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// processCPUTime reads utime+stime from /proc/self/stat on Linux. On any
// read/parse failure it returns 0, which degrades CPUPercent to 0 rather
// than panicking the heartbeat loop.
func processCPUTime() time.Duration {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0
	}

	// Fields after the process name (which may itself contain spaces and
	// is parenthesized) start at the closing paren.
	closeParen := bytes.LastIndexByte(data, ')')
	if closeParen < 0 || closeParen+2 >= len(data) {
		return 0
	}
	fields := bytes.Fields(data[closeParen+2:])
	// utime is field 14, stime is field 15 counting from 1 at the pid
	// field; fields here is 0-indexed starting at field 3 (state).
	const utimeIdx = 14 - 3
	const stimeIdx = 15 - 3
	if len(fields) <= stimeIdx {
		return 0
	}

	utime, err1 := strconv.ParseInt(string(fields[utimeIdx]), 10, 64)
	stime, err2 := strconv.ParseInt(string(fields[stimeIdx]), 10, 64)
	if err1 != nil || err2 != nil {
		return 0
	}

	ticks := utime + stime
	return time.Duration(ticks) * time.Second / clockTicksPerSec
}

// PID returns this process's identity.
func PID() int {
	return os.Getpid()
}
