// Package task implements the worker's TaskSelector (spec.md §4.4):
// weighted random selection among the tasks an instance was configured
// with.
package task

import (
	"math/rand"
	"sort"
	"sync"
)

// Func is a user task. It is expected to report its own outcome via the
// stats aggregator (spec.md §4.5); the returned error is used only when
// the worker shell itself must report a failure on the task's behalf.
type Func func() error

// Task is one registered, weighted task.
type Task struct {
	Weight int
	Name   string
	Fn     Func
}

// Selector draws one Task per Pick call with probability proportional to
// its weight. Safe for concurrent use by many UserWorkers; Pick is O(log n)
// via binary search over a cumulative-weight array built once at
// registration.
type Selector struct {
	mu         sync.RWMutex
	tasks      []Task
	cumulative []int
	totalWeight int
	rng        *rand.Rand
	rngMu      sync.Mutex
}

// NewSelector builds a Selector from the given tasks. Per spec.md §4.4:
// if the total weight across all tasks is zero, every task (including
// zero-weight ones) is selectable with uniform probability; otherwise
// zero-weight tasks are never selected.
func NewSelector(tasks []Task, seed int64) *Selector {
	s := &Selector{rng: rand.New(rand.NewSource(seed))}
	s.reset(tasks)
	return s
}

func (s *Selector) reset(tasks []Task) {
	total := 0
	for _, t := range tasks {
		total += t.Weight
	}

	active := tasks
	effectiveTotal := total
	if total == 0 {
		effectiveTotal = len(tasks)
	} else {
		active = make([]Task, 0, len(tasks))
		for _, t := range tasks {
			if t.Weight > 0 {
				active = append(active, t)
			}
		}
	}

	cumulative := make([]int, len(active))
	running := 0
	for i, t := range active {
		w := t.Weight
		if total == 0 {
			w = 1
		}
		running += w
		cumulative[i] = running
	}

	s.mu.Lock()
	s.tasks = active
	s.cumulative = cumulative
	s.totalWeight = effectiveTotal
	s.mu.Unlock()
}

// Pick returns one task chosen with probability proportional to weight.
// Panics if the Selector has no registered tasks, mirroring a
// configuration error that should never survive startup validation.
func (s *Selector) Pick() Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.tasks) == 0 {
		panic("task: Pick called with no registered tasks")
	}
	if len(s.tasks) == 1 {
		return s.tasks[0]
	}

	s.rngMu.Lock()
	r := s.rng.Intn(s.totalWeight)
	s.rngMu.Unlock()

	idx := sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > r
	})
	return s.tasks[idx]
}

// Len reports the number of selectable tasks.
func (s *Selector) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
