// Package scheduler decides which sources produce a frame on each capture
// event.
//
// Every source has a skip counter: a capture event is admitted only after
// Delay events were skipped since the last admitted one. In iteration mode a
// contiguous window of Quota sources (mod source count) is active; each
// processed source leaves the window, and once Quota sources were processed
// the window advances by Quota.
package scheduler

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrMisconfiguredQuota is reported when the quota is outside [1, sources].
var ErrMisconfiguredQuota = errors.New("quota out of range")

// Decision is the outcome of Admit.
type Decision int

// Admit outcomes.
const (
	Due      Decision = iota // produce a frame now
	Wait                     // within the delay budget, counter incremented
	Inactive                 // outside the active window
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Due:
		return "due"
	case Wait:
		return "wait"
	case Inactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Options configures a Scheduler.
type Options struct {
	// Delay is the number of capture events skipped between frames.
	Delay int
	// Iterate enables the rotating activation window.
	Iterate bool
	// Quota is the number of concurrently active sources when iterating.
	Quota int
}

// State is a snapshot of the scheduler.
type State struct {
	Sources                int    `json:"sources"`
	Delay                  int    `json:"delay"`
	Iterate                bool   `json:"iterate"`
	Quota                  int    `json:"quota"`
	CurrentIndex           int    `json:"current_index"`
	ProcessedSinceRotation int    `json:"processed_since_rotation"`
	Counters               []int  `json:"counters"`
	Active                 []bool `json:"active"`
}

// Scheduler tracks per-source counters and the active window.
type Scheduler struct {
	mu                     sync.Mutex
	n                      int
	delay                  int
	iterate                bool
	quota                  int
	currentIndex           int
	processedSinceRotation int
	counters               []int
	active                 []bool
}

// New creates a scheduler for sourceCount sources. A quota outside
// [1, sourceCount] is corrected to 1 and reported as a warning.
func New(sourceCount int, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	sourceCount = max(sourceCount, 0)

	s := &Scheduler{
		n:        sourceCount,
		delay:    max(opts.Delay, 0),
		iterate:  opts.Iterate,
		quota:    opts.Quota,
		counters: make([]int, sourceCount),
		active:   make([]bool, sourceCount),
	}

	if s.quota < 1 || s.quota > sourceCount {
		if opts.Iterate {
			logger.Warn("Quota corrected to 1",
				"error", ErrMisconfiguredQuota, "quota", opts.Quota, "sources", sourceCount)
		}
		s.quota = 1
	}

	if s.iterate {
		s.activateLocked(0)
	}
	return s
}

// Admit consumes one capture event for source index and reports whether the
// source is due. Out-of-range indexes are Inactive.
func (s *Scheduler) Admit(index int) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= s.n {
		return Inactive
	}
	if s.iterate && !s.active[index] {
		return Inactive
	}
	if s.counters[index] < s.delay {
		s.counters[index]++
		return Wait
	}
	s.counters[index] = 0
	return Due
}

// Processed records that source index produced a frame. In iteration mode it
// deactivates the source and advances the window once quota sources were
// processed; the return value reports whether the window moved.
func (s *Scheduler) Processed(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.iterate || index < 0 || index >= s.n {
		return false
	}

	s.active[index] = false
	s.processedSinceRotation++
	if s.processedSinceRotation < s.quota {
		return false
	}

	s.processedSinceRotation = 0
	s.activateLocked((s.currentIndex + s.quota) % s.n)
	return true
}

// activateLocked makes the window starting at start the only active sources
// (must hold lock).
func (s *Scheduler) activateLocked(start int) {
	if s.n == 0 {
		return
	}
	for i := range s.active {
		s.active[i] = false
	}
	for i := range s.quota {
		s.active[(start+i)%s.n] = true
	}
	s.currentIndex = start
}

// SetDelay changes the per-source delay. Counters are kept.
func (s *Scheduler) SetDelay(delay int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = max(delay, 0)
}

// Delay returns the per-source delay.
func (s *Scheduler) Delay() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// Quota returns the effective quota.
func (s *Scheduler) Quota() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota
}

// IsActive reports whether source index may produce frames. Always true for
// valid indexes when not iterating.
func (s *Scheduler) IsActive(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= s.n {
		return false
	}
	return !s.iterate || s.active[index]
}

// Window returns the active source indexes in window order, or nil when not
// iterating.
func (s *Scheduler) Window() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.iterate || s.n == 0 {
		return nil
	}
	window := make([]int, 0, s.quota)
	for i := range s.quota {
		idx := (s.currentIndex + i) % s.n
		if s.active[idx] {
			window = append(window, idx)
		}
	}
	return window
}

// Snapshot returns a copy of the scheduler state.
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Sources:                s.n,
		Delay:                  s.delay,
		Iterate:                s.iterate,
		Quota:                  s.quota,
		CurrentIndex:           s.currentIndex,
		ProcessedSinceRotation: s.processedSinceRotation,
		Counters:               append([]int(nil), s.counters...),
		Active:                 append([]bool(nil), s.active...),
	}
}
