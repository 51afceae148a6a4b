package orchestrator

import (
	"sync"
	"time"
)

// Handle cancels a scheduled invocation
type Handle interface {
	// Cancel stops the invocation and reports whether it was still pending
	Cancel() bool
}

// Scheduler runs fn once after d
type Scheduler interface {
	After(d time.Duration, fn func()) Handle
}

// TimerScheduler schedules with time.AfterFunc
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) Handle {
	return timerHandle{time.AfterFunc(d, fn)}
}

type timerHandle struct{ t *time.Timer }

func (h timerHandle) Cancel() bool { return h.t.Stop() }

// ManualScheduler holds invocations until Fire is called. It is used by
// tests and by the run-once command.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []*manualHandle
}

type manualHandle struct {
	s        *ManualScheduler
	delay    time.Duration
	fn       func()
	canceled bool
	fired    bool
}

func (s *ManualScheduler) After(d time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &manualHandle{s: s, delay: d, fn: fn}
	s.pending = append(s.pending, h)
	return h
}

func (h *manualHandle) Cancel() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.canceled || h.fired {
		return false
	}
	h.canceled = true
	return true
}

// Pending returns the delays of invocations that have not fired or been canceled
func (s *ManualScheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, h := range s.pending {
		if !h.canceled && !h.fired {
			out = append(out, h.delay)
		}
	}
	return out
}

// Fire runs every pending invocation and returns how many ran
func (s *ManualScheduler) Fire() int {
	s.mu.Lock()
	var due []*manualHandle
	for _, h := range s.pending {
		if !h.canceled && !h.fired {
			h.fired = true
			due = append(due, h)
		}
	}
	s.pending = nil
	s.mu.Unlock()

	for _, h := range due {
		h.fn()
	}
	return len(due)
}
