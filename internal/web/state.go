package web

import (
	"sync"
	"time"

	"github.com/JonMunkholm/salesetl/internal/pipeline"
)

// RunState tracks the in-flight run and the last finished one. It is safe
// for concurrent use.
type RunState struct {
	mu      sync.RWMutex
	running bool
	since   time.Time
	last    *pipeline.Summary
}

// Status is the /status response body.
type Status struct {
	Running      bool              `json:"running"`
	RunningSince *time.Time        `json:"running_since,omitempty"`
	LastRun      *pipeline.Summary `json:"last_run"`
}

// Begin marks a run as started at t.
func (s *RunState) Begin(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.since = t
}

// Finish records sum as the latest run.
func (s *RunState) Finish(sum *pipeline.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.since = time.Time{}
	s.last = sum
}

// Snapshot returns the current status.
func (s *RunState) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Running: s.running, LastRun: s.last}
	if s.running {
		since := s.since
		st.RunningSince = &since
	}
	return st
}
