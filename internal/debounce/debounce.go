// Package debounce coalesces rapid repeated triggers into one delayed call.
package debounce

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs at most one pending function per key. Scheduling a key
// that already has a pending call cancels it and restarts the delay, so
// only the most recent function runs. Executions are serialized.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*entry
	stopped bool

	execMu sync.Mutex
	wg     sync.WaitGroup
}

type entry struct {
	timer *time.Timer
	fn    func()
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{pending: make(map[string]*entry)}
}

// Schedule arranges for fn to run after delay unless key is rescheduled
// first. After Stop, fn runs synchronously.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.run(fn)
		return
	}
	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
		s.wg.Done()
	}
	e := &entry{fn: fn}
	s.wg.Add(1)
	e.timer = time.AfterFunc(delay, func() { s.fire(key, e) })
	s.pending[key] = e
	s.mu.Unlock()
}

func (s *Scheduler) fire(key string, e *entry) {
	s.mu.Lock()
	if s.pending[key] != e {
		// Superseded or flushed while waiting for the lock.
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()

	defer s.wg.Done()
	s.run(e.fn)
}

func (s *Scheduler) run(fn func()) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	fn()
}

// Pending reports whether key has a call waiting.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Cancel drops the pending call for key without running it.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.pending, key)
	s.wg.Done()
	return true
}

// Flush runs the pending call for key now, on the calling goroutine.
func (s *Scheduler) Flush(key string) bool {
	s.mu.Lock()
	e, ok := s.pending[key]
	if ok {
		e.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	defer s.wg.Done()
	s.run(e.fn)
	return true
}

// FlushAll runs every pending call in key order.
func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	for _, k := range keys {
		s.Flush(k)
	}
}

// Stop flushes pending calls and waits for running ones. Later Schedule
// calls execute immediately.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.FlushAll()
	s.wg.Wait()
}
