package room_management

import (
	"sync"
	"time"

	"codesync/internal/metrics"
)

// GraceScheduler keeps at most one pending teardown timer per room.
type GraceScheduler struct {
	mu       sync.Mutex
	delay    time.Duration
	timers   map[string]*graceTimer
	seq      uint64
	onExpire func(roomID string)
}

type graceTimer struct {
	timer *time.Timer
	id    uint64
}

func NewGraceScheduler(delay time.Duration, onExpire func(roomID string)) *GraceScheduler {
	return &GraceScheduler{
		delay:    delay,
		timers:   make(map[string]*graceTimer),
		onExpire: onExpire,
	}
}

// Schedule arms the timer for roomID, replacing any pending one.
func (s *GraceScheduler) Schedule(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[roomID]; ok {
		prev.timer.Stop()
	}
	s.seq++
	id := s.seq
	s.timers[roomID] = &graceTimer{
		id:    id,
		timer: time.AfterFunc(s.delay, func() { s.fire(roomID, id) }),
	}
	metrics.SetPendingGraceTimers(len(s.timers))
}

// Cancel disarms the timer for roomID. It reports whether one was pending.
func (s *GraceScheduler) Cancel(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[roomID]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.timers, roomID)
	metrics.SetPendingGraceTimers(len(s.timers))
	return true
}

func (s *GraceScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *GraceScheduler) IsPending(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[roomID]
	return ok
}

// Stop disarms every timer. Used on shutdown.
func (s *GraceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roomID, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, roomID)
	}
	metrics.SetPendingGraceTimers(0)
}

// a timer that was replaced or canceled after it already started firing
// finds a different id and does nothing
func (s *GraceScheduler) fire(roomID string, id uint64) {
	s.mu.Lock()
	t, ok := s.timers[roomID]
	if !ok || t.id != id {
		s.mu.Unlock()
		return
	}
	delete(s.timers, roomID)
	metrics.SetPendingGraceTimers(len(s.timers))
	s.mu.Unlock()

	s.onExpire(roomID)
}
