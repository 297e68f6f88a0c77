package orchestrator

import (
	"sync"
	"time"
)

// session is one user's slot. While busy, at most one newer message waits in pending.
type session struct {
	busy     bool
	pending  *string
	lastUsed time.Time
}

// Sessions tracks which users have a turn in progress.
type Sessions struct {
	mu    sync.Mutex
	slots map[int64]*session
	now   func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{
		slots: make(map[int64]*session),
		now:   time.Now,
	}
}

// TryAcquire marks the user busy and returns true, or, if a turn is already running,
// stores text as the pending message (replacing any earlier one) and returns false.
func (s *Sessions) TryAcquire(userID int64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[userID]
	if !ok {
		slot = &session{}
		s.slots[userID] = slot
	}
	slot.lastUsed = s.now()

	if slot.busy {
		slot.pending = &text
		return false
	}
	slot.busy = true
	return true
}

// Next takes the pending message and keeps the slot busy, or releases the slot
// when nothing is pending. Both happen under one lock so no message is lost
// between the check and the release.
func (s *Sessions) Next(userID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[userID]
	if !ok {
		return "", false
	}
	slot.lastUsed = s.now()

	if slot.pending != nil {
		text := *slot.pending
		slot.pending = nil
		return text, true
	}
	slot.busy = false
	return "", false
}

// Release frees the slot and drops any pending message.
func (s *Sessions) Release(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.slots[userID]; ok {
		slot.busy = false
		slot.pending = nil
		slot.lastUsed = s.now()
	}
}

// Busy reports whether a turn is running for the user.
func (s *Sessions) Busy(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[userID]
	return ok && slot.busy
}

// Prune drops idle slots not used for maxIdle and returns how many were removed.
func (s *Sessions) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, slot := range s.slots {
		if !slot.busy && slot.lastUsed.Before(cutoff) {
			delete(s.slots, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of slots held.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
