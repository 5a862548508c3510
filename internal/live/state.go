// Package live holds the last-known values shared between the monitor loop
// and request handlers.
package live

import (
	"sync/atomic"
	"time"
)

// State is written only by the monitor loop and read by anyone. Each field is
// an independent atomic; readers may observe a mix of two consecutive polls.
type State struct {
	attached       atomic.Bool
	sessionActive  atomic.Bool
	deaths         atomic.Uint32
	playtimeMs     atomic.Uint32
	characterID    atomic.Int64
	sessionStartMs atomic.Int64
	updatedMs      atomic.Int64
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Attached         bool
	SessionActive    bool
	Deaths           uint32
	PlaytimeMs       uint32
	CharacterID      int64
	SessionStartedAt time.Time
	UpdatedAt        time.Time
}

// SetAttached records whether the monitor holds a live process handle.
func (s *State) SetAttached(v bool, now time.Time) {
	s.attached.Store(v)
	s.updatedMs.Store(now.UnixMilli())
}

// StartSession marks a session active.
func (s *State) StartSession(startedAt time.Time, deaths, playtimeMs uint32, characterID int64) {
	s.deaths.Store(deaths)
	s.playtimeMs.Store(playtimeMs)
	s.characterID.Store(characterID)
	s.sessionStartMs.Store(startedAt.UnixMilli())
	s.sessionActive.Store(true)
	s.updatedMs.Store(startedAt.UnixMilli())
}

// Observe records the latest counters.
func (s *State) Observe(deaths, playtimeMs uint32, now time.Time) {
	s.deaths.Store(deaths)
	s.playtimeMs.Store(playtimeMs)
	s.updatedMs.Store(now.UnixMilli())
}

// EndSession clears the session markers. Counters keep their last values.
func (s *State) EndSession(now time.Time) {
	s.sessionActive.Store(false)
	s.characterID.Store(0)
	s.sessionStartMs.Store(0)
	s.updatedMs.Store(now.UnixMilli())
}

// SessionActive reports whether a session is in progress.
func (s *State) SessionActive() bool {
	return s.sessionActive.Load()
}

// Snapshot copies the current values.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Attached:      s.attached.Load(),
		SessionActive: s.sessionActive.Load(),
		Deaths:        s.deaths.Load(),
		PlaytimeMs:    s.playtimeMs.Load(),
		CharacterID:   s.characterID.Load(),
	}
	if ms := s.sessionStartMs.Load(); ms != 0 {
		snap.SessionStartedAt = time.UnixMilli(ms)
	}
	if ms := s.updatedMs.Load(); ms != 0 {
		snap.UpdatedAt = time.UnixMilli(ms)
	}
	return snap
}
