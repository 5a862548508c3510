package live

import (
	"sync"
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	var s State
	start := time.UnixMilli(1_700_000_000_000)
	s.SetAttached(true, start)
	s.StartSession(start, 3, 120000, 7)
	s.Observe(4, 180000, start.Add(2*time.Second))

	snap := s.Snapshot()
	if !snap.Attached || !snap.SessionActive {
		t.Fatalf("expected attached active session: %+v", snap)
	}
	if snap.Deaths != 4 || snap.PlaytimeMs != 180000 || snap.CharacterID != 7 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if !snap.SessionStartedAt.Equal(start) {
		t.Fatalf("unexpected start %v", snap.SessionStartedAt)
	}

	s.EndSession(start.Add(time.Minute))
	snap = s.Snapshot()
	if snap.SessionActive || snap.CharacterID != 0 || !snap.SessionStartedAt.IsZero() {
		t.Fatalf("expected cleared session: %+v", snap)
	}
	if snap.Deaths != 4 {
		t.Fatalf("counters must survive session end, got %d", snap.Deaths)
	}
}

func TestConcurrentReaders(t *testing.T) {
	var s State
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Observe(uint32(i), uint32(i*1000), time.Now())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = s.Snapshot()
		}
	}()
	wg.Wait()
	if got := s.Snapshot().Deaths; got != 999 {
		t.Fatalf("expected final deaths 999, got %d", got)
	}
}
