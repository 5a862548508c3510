package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/ember/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "ember.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestOpenTwiceKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	id, err := st.GetOrCreateCharacter(ctx, "Solaire", 0)
	if err != nil {
		t.Fatalf("create character: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() {
		_ = st.Close()
	}()
	c, err := st.GetCharacter(ctx, id)
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if c.Name != "Solaire" {
		t.Fatalf("unexpected character %+v", c)
	}
}

func TestGetOrCreateCharacter(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first, err := st.GetOrCreateCharacter(ctx, "Solaire", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := st.GetOrCreateCharacter(ctx, "Solaire", 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if first != again {
		t.Fatalf("expected same id, got %d and %d", first, again)
	}
	other, err := st.GetOrCreateCharacter(ctx, "Solaire", 3)
	if err != nil {
		t.Fatalf("create other class: %v", err)
	}
	if other == first {
		t.Fatalf("name+class must be unique, got shared id %d", other)
	}
	if _, err := st.GetOrCreateCharacter(ctx, "  ", 0); err == nil {
		t.Fatalf("expected error for empty name")
	}

	chars, err := st.ListCharacters(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chars) != 2 || chars[0].ID != first || chars[1].ClassID != 3 {
		t.Fatalf("unexpected characters %+v", chars)
	}
	if _, err := st.GetCharacter(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertSessionDerivesCounts(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	charID, err := st.GetOrCreateCharacter(ctx, "Siegward", 1)
	if err != nil {
		t.Fatalf("create character: %v", err)
	}

	start := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	sessions := []model.Session{
		{
			StartedAt:      start,
			EndedAt:        start.Add(30 * time.Minute),
			DurationMs:     (30 * time.Minute).Milliseconds(),
			StartingDeaths: 3,
			EndingDeaths:   6,
			SessionDeaths:  100, // ignored
			CharacterID:    charID,
		},
		{
			StartedAt:      start.Add(time.Hour),
			EndedAt:        start.Add(time.Hour),
			StartingDeaths: 6,
			EndingDeaths:   7,
		},
	}
	for _, s := range sessions {
		if _, err := st.InsertSession(ctx, s); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}

	got, err := st.ListSessions(ctx, model.SessionFilter{})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	// Newest first.
	if got[0].CharacterID != 0 || got[0].DeathsPerHour != 0 || got[0].SessionDeaths != 1 {
		t.Fatalf("unexpected zero-duration session %+v", got[0])
	}
	if got[1].SessionDeaths != 3 || math.Abs(got[1].DeathsPerHour-6) > 1e-9 {
		t.Fatalf("unexpected derived values %+v", got[1])
	}
	if !got[1].StartedAt.Equal(start) || got[1].CharacterID != charID {
		t.Fatalf("unexpected stored session %+v", got[1])
	}

	filtered, err := st.ListSessions(ctx, model.SessionFilter{CharacterID: charID})
	if err != nil {
		t.Fatalf("filter sessions: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 session for character, got %d", len(filtered))
	}
	limited, err := st.ListSessions(ctx, model.SessionFilter{Last: 1})
	if err != nil {
		t.Fatalf("limit sessions: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != got[0].ID {
		t.Fatalf("unexpected limited sessions %+v", limited)
	}
}

func TestDeathQueries(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	a, _ := st.GetOrCreateCharacter(ctx, "Anri", 2)
	b, _ := st.GetOrCreateCharacter(ctx, "Horace", 0)

	at := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	deaths := []model.Death{
		{ZoneID: 300001, ZoneName: "Cemetery of Ash", CharacterID: a, At: at},
		{ZoneID: 310201, ZoneName: "Abyss Watchers", CharacterID: a, At: at.Add(time.Minute), IsBossDeath: true},
		{ZoneID: 310201, ZoneName: "Abyss Watchers", CharacterID: a, At: at.Add(2 * time.Minute), IsBossDeath: true},
		{ZoneID: 300001, ZoneName: "Cemetery of Ash", CharacterID: b, At: at.Add(3 * time.Minute)},
	}
	for _, d := range deaths {
		if _, err := st.InsertDeath(ctx, d); err != nil {
			t.Fatalf("insert death: %v", err)
		}
	}

	all, err := st.ListDeaths(ctx, 0)
	if err != nil {
		t.Fatalf("list deaths: %v", err)
	}
	if len(all) != 4 || all[0].CharacterID != b {
		t.Fatalf("unexpected deaths %+v", all)
	}
	mine, err := st.ListDeaths(ctx, a)
	if err != nil {
		t.Fatalf("list character deaths: %v", err)
	}
	if len(mine) != 3 || !mine[0].IsBossDeath {
		t.Fatalf("unexpected character deaths %+v", mine)
	}

	byZone, err := st.DeathsByZone(ctx, 0)
	if err != nil {
		t.Fatalf("deaths by zone: %v", err)
	}
	if len(byZone) != 2 {
		t.Fatalf("expected 2 zones, got %+v", byZone)
	}
	// Ties break on zone id.
	if byZone[0].ZoneID != 300001 || byZone[0].Count != 2 {
		t.Fatalf("unexpected first zone %+v", byZone[0])
	}
	byZone, err = st.DeathsByZone(ctx, a)
	if err != nil {
		t.Fatalf("deaths by zone for character: %v", err)
	}
	if byZone[0].ZoneName != "Abyss Watchers" || byZone[0].Count != 2 {
		t.Fatalf("unexpected character zones %+v", byZone)
	}

	n, err := st.CountDeaths(ctx, b)
	if err != nil {
		t.Fatalf("count deaths: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 death, got %d", n)
	}
}

func TestPlayerStatsUpsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if _, err := st.GetPlayerStats(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, deaths := range []int{3, 9} {
		if err := st.UpsertPlayerStats(ctx, model.PlayerStats{TotalDeaths: deaths, TotalPlaytimeMs: 60000}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	ps, err := st.GetPlayerStats(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ps.TotalDeaths != 9 || ps.TotalPlaytimeMs != 60000 || ps.LastUpdated.IsZero() {
		t.Fatalf("unexpected player stats %+v", ps)
	}
}

func TestCharacterStatsUpsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id, _ := st.GetOrCreateCharacter(ctx, "Greirat", 7)

	if err := st.UpsertCharacterStats(ctx, model.CharacterStats{Level: 1}); err == nil {
		t.Fatalf("expected error without character id")
	}
	snap := model.CharacterStats{
		CharacterID: id,
		Level:       12,
		Attributes:  model.Attributes{Vigor: 10, Dexterity: 18, Luck: 14},
	}
	if err := st.UpsertCharacterStats(ctx, snap); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	snap.Level = 13
	snap.Vigor = 11
	if err := st.UpsertCharacterStats(ctx, snap); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := st.GetCharacterStats(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Level != 13 || got.Vigor != 11 || got.Dexterity != 18 || got.Luck != 14 {
		t.Fatalf("unexpected stats %+v", got)
	}
	if _, err := st.GetCharacterStats(ctx, id+1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
