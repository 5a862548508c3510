package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/ember/internal/model"
	"github.com/verte-zerg/ember/internal/store"
)

func TestBuildReport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ember.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	charID, err := st.GetOrCreateCharacter(ctx, "Solaire", 0)
	if err != nil {
		t.Fatalf("create character: %v", err)
	}
	var ids []int64
	for i := 0; i < 3; i++ {
		start := time.Unix(0, 0).Add(time.Duration(i) * time.Hour)
		end := start.Add(30 * time.Minute)
		id, err := st.InsertSession(ctx, model.Session{
			StartedAt:      start,
			EndedAt:        end,
			DurationMs:     end.Sub(start).Milliseconds(),
			StartingDeaths: i * 2,
			EndingDeaths:   i*2 + 2,
			CharacterID:    charID,
		})
		if err != nil {
			t.Fatalf("insert session: %v", err)
		}
		ids = append(ids, id)
	}
	for i := 0; i < 2; i++ {
		if _, err := st.InsertDeath(ctx, model.Death{ZoneID: 310201, ZoneName: "Abyss Watchers", CharacterID: charID}); err != nil {
			t.Fatalf("insert death: %v", err)
		}
	}
	if err := st.UpsertCharacterStats(ctx, model.CharacterStats{CharacterID: charID, Level: 20}); err != nil {
		t.Fatalf("upsert stats: %v", err)
	}

	cfg := model.ReportConfig{
		CharacterID: charID,
		Last:        2,
		CurveWindow: 1,
		TopZones:    5,
	}
	report, err := BuildReport(ctx, st, cfg)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if len(report.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(report.Sessions))
	}
	if report.Sessions[0].ID != ids[1] || report.Sessions[1].ID != ids[2] {
		t.Fatalf("unexpected session order: %+v", report.Sessions)
	}
	if len(report.WindowSessions) != 1 || report.WindowSessions[0].ID != ids[2] {
		t.Fatalf("unexpected window sessions: %+v", report.WindowSessions)
	}
	if report.TotalDeaths != 2 || len(report.Zones) != 1 {
		t.Fatalf("unexpected death data: %d %+v", report.TotalDeaths, report.Zones)
	}
	if report.Player != nil {
		t.Fatalf("expected no player stats yet")
	}
	if report.Character == nil || report.Character.Name != "Solaire" {
		t.Fatalf("expected character in report")
	}
	if report.CharacterStats == nil || report.CharacterStats.Level != 20 {
		t.Fatalf("expected character stats in report")
	}

	var buf bytes.Buffer
	if err := RenderSummary(&buf, report, time.Now()); err != nil {
		t.Fatalf("render summary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Character: Solaire (Knight)", "Sessions: 2 (1h 00m played)", "Deaths/hour: 4.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
