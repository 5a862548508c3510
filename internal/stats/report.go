// Package stats contains statistics calculations and reporting.
package stats

import (
	"context"
	"errors"

	"github.com/verte-zerg/ember/internal/model"
	"github.com/verte-zerg/ember/internal/store"
)

// Report contains precomputed data for stats rendering.
type Report struct {
	// Sessions are ordered oldest first.
	Sessions       []model.Session
	WindowSessions []model.Session
	Zones          []model.ZoneDeaths
	TotalDeaths    int
	Player         *model.PlayerStats
	Character      *model.Character
	CharacterStats *model.CharacterStats
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, st *store.Store, cfg model.ReportConfig) (Report, error) {
	sessions, err := st.ListSessions(ctx, model.SessionFilter{
		CharacterID: cfg.CharacterID,
		Last:        cfg.Last,
	})
	if err != nil {
		return Report{}, err
	}
	reverseSessions(sessions)

	zones, err := st.DeathsByZone(ctx, cfg.CharacterID)
	if err != nil {
		return Report{}, err
	}
	total, err := st.CountDeaths(ctx, cfg.CharacterID)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Sessions:       sessions,
		WindowSessions: lastSessions(sessions, cfg.CurveWindow),
		Zones:          TopZones(zones, cfg.TopZones),
		TotalDeaths:    total,
	}

	ps, err := st.GetPlayerStats(ctx)
	switch {
	case err == nil:
		report.Player = &ps
	case !errors.Is(err, store.ErrNotFound):
		return Report{}, err
	}

	if cfg.CharacterID > 0 {
		c, err := st.GetCharacter(ctx, cfg.CharacterID)
		if err != nil {
			return Report{}, err
		}
		report.Character = &c
		cs, err := st.GetCharacterStats(ctx, cfg.CharacterID)
		switch {
		case err == nil:
			report.CharacterStats = &cs
		case !errors.Is(err, store.ErrNotFound):
			return Report{}, err
		}
	}
	return report, nil
}

func reverseSessions(sessions []model.Session) {
	for i, j := 0, len(sessions)-1; i < j; i, j = i+1, j-1 {
		sessions[i], sessions[j] = sessions[j], sessions[i]
	}
}

func lastSessions(sessions []model.Session, window int) []model.Session {
	if window <= 0 || len(sessions) <= window {
		return sessions
	}
	return sessions[len(sessions)-window:]
}
