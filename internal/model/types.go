// Package model defines shared data structures.
package model

import "time"

// Session captures one closed play session.
type Session struct {
	ID             int64
	StartedAt      time.Time
	EndedAt        time.Time
	DurationMs     int64
	StartingDeaths int
	EndingDeaths   int
	SessionDeaths  int
	DeathsPerHour  float64
	// CharacterID is zero when no character could be resolved.
	CharacterID int64
}

// Character is a (name, class) pair as stored.
type Character struct {
	ID        int64
	Name      string
	ClassID   int
	CreatedAt time.Time
}

// Attributes is the nine-stat build block of a character.
type Attributes struct {
	Vigor        int
	Attunement   int
	Endurance    int
	Vitality     int
	Strength     int
	Dexterity    int
	Intelligence int
	Faith        int
	Luck         int
}

// CharacterStats is the latest level and attribute snapshot of a character.
type CharacterStats struct {
	CharacterID int64
	Level       int
	Attributes
	UpdatedAt time.Time
}

// Death is a single recorded death event.
type Death struct {
	ID          int64
	ZoneID      uint32
	ZoneName    string
	CharacterID int64
	At          time.Time
	IsBossDeath bool
}

// ZoneDeaths counts deaths recorded in one zone.
type ZoneDeaths struct {
	ZoneID   uint32
	ZoneName string
	Count    int
}

// PlayerStats is the single aggregate row refreshed on every session close.
type PlayerStats struct {
	TotalDeaths     int
	TotalPlaytimeMs int64
	LastUpdated     time.Time
}

// SessionFilter narrows session history queries.
type SessionFilter struct {
	CharacterID int64
	Last        int
}

// ReportConfig defines filters for stats output.
type ReportConfig struct {
	CharacterID int64
	Last        int
	CurveWindow int
	TopZones    int
}

// DeathsPerHour returns deaths divided by hours played; zero duration yields 0.
func DeathsPerHour(deaths int, durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	return float64(deaths) / (float64(durationMs) / 3_600_000)
}
