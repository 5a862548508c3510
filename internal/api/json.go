package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/verte-zerg/ember/internal/model"
)

const (
	codeInvalidBody  = "INVALID_BODY"
	codeInvalidQuery = "INVALID_QUERY"
	codeNoData       = "NO_DATA"
	codeNotFound     = "NOT_FOUND"
	codeStorage      = "STORAGE_ERROR"
	codeSettings     = "SETTINGS_ERROR"
	codeInternal     = "INTERNAL"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// The status line is already sent; an encode failure means the client left.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Error: &errorBody{Code: code, Message: message}})
}

type statsJSON struct {
	Deaths      uint32     `json:"deaths"`
	Playtime    uint32     `json:"playtime"`
	Source      string     `json:"source"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

type liveJSON struct {
	Attached         bool       `json:"attached"`
	SessionActive    bool       `json:"sessionActive"`
	Deaths           uint32     `json:"deaths"`
	Playtime         uint32     `json:"playtime"`
	CharacterID      int64      `json:"characterId,omitempty"`
	SessionStartedAt *time.Time `json:"sessionStartedAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

type sessionJSON struct {
	ID             int64     `json:"id"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	DurationMs     int64     `json:"durationMs"`
	StartingDeaths int       `json:"startingDeaths"`
	EndingDeaths   int       `json:"endingDeaths"`
	SessionDeaths  int       `json:"sessionDeaths"`
	DeathsPerHour  float64   `json:"deathsPerHour"`
	CharacterID    *int64    `json:"characterId"`
}

type deathJSON struct {
	ID          int64     `json:"id"`
	ZoneID      uint32    `json:"zoneId"`
	ZoneName    string    `json:"zoneName"`
	CharacterID *int64    `json:"characterId"`
	Timestamp   time.Time `json:"timestamp"`
	IsBossDeath bool      `json:"isBossDeath"`
}

type zoneDeathsJSON struct {
	ZoneID      uint32 `json:"zoneId"`
	ZoneName    string `json:"zoneName"`
	Deaths      int    `json:"deaths"`
	IsBossArena bool   `json:"isBossArena"`
}

type characterJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ClassID   int       `json:"classId"`
	ClassName string    `json:"className"`
	CreatedAt time.Time `json:"createdAt"`
}

type characterStatsJSON struct {
	CharacterID  int64     `json:"characterId"`
	Level        int       `json:"level"`
	Vigor        int       `json:"vigor"`
	Attunement   int       `json:"attunement"`
	Endurance    int       `json:"endurance"`
	Vitality     int       `json:"vitality"`
	Strength     int       `json:"strength"`
	Dexterity    int       `json:"dexterity"`
	Intelligence int       `json:"intelligence"`
	Faith        int       `json:"faith"`
	Luck         int       `json:"luck"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toSessionJSON(s model.Session) sessionJSON {
	return sessionJSON{
		ID:             s.ID,
		StartTime:      s.StartedAt,
		EndTime:        s.EndedAt,
		DurationMs:     s.DurationMs,
		StartingDeaths: s.StartingDeaths,
		EndingDeaths:   s.EndingDeaths,
		SessionDeaths:  s.SessionDeaths,
		DeathsPerHour:  s.DeathsPerHour,
		CharacterID:    optionalID(s.CharacterID),
	}
}

func toDeathJSON(d model.Death) deathJSON {
	return deathJSON{
		ID:          d.ID,
		ZoneID:      d.ZoneID,
		ZoneName:    d.ZoneName,
		CharacterID: optionalID(d.CharacterID),
		Timestamp:   d.At,
		IsBossDeath: d.IsBossDeath,
	}
}

func toCharacterStatsJSON(cs model.CharacterStats) characterStatsJSON {
	return characterStatsJSON{
		CharacterID:  cs.CharacterID,
		Level:        cs.Level,
		Vigor:        cs.Vigor,
		Attunement:   cs.Attunement,
		Endurance:    cs.Endurance,
		Vitality:     cs.Vitality,
		Strength:     cs.Strength,
		Dexterity:    cs.Dexterity,
		Intelligence: cs.Intelligence,
		Faith:        cs.Faith,
		Luck:         cs.Luck,
		UpdatedAt:    cs.UpdatedAt,
	}
}
