package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/verte-zerg/ember/internal/gamedata"
	"github.com/verte-zerg/ember/internal/model"
	"github.com/verte-zerg/ember/internal/store"
	"github.com/verte-zerg/ember/internal/zones"
)

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) storageError(w http.ResponseWriter, what string, err error) {
	s.cfg.Logger.Printf("warn: %s query failed err=%v", what, err)
	writeError(w, http.StatusInternalServerError, codeStorage, "Could not read "+what)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	characterID, err := queryInt(r, "characterId")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
		return
	}
	sessions, err := s.cfg.Store.ListSessions(r.Context(), model.SessionFilter{
		CharacterID: characterID,
		Last:        int(limit),
	})
	if err != nil {
		s.storageError(w, "sessions", err)
		return
	}
	out := make([]sessionJSON, 0, len(sessions))
	for _, ses := range sessions {
		out = append(out, toSessionJSON(ses))
	}
	writeData(w, out)
}

func (s *Server) handleDeaths(w http.ResponseWriter, r *http.Request) {
	characterID, err := queryInt(r, "characterId")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
		return
	}
	deaths, err := s.cfg.Store.ListDeaths(r.Context(), characterID)
	if err != nil {
		s.storageError(w, "deaths", err)
		return
	}
	out := make([]deathJSON, 0, len(deaths))
	for _, d := range deaths {
		out = append(out, toDeathJSON(d))
	}
	writeData(w, out)
}

func (s *Server) handleDeathsByZone(w http.ResponseWriter, r *http.Request) {
	characterID, err := queryInt(r, "characterId")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
		return
	}
	counts, err := s.cfg.Store.DeathsByZone(r.Context(), characterID)
	if err != nil {
		s.storageError(w, "zone deaths", err)
		return
	}
	out := make([]zoneDeathsJSON, 0, len(counts))
	for _, z := range counts {
		out = append(out, zoneDeathsJSON{
			ZoneID:      z.ZoneID,
			ZoneName:    z.ZoneName,
			Deaths:      z.Count,
			IsBossArena: zones.IsBossArena(z.ZoneID),
		})
	}
	writeData(w, out)
}

func toCharacterJSON(c model.Character) characterJSON {
	return characterJSON{
		ID:        c.ID,
		Name:      c.Name,
		ClassID:   c.ClassID,
		ClassName: gamedata.ClassName(c.ClassID),
		CreatedAt: c.CreatedAt,
	}
}

func (s *Server) handleCharacters(w http.ResponseWriter, r *http.Request) {
	chars, err := s.cfg.Store.ListCharacters(r.Context())
	if err != nil {
		s.storageError(w, "characters", err)
		return
	}
	out := make([]characterJSON, 0, len(chars))
	for _, c := range chars {
		out = append(out, toCharacterJSON(c))
	}
	writeData(w, out)
}

func (s *Server) handleCharacter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, "id must be a positive integer")
		return
	}
	c, err := s.cfg.Store.GetCharacter(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "Character not found")
	case err != nil:
		s.storageError(w, "character", err)
	default:
		writeData(w, toCharacterJSON(c))
	}
}

func (s *Server) handleCharacterStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, "id must be a positive integer")
		return
	}
	cs, err := s.cfg.Store.GetCharacterStats(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "No stats recorded for this character")
	case err != nil:
		s.storageError(w, "character stats", err)
	default:
		writeData(w, toCharacterStatsJSON(cs))
	}
}
