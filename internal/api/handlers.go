package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/verte-zerg/ember/internal/config"
	"github.com/verte-zerg/ember/internal/store"
	"github.com/verte-zerg/ember/internal/winctl"
)

const maxSettingsBody = 1 << 16

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
		"uptime":  int64(s.cfg.Now().Sub(s.startedAt) / time.Second),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeData(w, s.cfg.Settings.Get())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch config.SettingsPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "Invalid request body")
		return
	}
	_, after, err := s.cfg.Settings.Patch(patch)
	if err != nil {
		s.cfg.Logger.Printf("warn: settings not saved err=%v", err)
		writeError(w, http.StatusInternalServerError, codeSettings, "Could not save settings")
		return
	}
	if patch.BorderlessFullscreen != nil {
		s.toggle("borderless", s.cfg.Borderless, *patch.BorderlessFullscreen)
	}
	if patch.AutoStart != nil {
		s.toggle("autostart", s.cfg.AutoStart, *patch.AutoStart)
	}
	if s.cfg.Presence != nil {
		s.cfg.Presence.Wake()
	}
	writeData(w, after)
}

// toggle applies an OS side effect. Failures are logged; the saved setting
// stands so the next start retries it.
func (s *Server) toggle(name string, t winctl.Toggler, on bool) {
	if t == nil {
		return
	}
	if err := winctl.Set(t, on); err != nil {
		s.cfg.Logger.Printf("warn: %s toggle failed enabled=%t err=%v", name, on, err)
		return
	}
	s.cfg.Logger.Printf("%s enabled=%t", name, on)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if deaths, playtime, ok := s.readLive(); ok {
		writeData(w, statsJSON{Deaths: deaths, Playtime: playtime, Source: "live"})
		return
	}
	ps, err := s.cfg.Store.GetPlayerStats(r.Context())
	switch {
	case err == nil:
		writeData(w, statsJSON{
			Deaths:      uint32(ps.TotalDeaths),
			Playtime:    uint32(ps.TotalPlaytimeMs),
			Source:      "cached",
			LastUpdated: optionalTime(ps.LastUpdated),
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusServiceUnavailable, codeNoData, "No stats available. Play the game at least once.")
	default:
		s.cfg.Logger.Printf("warn: player stats query failed err=%v", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "Could not read stored stats")
	}
}

// readLive reads both counters, re-attaching once when a read fails. A zero
// playtime means no save is loaded, so it does not count as live data.
func (s *Server) readLive() (deaths, playtime uint32, ok bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	read := func() bool {
		var derr, perr error
		deaths, derr = s.stats.DeathCount()
		playtime, perr = s.stats.PlayTime()
		return derr == nil && perr == nil
	}

	if !s.stats.IsAttached() {
		if err := s.stats.Attach(); err != nil {
			return 0, 0, false
		}
	}
	if !read() {
		s.stats.Reset()
		if err := s.stats.Attach(); err != nil {
			return 0, 0, false
		}
		if !read() {
			return 0, 0, false
		}
	}
	return deaths, playtime, playtime > 0
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	snap := s.cfg.Live.Snapshot()
	writeData(w, liveJSON{
		Attached:         snap.Attached,
		SessionActive:    snap.SessionActive,
		Deaths:           snap.Deaths,
		Playtime:         snap.PlaytimeMs,
		CharacterID:      snap.CharacterID,
		SessionStartedAt: optionalTime(snap.SessionStartedAt),
		UpdatedAt:        optionalTime(snap.UpdatedAt),
	})
}

// handleStream pushes "data: {json}\n\n" events with the counters that
// changed since the previous event. The first event carries every visible
// counter.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternal, "Streaming unsupported")
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	reader := s.cfg.NewReader()
	defer func() {
		if reader.IsAttached() {
			reader.Reset()
		}
	}()

	s.cfg.Logger.Printf("stream client connected remote=%s", r.RemoteAddr)
	defer s.cfg.Logger.Printf("stream client disconnected remote=%s", r.RemoteAddr)

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()

	var (
		first        = true
		lastDeaths   uint32
		lastPlaytime uint32
	)
	for {
		if event, ok := nextEvent(reader, s.cfg.Settings.Get(), first, &lastDeaths, &lastPlaytime); ok {
			payload, err := json.Marshal(event)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
			first = false
		}
		select {
		case <-r.Context().Done():
			return
		case <-s.streams.Done():
			return
		case <-ticker.C:
		}
	}
}

// nextEvent polls reader once and returns the changed visible counters.
func nextEvent(reader StatsReader, settings config.Settings, first bool, lastDeaths, lastPlaytime *uint32) (map[string]uint32, bool) {
	if !reader.IsAttached() {
		if err := reader.Attach(); err != nil {
			return nil, false
		}
	}
	if !reader.IsAlive() {
		reader.Reset()
		return nil, false
	}
	event := map[string]uint32{}
	if settings.DeathCountVisible {
		if deaths, err := reader.DeathCount(); err == nil && (first || deaths != *lastDeaths) {
			*lastDeaths = deaths
			event["deaths"] = deaths
		}
	}
	if settings.PlaytimeVisible {
		if playtime, err := reader.PlayTime(); err == nil && (first || playtime != *lastPlaytime) {
			*lastPlaytime = playtime
			event["playtime"] = playtime
		}
	}
	return event, len(event) > 0
}
