package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verte-zerg/ember/internal/config"
	"github.com/verte-zerg/ember/internal/live"
	"github.com/verte-zerg/ember/internal/model"
	"github.com/verte-zerg/ember/internal/procmem"
	"github.com/verte-zerg/ember/internal/store"
)

type fakeReader struct {
	mu        sync.Mutex
	attachErr error
	attached  bool
	alive     bool
	deaths    uint32
	playtime  uint32
	failReads int
	attaches  int
}

func (f *fakeReader) Attach() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attaches++
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = true
	return nil
}

func (f *fakeReader) IsAttached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached
}

func (f *fakeReader) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached && f.alive
}

func (f *fakeReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = false
}

func (f *fakeReader) DeathCount() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads > 0 {
		f.failReads--
		return 0, procmem.ErrReadFailed
	}
	return f.deaths, nil
}

func (f *fakeReader) PlayTime() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playtime, nil
}

func (f *fakeReader) set(deaths, playtime uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deaths = deaths
	f.playtime = playtime
}

type countingToggler struct {
	mu  sync.Mutex
	ons []bool
}

func (c *countingToggler) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ons = append(c.ons, true)
	return nil
}

func (c *countingToggler) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ons = append(c.ons, false)
	return nil
}

type countingWaker struct {
	wakes int
}

func (c *countingWaker) Wake() { c.wakes++ }

type testEnv struct {
	server     *Server
	store      *store.Store
	settings   *config.SettingsStore
	reader     *fakeReader
	live       *live.State
	borderless *countingToggler
	autostart  *countingToggler
	waker      *countingWaker
	now        time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "ember.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	settings, err := config.LoadSettings(filepath.Join(dir, "settings.toml"))
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	env := &testEnv{
		store:      st,
		settings:   settings,
		reader:     &fakeReader{alive: true},
		live:       &live.State{},
		borderless: &countingToggler{},
		autostart:  &countingToggler{},
		waker:      &countingWaker{},
		now:        time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC),
	}
	srv, err := NewServer(Config{
		Version:        "1.2.3",
		Store:          st,
		Settings:       settings,
		Live:           env.live,
		NewReader:      func() StatsReader { return env.reader },
		Borderless:     env.borderless,
		AutoStart:      env.autostart,
		Presence:       env.waker,
		StreamInterval: 10 * time.Millisecond,
		Now:            func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.server = srv
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.now = env.now.Add(90 * time.Second)
	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Uptime  int64  `json:"uptime"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Version != "1.2.3" || body.Uptime != 90 {
		t.Fatalf("unexpected health %+v", body)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	resp := decode(t, env.do(t, http.MethodGet, "/api/settings", ""))
	var got map[string]bool
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	want := map[string]bool{
		"isDeathCountVisible":           true,
		"isPlaytimeVisible":             true,
		"isDiscordRpcEnabled":           true,
		"isBorderlessFullscreenEnabled": false,
		"isAutoStartEnabled":            false,
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("setting %s = %t, want %t", k, got[k], v)
		}
	}

	rec := env.do(t, http.MethodPatch, "/api/settings", `{"isDiscordRpcEnabled":false,"isBorderlessFullscreenEnabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(decode(t, rec).Data, &got); err != nil {
		t.Fatalf("decode patched: %v", err)
	}
	if got["isDiscordRpcEnabled"] || !got["isBorderlessFullscreenEnabled"] || !got["isDeathCountVisible"] {
		t.Fatalf("unexpected patched settings %+v", got)
	}
	if len(env.borderless.ons) != 1 || !env.borderless.ons[0] {
		t.Fatalf("expected borderless enabled once, got %v", env.borderless.ons)
	}
	if len(env.autostart.ons) != 0 {
		t.Fatalf("autostart must not change, got %v", env.autostart.ons)
	}
	if env.waker.wakes != 1 {
		t.Fatalf("expected presence wake, got %d", env.waker.wakes)
	}
	if env.settings.PresenceEnabled() {
		t.Fatalf("expected stored settings updated")
	}
}

func TestPatchSettingsRejectsBadBody(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{"", "{", `{"isPlaytimeVisible":"yes"}`} {
		rec := env.do(t, http.MethodPatch, "/api/settings", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		resp := decode(t, rec)
		if resp.Success || resp.Error == nil || resp.Error.Code != codeInvalidBody || resp.Error.Message != "Invalid request body" {
			t.Fatalf("body %q: unexpected error %+v", body, resp)
		}
	}
	if env.waker.wakes != 0 {
		t.Fatalf("rejected patches must not wake presence")
	}
}

func statsData(t *testing.T, rec *httptest.ResponseRecorder) statsJSON {
	t.Helper()
	var data statsJSON
	if err := json.Unmarshal(decode(t, rec).Data, &data); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	return data
}

func TestStatsLive(t *testing.T) {
	env := newTestEnv(t)
	env.reader.set(12, 3_600_000)
	rec := env.do(t, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if data := statsData(t, rec); data.Deaths != 12 || data.Playtime != 3_600_000 || data.Source != "live" {
		t.Fatalf("unexpected stats %+v", data)
	}
}

func TestStatsRetriesAfterReattach(t *testing.T) {
	env := newTestEnv(t)
	env.reader.set(5, 1000)
	env.reader.failReads = 1
	data := statsData(t, env.do(t, http.MethodGet, "/api/stats", ""))
	if data.Source != "live" || data.Deaths != 5 {
		t.Fatalf("unexpected stats %+v", data)
	}
	if env.reader.attaches != 2 {
		t.Fatalf("expected one re-attach, got %d attaches", env.reader.attaches)
	}
}

func TestStatsFallsBackToCache(t *testing.T) {
	env := newTestEnv(t)
	// Title screen: playtime reads as zero.
	env.reader.set(0, 0)
	if err := env.store.UpsertPlayerStats(context.Background(), model.PlayerStats{TotalDeaths: 40, TotalPlaytimeMs: 7_200_000}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	data := statsData(t, env.do(t, http.MethodGet, "/api/stats", ""))
	if data.Source != "cached" || data.Deaths != 40 || data.Playtime != 7_200_000 || data.LastUpdated == nil {
		t.Fatalf("unexpected stats %+v", data)
	}
}

func TestStatsNoData(t *testing.T) {
	env := newTestEnv(t)
	env.reader.attachErr = procmem.ErrProcessNotFound
	rec := env.do(t, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp.Error == nil || resp.Error.Code != codeNoData || resp.Error.Message != "No stats available. Play the game at least once." {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestLive(t *testing.T) {
	env := newTestEnv(t)
	env.live.SetAttached(true, env.now)
	env.live.StartSession(env.now, 3, 120000, 7)
	var data liveJSON
	if err := json.Unmarshal(decode(t, env.do(t, http.MethodGet, "/api/live", "")).Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !data.Attached || !data.SessionActive || data.Deaths != 3 || data.CharacterID != 7 || data.SessionStartedAt == nil {
		t.Fatalf("unexpected live data %+v", data)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", DefaultAllowedOrigin)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != DefaultAllowedOrigin {
		t.Fatalf("expected origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected origin header %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/settings", nil)
	req.Header.Set("Origin", DefaultAllowedOrigin)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Fatalf("unexpected preflight %d %v", rec.Code, rec.Header())
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	charID, err := env.store.GetOrCreateCharacter(ctx, "Anri", 2)
	if err != nil {
		t.Fatalf("create character: %v", err)
	}
	start := env.now.Add(-time.Hour)
	if _, err := env.store.InsertSession(ctx, model.Session{
		StartedAt: start, EndedAt: env.now, DurationMs: time.Hour.Milliseconds(),
		StartingDeaths: 1, EndingDeaths: 4, CharacterID: charID,
	}); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	if _, err := env.store.InsertDeath(ctx, model.Death{ZoneID: 310201, ZoneName: "Abyss Watchers", CharacterID: charID, IsBossDeath: true}); err != nil {
		t.Fatalf("insert death: %v", err)
	}

	var sessions []sessionJSON
	if err := json.Unmarshal(decode(t, env.do(t, http.MethodGet, "/api/sessions?limit=5", "")).Data, &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionDeaths != 3 || sessions[0].DeathsPerHour != 3 || *sessions[0].CharacterID != charID {
		t.Fatalf("unexpected sessions %+v", sessions)
	}

	var deaths []deathJSON
	if err := json.Unmarshal(decode(t, env.do(t, http.MethodGet, "/api/deaths?characterId=1", "")).Data, &deaths); err != nil {
		t.Fatalf("decode deaths: %v", err)
	}
	if len(deaths) != 1 || !deaths[0].IsBossDeath {
		t.Fatalf("unexpected deaths %+v", deaths)
	}

	var zones []zoneDeathsJSON
	if err := json.Unmarshal(decode(t, env.do(t, http.MethodGet, "/api/deaths/zones", "")).Data, &zones); err != nil {
		t.Fatalf("decode zones: %v", err)
	}
	if len(zones) != 1 || zones[0].Deaths != 1 || zones[0].ZoneName != "Abyss Watchers" || !zones[0].IsBossArena {
		t.Fatalf("unexpected zones %+v", zones)
	}

	var chars []characterJSON
	if err := json.Unmarshal(decode(t, env.do(t, http.MethodGet, "/api/characters", "")).Data, &chars); err != nil {
		t.Fatalf("decode characters: %v", err)
	}
	if len(chars) != 1 || chars[0].ClassName != "Warrior" {
		t.Fatalf("unexpected characters %+v", chars)
	}

	if rec := env.do(t, http.MethodGet, "/api/characters/99", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/characters/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/characters/1/stats", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before stats exist, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/sessions?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestStreamSendsDeltas(t *testing.T) {
	env := newTestEnv(t)
	env.reader.set(3, 1000)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()
	events, stop := openStream(t, ts.URL, ts.Client())
	defer stop()

	first := events()
	if len(first) != 2 || first["deaths"] != 3 || first["playtime"] != 1000 {
		t.Fatalf("unexpected first event %+v", first)
	}
	env.reader.set(3, 9000)
	if event := events(); len(event) != 1 || event["playtime"] != 9000 {
		t.Fatalf("expected playtime-only event, got %+v", event)
	}
}

func TestStreamRespectsVisibility(t *testing.T) {
	env := newTestEnv(t)
	hidden := false
	if _, _, err := env.settings.Patch(config.SettingsPatch{PlaytimeVisible: &hidden}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	env.reader.set(3, 1000)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()
	events, stop := openStream(t, ts.URL, ts.Client())
	defer stop()

	if event := events(); len(event) != 1 || event["deaths"] != 3 {
		t.Fatalf("expected deaths-only first event, got %+v", event)
	}
	env.reader.set(4, 5000)
	if event := events(); len(event) != 1 || event["deaths"] != 4 {
		t.Fatalf("expected deaths-only event, got %+v", event)
	}
}

func TestServeShutsDownWithOpenStream(t *testing.T) {
	env := newTestEnv(t)
	env.reader.set(3, 1000)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- env.server.Serve(ctx, ln)
	}()

	events, stop := openStream(t, "http://"+ln.Addr().String(), &http.Client{})
	defer stop()
	if first := events(); first["deaths"] != 3 || first["playtime"] != 1000 {
		t.Fatalf("unexpected first event %+v", first)
	}

	start := time.Now()
	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(shutdownTimeout):
		t.Fatalf("shutdown blocked on the open stream")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("shutdown took %v", elapsed)
	}
}

func TestNextEventSkipsUnchanged(t *testing.T) {
	reader := &fakeReader{alive: true, deaths: 2, playtime: 10}
	settings := config.DefaultSettings()
	var deaths, playtime uint32
	if _, ok := nextEvent(reader, settings, true, &deaths, &playtime); !ok {
		t.Fatalf("expected first event")
	}
	if event, ok := nextEvent(reader, settings, false, &deaths, &playtime); ok {
		t.Fatalf("unexpected event %+v", event)
	}
	reader.alive = false
	if _, ok := nextEvent(reader, settings, true, &deaths, &playtime); ok || reader.attached {
		t.Fatalf("expected no event and reset for an exited game")
	}
}

func openStream(t *testing.T, baseURL string, client *http.Client) (func() map[string]uint32, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/stats/stream", nil)
	if err != nil {
		cancel()
		t.Fatalf("new request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("do: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	lines := bufio.NewScanner(resp.Body)
	next := func() map[string]uint32 {
		t.Helper()
		for lines.Scan() {
			line := lines.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event map[string]uint32
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				t.Fatalf("decode event %q: %v", line, err)
			}
			return event
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return nil
	}
	stop := func() {
		cancel()
		_ = resp.Body.Close()
	}
	return next, stop
}
