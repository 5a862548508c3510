// Package monitor turns polled game fields into sessions, deaths and
// character snapshots.
package monitor

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/verte-zerg/ember/internal/live"
	"github.com/verte-zerg/ember/internal/model"
	"github.com/verte-zerg/ember/internal/zones"
)

const (
	// DefaultInterval is the poll cadence while attached.
	DefaultInterval = 1500 * time.Millisecond
	// DefaultMaxBackoff caps the delay between failed attach attempts.
	DefaultMaxBackoff = 30 * time.Second
)

// Fields is the subset of gamedata.Reader the monitor polls.
type Fields interface {
	Attach() error
	IsAttached() bool
	IsAlive() bool
	Reset()
	DeathCount() (uint32, error)
	PlayTime() (uint32, error)
	PlayRegion() (uint32, error)
	InBossFight() (bool, error)
	PlayerHP() (int32, error)
	CharacterName() (string, error)
	CharacterClass() (uint8, error)
	CharacterStats() (model.CharacterStats, error)
}

// Recorder persists lifecycle events. *store.Store implements it.
type Recorder interface {
	GetOrCreateCharacter(ctx context.Context, name string, classID int) (int64, error)
	InsertSession(ctx context.Context, session model.Session) (int64, error)
	InsertDeath(ctx context.Context, death model.Death) (int64, error)
	UpsertPlayerStats(ctx context.Context, ps model.PlayerStats) error
	UpsertCharacterStats(ctx context.Context, cs model.CharacterStats) error
}

// Options configures a Monitor. Zero values select defaults.
type Options struct {
	Interval   time.Duration
	MaxBackoff time.Duration
	Logger     *log.Logger
	Now        func() time.Time
}

// Monitor owns its Fields exclusively and must be driven from one goroutine.
type Monitor struct {
	fields   Fields
	recorder Recorder
	state    *live.State
	logger   *log.Logger
	now      func() time.Time
	interval time.Duration
	backoff  *backoff.ExponentialBackOff

	lastAttachErr string

	// Session state. Cleared on detach.
	active         bool
	startedAt      time.Time
	startingDeaths uint32
	lastDeaths     uint32
	lastPlaytime   uint32
	characterID    int64
	charStats      model.CharacterStats
	haveCharStats  bool
	lastRegion     uint32
	inBoss         bool
	deathRecorded  bool
}

// New returns a Monitor publishing last-known values to state.
func New(fields Fields, recorder Recorder, state *live.State, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.MaxBackoff < opts.Interval {
		opts.MaxBackoff = opts.Interval
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if state == nil {
		state = &live.State{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.Interval
	b.MaxInterval = opts.MaxBackoff
	return &Monitor{
		fields:   fields,
		recorder: recorder,
		state:    state,
		logger:   opts.Logger,
		now:      opts.Now,
		interval: opts.Interval,
		backoff:  b,
	}
}

// State returns the shared last-known values.
func (m *Monitor) State() *live.State {
	return m.state
}

// Run polls until ctx is done, then closes any active session.
func (m *Monitor) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Flush(ctx)
			return nil
		case <-timer.C:
		}
		timer.Reset(m.Poll(ctx))
	}
}

// Poll runs one iteration of the lifecycle and returns the delay before the
// next one.
func (m *Monitor) Poll(ctx context.Context) time.Duration {
	if !m.fields.IsAttached() {
		if err := m.fields.Attach(); err != nil {
			if msg := err.Error(); msg != m.lastAttachErr {
				m.logger.Printf("attach failed err=%q", msg)
				m.lastAttachErr = msg
			}
			return m.backoff.NextBackOff()
		}
		m.backoff.Reset()
		m.lastAttachErr = ""
		m.state.SetAttached(true, m.now())
		m.logger.Printf("attached to game process")
	}

	if !m.fields.IsAlive() {
		m.logger.Printf("game process exited")
		m.detach(ctx)
		return m.interval
	}

	if !m.active {
		m.tryStart(ctx)
	}
	if m.active {
		m.refresh(ctx)
	}
	return m.interval
}

// Flush closes an active session as if the process had exited and drops the
// process handle.
func (m *Monitor) Flush(ctx context.Context) {
	if m.active || m.fields.IsAttached() {
		m.detach(ctx)
	}
}

func (m *Monitor) tryStart(ctx context.Context) {
	playtime, err := m.fields.PlayTime()
	if err != nil || playtime == 0 {
		return
	}
	deaths, err := m.fields.DeathCount()
	if err != nil {
		return
	}

	now := m.now()
	m.active = true
	m.startedAt = now
	m.startingDeaths = deaths
	m.lastDeaths = deaths
	m.lastPlaytime = playtime
	m.characterID = m.resolveCharacter(ctx)
	m.haveCharStats = false
	m.deathRecorded = false
	m.inBoss = false

	m.state.StartSession(now, deaths, playtime, m.characterID)
	m.logger.Printf("session started deaths=%d playtime_ms=%d character_id=%d", deaths, playtime, m.characterID)
}

func (m *Monitor) resolveCharacter(ctx context.Context) int64 {
	name, err := m.fields.CharacterName()
	if err != nil || name == "" {
		m.logger.Printf("character unresolved: name unreadable")
		return 0
	}
	class, err := m.fields.CharacterClass()
	if err != nil {
		m.logger.Printf("character unresolved: class unreadable name=%q", name)
		return 0
	}
	id, err := m.recorder.GetOrCreateCharacter(ctx, name, int(class))
	if err != nil {
		m.logger.Printf("character unresolved name=%q err=%v", name, err)
		return 0
	}
	return id
}

func (m *Monitor) refresh(ctx context.Context) {
	now := m.now()
	if playtime, err := m.fields.PlayTime(); err == nil && playtime > 0 {
		m.lastPlaytime = playtime
		if deaths, err := m.fields.DeathCount(); err == nil {
			m.lastDeaths = deaths
		}
		m.state.Observe(m.lastDeaths, m.lastPlaytime, now)
	}

	if cs, err := m.fields.CharacterStats(); err == nil {
		cs.CharacterID = m.characterID
		m.charStats = cs
		m.haveCharStats = true
	}

	if region, err := m.fields.PlayRegion(); err == nil {
		m.lastRegion = region
	}
	if boss, err := m.fields.InBossFight(); err == nil {
		if boss && !m.inBoss {
			m.logger.Printf("boss fight started zone=%q", zones.Name(m.lastRegion))
		}
		m.inBoss = boss
	}

	hp, err := m.fields.PlayerHP()
	if err != nil {
		return
	}
	if hp > 0 {
		m.deathRecorded = false
		return
	}
	if m.deathRecorded || m.lastRegion == 0 || m.characterID == 0 {
		return
	}
	death := model.Death{
		ZoneID:      m.lastRegion,
		ZoneName:    zones.Name(m.lastRegion),
		CharacterID: m.characterID,
		At:          now,
		IsBossDeath: m.inBoss,
	}
	if _, err := m.recorder.InsertDeath(ctx, death); err != nil {
		m.logger.Printf("warn: death not saved zone_id=%d err=%v", death.ZoneID, err)
	} else {
		m.logger.Printf("death recorded zone=%q boss=%t", death.ZoneName, death.IsBossDeath)
	}
	m.deathRecorded = true
}

func (m *Monitor) detach(ctx context.Context) {
	now := m.now()
	if m.active {
		m.closeSession(ctx, now)
	}
	m.fields.Reset()
	m.state.EndSession(now)
	m.state.SetAttached(false, now)
}

func (m *Monitor) closeSession(ctx context.Context, now time.Time) {
	// Writes must land even when ctx was cancelled for shutdown.
	ctx = context.WithoutCancel(ctx)
	session := model.Session{
		StartedAt:      m.startedAt,
		EndedAt:        now,
		DurationMs:     now.Sub(m.startedAt).Milliseconds(),
		StartingDeaths: int(m.startingDeaths),
		EndingDeaths:   int(m.lastDeaths),
		CharacterID:    m.characterID,
	}
	if _, err := m.recorder.InsertSession(ctx, session); err != nil {
		m.logger.Printf("warn: session not saved err=%v", err)
	} else {
		m.logger.Printf("session closed duration_ms=%d deaths=%d", session.DurationMs, session.EndingDeaths-session.StartingDeaths)
	}
	if m.characterID != 0 && m.haveCharStats {
		m.charStats.CharacterID = m.characterID
		m.charStats.UpdatedAt = now
		if err := m.recorder.UpsertCharacterStats(ctx, m.charStats); err != nil {
			m.logger.Printf("warn: character stats not saved character_id=%d err=%v", m.characterID, err)
		}
	}
	if err := m.recorder.UpsertPlayerStats(ctx, model.PlayerStats{
		TotalDeaths:     int(m.lastDeaths),
		TotalPlaytimeMs: int64(m.lastPlaytime),
		LastUpdated:     now,
	}); err != nil {
		m.logger.Printf("warn: player stats not saved err=%v", err)
	}

	m.active = false
	m.startedAt = time.Time{}
	m.startingDeaths = 0
	m.characterID = 0
	m.haveCharStats = false
	m.charStats = model.CharacterStats{}
	m.lastRegion = 0
	m.inBoss = false
	m.deathRecorded = false
}
