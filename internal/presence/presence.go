// Package presence publishes a short human-readable summary of the running
// game to an external sink.
package presence

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/verte-zerg/ember/internal/zones"
)

const (
	// DefaultInterval is the presence refresh cadence.
	DefaultInterval = 15 * time.Second
	// DefaultResyncTicks is how many ticks pass between death count reads.
	DefaultResyncTicks = 5
)

// Activity is one presence update.
type Activity struct {
	Details     string
	State       string
	Status      string
	Zone        string
	Deaths      uint32
	PlaytimeMs  uint32
	InBossFight bool
	InMainMenu  bool
}

// Sink receives presence updates.
type Sink interface {
	Update(ctx context.Context, a Activity) error
	Clear(ctx context.Context) error
}

// Fields is the subset of gamedata.Reader the loop reads.
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
}

// Options configures a Loop. Zero values select defaults.
type Options struct {
	Interval    time.Duration
	ResyncTicks int
	// Enabled is consulted every tick; nil means always enabled.
	Enabled func() bool
	Logger  *log.Logger
}

// Loop owns its Fields and must be driven from one goroutine, except Wake.
type Loop struct {
	fields      Fields
	sink        Sink
	enabled     func() bool
	logger      *log.Logger
	interval    time.Duration
	resyncTicks int
	wake        chan struct{}

	connected  bool
	shown      bool
	sinceSync  int
	deaths     uint32
	playtimeMs uint32
}

// NewLoop returns a presence loop publishing to sink.
func NewLoop(fields Fields, sink Sink, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ResyncTicks <= 0 {
		opts.ResyncTicks = DefaultResyncTicks
	}
	if opts.Enabled == nil {
		opts.Enabled = func() bool { return true }
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Loop{
		fields:      fields,
		sink:        sink,
		enabled:     opts.Enabled,
		logger:      opts.Logger,
		interval:    opts.Interval,
		resyncTicks: opts.ResyncTicks,
		wake:        make(chan struct{}, 1),
		sinceSync:   opts.ResyncTicks,
	}
}

// Wake makes a running loop tick now instead of at the end of its interval.
// It never blocks.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run ticks until ctx is done and clears the sink on the way out.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.clear(context.WithoutCancel(ctx))
			if l.fields.IsAttached() {
				l.fields.Reset()
			}
			return nil
		case <-timer.C:
		case <-l.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		l.Tick(ctx)
		timer.Reset(l.interval)
	}
}

// Tick runs one presence iteration.
func (l *Loop) Tick(ctx context.Context) {
	if !l.enabled() {
		l.clear(ctx)
		return
	}

	if !l.fields.IsAttached() {
		if err := l.fields.Attach(); err != nil {
			if l.connected {
				l.logger.Printf("presence: game disconnected")
				l.connected = false
			}
			l.clear(ctx)
			return
		}
		l.connected = true
		l.sinceSync = l.resyncTicks
		l.logger.Printf("presence: game detected")
	}

	if !l.fields.IsAlive() {
		l.logger.Printf("presence: game exited")
		l.clear(ctx)
		l.fields.Reset()
		l.connected = false
		return
	}

	if l.sinceSync >= l.resyncTicks {
		if deaths, err := l.fields.DeathCount(); err == nil {
			l.deaths = deaths
		}
		l.sinceSync = 0
	}
	if playtime, err := l.fields.PlayTime(); err == nil {
		l.playtimeMs = playtime
	}
	region, err := l.fields.PlayRegion()
	if err != nil {
		region = 0
	}
	boss, _ := l.fields.InBossFight()
	hp, hpErr := l.fields.PlayerHP()

	a := Activity{
		Details:     FormatDeaths(l.deaths),
		State:       FormatPlaytime(l.playtimeMs),
		Status:      FormatStatus(region, boss, hp, hpErr == nil),
		Deaths:      l.deaths,
		PlaytimeMs:  l.playtimeMs,
		InBossFight: boss,
		InMainMenu:  region == 0,
	}
	if region != 0 {
		a.Zone = zones.Name(region)
	}
	if err := l.sink.Update(ctx, a); err != nil {
		l.logger.Printf("warn: presence update failed err=%v", err)
	} else {
		l.shown = true
	}
	l.sinceSync++
}

func (l *Loop) clear(ctx context.Context) {
	if !l.shown {
		return
	}
	if err := l.sink.Clear(ctx); err != nil {
		l.logger.Printf("warn: presence clear failed err=%v", err)
		return
	}
	l.shown = false
}

// LogSink writes presence changes to a logger, skipping repeats.
type LogSink struct {
	Logger *log.Logger
	last   Activity
}

// Update logs a when it differs from the previous update.
func (s *LogSink) Update(_ context.Context, a Activity) error {
	if a == s.last {
		return nil
	}
	s.last = a
	s.Logger.Printf("presence details=%q state=%q status=%q", a.Details, a.State, a.Status)
	return nil
}

// Clear logs that presence was cleared.
func (s *LogSink) Clear(context.Context) error {
	s.last = Activity{}
	s.Logger.Printf("presence cleared")
	return nil
}
