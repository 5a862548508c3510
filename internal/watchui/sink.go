package watchui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/ember/internal/presence"
)

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Sink forwards presence updates into the watch view.
type Sink struct {
	sender Sender
	now    func() time.Time
}

// NewSink returns a presence sink backed by s.
func NewSink(s Sender) *Sink {
	return &Sink{sender: s, now: time.Now}
}

// Update implements presence.Sink.
func (s *Sink) Update(_ context.Context, a presence.Activity) error {
	s.sender.Send(activityMsg{activity: a, at: s.now()})
	return nil
}

// Clear implements presence.Sink.
func (s *Sink) Clear(context.Context) error {
	s.sender.Send(clearMsg{})
	return nil
}
