// Package winctl toggles OS integrations: launching at login and the game
// window's borderless mode.
package winctl

import "errors"

// ErrUnsupported is returned on platforms without an implementation.
var ErrUnsupported = errors.New("not supported on this platform")

// ErrWindowNotFound is returned when the game window is not open.
var ErrWindowNotFound = errors.New("game window not found")

const (
	// AppName names the autostart entry.
	AppName = "DS3StatsReader"
	// GameWindowTitle is the title of the game's main window.
	GameWindowTitle = "DARK SOULS III"
)

// Toggler switches one integration on or off. Both calls are idempotent.
type Toggler interface {
	Enable() error
	Disable() error
}

// Set calls Enable or Disable.
func Set(t Toggler, on bool) error {
	if on {
		return t.Enable()
	}
	return t.Disable()
}

type unsupported struct{}

func (unsupported) Enable() error  { return ErrUnsupported }
func (unsupported) Disable() error { return ErrUnsupported }
