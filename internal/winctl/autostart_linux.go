//go:build linux

package winctl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/verte-zerg/ember/internal/config"
)

// desktopAutoStart manages an XDG autostart entry.
type desktopAutoStart struct {
	dir  string
	name string
	exec func() (string, error)
}

// NewAutoStart returns a Toggler for $XDG_CONFIG_HOME/autostart.
func NewAutoStart(name string) Toggler {
	return &desktopAutoStart{
		dir:  filepath.Join(config.XDGConfigHome(), "autostart"),
		name: name,
		exec: os.Executable,
	}
}

func (a *desktopAutoStart) path() string {
	return filepath.Join(a.dir, strings.ToLower(a.name)+".desktop")
}

func (a *desktopAutoStart) Enable() error {
	exe, err := a.exec()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return err
	}
	entry := fmt.Sprintf("[Desktop Entry]\nType=Application\nName=%s\nExec=%q serve\nX-GNOME-Autostart-enabled=true\n", a.name, exe)
	return os.WriteFile(a.path(), []byte(entry), 0o644)
}

func (a *desktopAutoStart) Disable() error {
	if err := os.Remove(a.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
