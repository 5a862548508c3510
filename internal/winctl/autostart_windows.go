//go:build windows

package winctl

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows/registry"
)

const runKey = `Software\Microsoft\Windows\CurrentVersion\Run`

type registryAutoStart struct {
	name string
}

// NewAutoStart returns a Toggler for the current user's Run registry key.
func NewAutoStart(name string) Toggler {
	return &registryAutoStart{name: name}
}

func (a *registryAutoStart) Enable() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	k, err := registry.OpenKey(registry.CURRENT_USER, runKey, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open run key: %w", err)
	}
	defer func() {
		if cerr := k.Close(); cerr != nil {
			// Best-effort close.
			_ = cerr
		}
	}()
	if err := k.SetStringValue(a.name, exe); err != nil {
		return fmt.Errorf("set run value: %w", err)
	}
	return nil
}

func (a *registryAutoStart) Disable() error {
	k, err := registry.OpenKey(registry.CURRENT_USER, runKey, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open run key: %w", err)
	}
	defer func() {
		if cerr := k.Close(); cerr != nil {
			// Best-effort close.
			_ = cerr
		}
	}()
	if err := k.DeleteValue(a.name); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("delete run value: %w", err)
	}
	return nil
}
