package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// Settings are the user toggles changed at runtime through the API.
type Settings struct {
	DeathCountVisible    bool `toml:"death-count-visible" json:"isDeathCountVisible"`
	PlaytimeVisible      bool `toml:"playtime-visible" json:"isPlaytimeVisible"`
	PresenceEnabled      bool `toml:"presence-enabled" json:"isDiscordRpcEnabled"`
	BorderlessFullscreen bool `toml:"borderless-fullscreen" json:"isBorderlessFullscreenEnabled"`
	AutoStart            bool `toml:"auto-start" json:"isAutoStartEnabled"`
}

// SettingsPatch carries a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	DeathCountVisible    *bool `json:"isDeathCountVisible"`
	PlaytimeVisible      *bool `json:"isPlaytimeVisible"`
	PresenceEnabled      *bool `json:"isDiscordRpcEnabled"`
	BorderlessFullscreen *bool `json:"isBorderlessFullscreenEnabled"`
	AutoStart            *bool `json:"isAutoStartEnabled"`
}

// DefaultSettings returns the settings used when no valid file exists.
func DefaultSettings() Settings {
	return Settings{
		DeathCountVisible: true,
		PlaytimeVisible:   true,
		PresenceEnabled:   true,
	}
}

// SettingsStore guards Settings and persists every change.
type SettingsStore struct {
	path string

	mu       sync.RWMutex
	settings Settings
}

// LoadSettings reads settings from path. A missing or undecodable file is
// replaced with defaults.
func LoadSettings(path string) (*SettingsStore, error) {
	if path == "" {
		return nil, fmt.Errorf("settings path is empty")
	}
	s := &SettingsStore{path: path, settings: DefaultSettings()}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, s.save(s.settings)
	case err != nil:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	loaded := DefaultSettings()
	if _, err := toml.Decode(string(data), &loaded); err != nil {
		return s, s.save(s.settings)
	}
	s.settings = loaded
	return s, nil
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string {
	return s.path
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// PresenceEnabled reports whether presence updates are on.
func (s *SettingsStore) PresenceEnabled() bool {
	return s.Get().PresenceEnabled
}

// Patch applies p, saves, and returns the previous and new settings. On a
// save error the in-memory settings are unchanged.
func (s *SettingsStore) Patch(p SettingsPatch) (before, after Settings, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before = s.settings
	after = before
	apply(&after.DeathCountVisible, p.DeathCountVisible)
	apply(&after.PlaytimeVisible, p.PlaytimeVisible)
	apply(&after.PresenceEnabled, p.PresenceEnabled)
	apply(&after.BorderlessFullscreen, p.BorderlessFullscreen)
	apply(&after.AutoStart, p.AutoStart)
	if after == before {
		return before, after, nil
	}
	if err := s.save(after); err != nil {
		return before, before, err
	}
	s.settings = after
	return before, after, nil
}

func apply(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// save writes settings through a temp file and rename.
func (s *SettingsStore) save(settings Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(settings); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.toml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
