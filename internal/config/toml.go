// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Server   ServerConfig   `toml:"server"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Presence PresenceConfig `toml:"presence"`
	Storage  StorageConfig  `toml:"storage"`
}

// ServerConfig maps HTTP API settings.
type ServerConfig struct {
	Addr          *string `toml:"addr"`
	AllowedOrigin *string `toml:"allowed-origin"`
}

// MonitorConfig maps session monitor settings.
type MonitorConfig struct {
	Interval *time.Duration `toml:"interval"`
}

// PresenceConfig maps presence loop settings.
type PresenceConfig struct {
	Interval         *time.Duration `toml:"interval"`
	DeathResyncTicks *int           `toml:"death-resync-ticks"`
}

// StorageConfig maps persistence settings.
type StorageConfig struct {
	DB *string `toml:"db"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
