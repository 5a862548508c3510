package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds environment overrides. Unset variables stay nil.
type EnvConfig struct {
	Addr             *string        `env:"EMBER_ADDR"`
	AllowedOrigin    *string        `env:"EMBER_ALLOWED_ORIGIN"`
	DB               *string        `env:"EMBER_DB"`
	MonitorInterval  *time.Duration `env:"EMBER_MONITOR_INTERVAL"`
	PresenceInterval *time.Duration `env:"EMBER_PRESENCE_INTERVAL"`
}

// LoadEnv parses EMBER_* variables from the process environment.
func LoadEnv() (EnvConfig, error) {
	return parseEnv(env.Options{})
}

func parseEnv(opts env.Options) (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return EnvConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
