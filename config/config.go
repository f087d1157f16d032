// config/config.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package config loads and validates the server's JSON configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the complete server configuration.
type Config struct {
	Database DatabaseConfig             `json:"database"`
	Client   ClientConfig               `json:"client"`
	METAR    METARConfig                `json:"metar"`
	Plugins  map[string]json.RawMessage `json:"plugins"`
}

// DatabaseConfig names the user database backing login checks.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `json:"driver"`

	// URL is a file path for sqlite or a connection URL for postgres
	URL string `json:"url"`
}

// ClientConfig covers the listener for simulator clients.
type ClientConfig struct {
	// Port is the FSD listener port (default: 6809)
	Port int `json:"port"`

	// MOTD lines are sent to each client right after login
	MOTD []string `json:"motd"`

	// MOTDEncoding is an optional charset name (e.g. "gbk") the MOTD is
	// transcoded to before sending; empty means UTF-8 as written
	MOTDEncoding string `json:"motd_encoding"`

	// Blacklist lists peer addresses whose connections are dropped
	// before any protocol exchange
	Blacklist []string `json:"blacklist"`
}

// METARConfig drives the weather subsystem.
type METARConfig struct {
	// Mode is "cron" (periodic bulk refresh) or "once" (per-request fetch)
	Mode string `json:"mode"`

	// Fallback optionally names the other mode to try when the primary
	// finds nothing
	Fallback string `json:"fallback"`

	// Fetchers is the ordered chain of source names
	Fetchers []string `json:"fetchers"`

	// CronTime is the refresh interval in seconds
	CronTime float64 `json:"cron_time"`

	// SkipPreviousFetcher avoids re-asking the source whose cache
	// already missed when falling back
	SkipPreviousFetcher bool `json:"skip_previous_fetcher"`

	// CacheFile is an optional path for the persisted observation cache
	CacheFile string `json:"cache_file"`
}

// Default returns the configuration a bare server runs with.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			URL:    "users.db",
		},
		Client: ClientConfig{
			Port: 6809,
			MOTD: []string{"Welcome to use OpenFSD."},
		},
		METAR: METARConfig{
			Mode:     "cron",
			Fetchers: []string{"NOAA"},
			CronTime: 3600,
		},
	}
}

// Load reads a JSON configuration file on top of the defaults. A missing
// file is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url not set")
	}
	if c.Client.Port < 1 || c.Client.Port > 65535 {
		return fmt.Errorf("client port %d out of range", c.Client.Port)
	}
	switch c.METAR.Mode {
	case "cron", "once":
	default:
		return fmt.Errorf("unknown metar mode %q", c.METAR.Mode)
	}
	switch c.METAR.Fallback {
	case "", "cron", "once":
	default:
		return fmt.Errorf("unknown metar fallback %q", c.METAR.Fallback)
	}
	if len(c.METAR.Fetchers) == 0 {
		return fmt.Errorf("no metar fetchers configured")
	}
	return nil
}
