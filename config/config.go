// Package config loads the optional operator override file.
//
// The file lives at $XDG_CONFIG_HOME/warden/config.yaml (defaults to
// ~/.config/warden/config.yaml). It tunes the fallback pending window and
// poll interval; a missing or malformed file yields the built-in defaults,
// since a bad override must never fail a lifecycle operation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the fallback poll loop.
const (
	DefaultPendingWindowSeconds = 300
	DefaultPollIntervalSeconds  = 2
)

// Settings are the operator-tunable knobs.
type Settings struct {
	// PendingWindowSeconds bounds how long wait polls for a
	// remote-scheduled instance before reverting to local fallback.
	PendingWindowSeconds int `yaml:"pending_window_seconds"`
	// PollIntervalSeconds is the sleep between state re-reads while
	// polling.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		PendingWindowSeconds: DefaultPendingWindowSeconds,
		PollIntervalSeconds:  DefaultPollIntervalSeconds,
	}
}

// PendingWindow returns the pending window as a duration.
func (s Settings) PendingWindow() time.Duration {
	return time.Duration(s.PendingWindowSeconds) * time.Second
}

// PollInterval returns the poll interval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/warden/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "warden", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "warden", "config.yaml")
}

// Load reads the override file at Path. Absence is routine; any read or
// parse problem is logged and degrades to Default.
func Load() Settings {
	return load(Path())
}

func load(path string) Settings {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("config file unreadable, using defaults", "path", path, "err", err)
		}
		return s
	}

	var file Settings
	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("config file malformed, using defaults", "path", path, "err", err)
		return s
	}
	if err := file.validate(); err != nil {
		slog.Warn("config file invalid, using defaults", "path", path, "err", err)
		return s
	}

	if file.PendingWindowSeconds > 0 {
		s.PendingWindowSeconds = file.PendingWindowSeconds
	}
	if file.PollIntervalSeconds > 0 {
		s.PollIntervalSeconds = file.PollIntervalSeconds
	}
	return s
}

func (s Settings) validate() error {
	if s.PendingWindowSeconds < 0 {
		return fmt.Errorf("pending_window_seconds must not be negative, got %d", s.PendingWindowSeconds)
	}
	if s.PollIntervalSeconds < 0 {
		return fmt.Errorf("poll_interval_seconds must not be negative, got %d", s.PollIntervalSeconds)
	}
	return nil
}
