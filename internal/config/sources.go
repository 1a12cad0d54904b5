package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// SourceConfig is one [[sources]] entry.
type SourceConfig struct {
	Name   string `toml:"name"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	// Format is the raw pixel format, "rgba32" or "rgb24".
	Format string `toml:"format,omitempty"`
	// Device is a V4L2 device path. Empty sources render a test pattern.
	Device string `toml:"device,omitempty"`
}

// StreamerConfig is the [streamer] table. It is the part of the file that
// is reloaded while running.
type StreamerConfig struct {
	Enabled bool `toml:"enabled"`
	Delay   int  `toml:"delay"`
}

// streamerTable distinguishes a missing enabled key from false.
type streamerTable struct {
	Enabled *bool `toml:"enabled"`
	Delay   int   `toml:"delay"`
}

type fileConfig struct {
	Streamer *streamerTable `toml:"streamer"`
	Sources  []SourceConfig  `toml:"sources"`
}

// ErrNoSources is returned when the config file declares no sources.
var ErrNoSources = errors.New("no sources configured")

func readFile(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadSources reads the [[sources]] array of the config file.
func LoadSources(path string) ([]SourceConfig, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if len(cfg.Sources) == 0 {
		return nil, ErrNoSources
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.Name == "" {
			return nil, fmt.Errorf("source %d has no name", i)
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("source %q declared twice", src.Name)
		}
		seen[src.Name] = true
		if src.Width <= 0 || src.Height <= 0 {
			return nil, fmt.Errorf("source %q needs a positive width and height", src.Name)
		}
	}
	return cfg.Sources, nil
}

// LoadStreamerConfig reads the [streamer] table. Missing keys mean
// streaming enabled with no delay.
func LoadStreamerConfig(path string) (StreamerConfig, error) {
	cfg, err := readFile(path)
	if err != nil {
		return StreamerConfig{}, err
	}

	out := StreamerConfig{Enabled: true}
	if cfg.Streamer == nil {
		return out, nil
	}
	if cfg.Streamer.Enabled != nil {
		out.Enabled = *cfg.Streamer.Enabled
	}
	if cfg.Streamer.Delay < 0 {
		return StreamerConfig{}, fmt.Errorf("streamer.delay must not be negative, got %d", cfg.Streamer.Delay)
	}
	out.Delay = cfg.Streamer.Delay
	return out, nil
}
