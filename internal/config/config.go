// Package config loads threadview settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/threadview/internal/virtualize"
)

// Terminal defaults. The engine defaults are in pixels; a terminal lays out
// rows.
const (
	DefaultMargin               = 120
	DefaultMinPlaceholderHeight = 1
	DefaultBottomThreshold      = 1
	DefaultRefresh              = 2 * time.Second
)

// Config is the top-level threadview configuration.
type Config struct {
	// Transcript is the JSONL file to follow. Empty means auto-discover.
	Transcript string `yaml:"transcript"`
	// Plain disables markdown rendering.
	Plain bool `yaml:"plain"`
	// Refresh is the polling fallback for missed file events.
	Refresh time.Duration `yaml:"refresh"`

	LogFile     string `yaml:"log_file"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	Virtualize virtualize.Config `yaml:"virtualize"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load reads a YAML configuration file. Unknown keys are rejected. An empty
// path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Level parses LogLevel. Empty means info.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

func (c *Config) applyDefaults() {
	if c.Refresh <= 0 {
		c.Refresh = DefaultRefresh
	}
	v := &c.Virtualize
	if v.Margin <= 0 {
		v.Margin = DefaultMargin
	}
	if v.MinPlaceholderHeight <= 0 {
		v.MinPlaceholderHeight = DefaultMinPlaceholderHeight
	}
	if v.BottomThreshold <= 0 {
		v.BottomThreshold = DefaultBottomThreshold
	}
}
