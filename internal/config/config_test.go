package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "threadview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultRefresh, cfg.Refresh)
	assert.Equal(t, float64(DefaultMargin), cfg.Virtualize.Margin)
	assert.Equal(t, float64(DefaultMinPlaceholderHeight), cfg.Virtualize.MinPlaceholderHeight)
	assert.Equal(t, float64(DefaultBottomThreshold), cfg.Virtualize.BottomThreshold)
	assert.Nil(t, cfg.Virtualize.BufferSize, "left for the engine to default")
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
transcript: /tmp/chat.jsonl
plain: true
log_level: debug
metrics_addr: 127.0.0.1:9099
virtualize:
  margin: 40
  buffer_size: 4
  streaming_throttle: 300ms
  debug: true
  stop_selector: "button.stop"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/chat.jsonl", cfg.Transcript)
	assert.True(t, cfg.Plain)
	assert.Equal(t, "127.0.0.1:9099", cfg.MetricsAddr)
	assert.Equal(t, float64(40), cfg.Virtualize.Margin)
	require.NotNil(t, cfg.Virtualize.BufferSize)
	assert.Equal(t, 4, *cfg.Virtualize.BufferSize)
	assert.Equal(t, 300*time.Millisecond, cfg.Virtualize.StreamingThrottle)
	assert.True(t, cfg.Virtualize.Debug)
	assert.Equal(t, "button.stop", cfg.Virtualize.StopSelector)
	assert.Equal(t, float64(DefaultBottomThreshold), cfg.Virtualize.BottomThreshold)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "marginn: 3\n", "parse"},
		{"bad duration", "refresh: soon\n", "parse"},
		{"bad level", "log_level: loud\n", "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
