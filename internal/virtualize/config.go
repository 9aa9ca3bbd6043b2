package virtualize

import (
	"time"
)

// Default tuning values. Lengths are in layout units (pixels in a browser,
// rows in a terminal).
const (
	DefaultMargin               = 2000
	DefaultBufferSize           = 2
	DefaultStreamingThrottle    = 150 * time.Millisecond
	DefaultMutationDebounce     = 50 * time.Millisecond
	DefaultScrollThrottle       = 50 * time.Millisecond
	DefaultMinPlaceholderHeight = 24
	DefaultBottomThreshold      = 24

	DefaultMessageSelector = `[data-message-author-role], article.message`
	DefaultStopSelector    = `button[data-testid=stop-button], button[aria-label="Stop generating"]`
	DefaultMarkerSelector  = `.result-streaming, .typing-cursor, [data-streaming=true]`
)

// Config tunes the virtualization engine. Zero or negative values take the
// defaults above, so a zero Config is usable.
type Config struct {
	// Disabled turns every pass into a no-op.
	Disabled bool `yaml:"disabled"`
	// Debug enables per-pass debug logging.
	Debug bool `yaml:"debug"`

	// Margin extends the viewport above and below; elements entirely
	// outside the extended window are replaced by placeholders.
	Margin float64 `yaml:"margin"`
	// BufferSize is how many elements before the streaming one stay pinned.
	// Nil or negative takes the default; zero pins the streaming element
	// alone.
	BufferSize *int `yaml:"buffer_size"`
	// MinPlaceholderHeight floors the height recorded for a placeholder.
	MinPlaceholderHeight float64 `yaml:"min_placeholder_height"`
	// BottomThreshold is the distance from the bottom edge under which the
	// user counts as anchored to the bottom.
	BottomThreshold float64 `yaml:"bottom_threshold"`

	StreamingThrottle time.Duration `yaml:"streaming_throttle"`
	MutationDebounce  time.Duration `yaml:"mutation_debounce"`
	ScrollThrottle    time.Duration `yaml:"scroll_throttle"`

	MessageSelector string `yaml:"message_selector"`
	StopSelector    string `yaml:"stop_selector"`
	MarkerSelector  string `yaml:"marker_selector"`
}

// Buffer returns n as a Config.BufferSize.
func Buffer(n int) *int { return &n }

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	var c Config
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.Margin <= 0 {
		c.Margin = DefaultMargin
	}
	if c.BufferSize == nil || *c.BufferSize < 0 {
		c.BufferSize = Buffer(DefaultBufferSize)
	} else {
		c.BufferSize = Buffer(*c.BufferSize)
	}
	if c.MinPlaceholderHeight <= 0 {
		c.MinPlaceholderHeight = DefaultMinPlaceholderHeight
	}
	if c.BottomThreshold <= 0 {
		c.BottomThreshold = DefaultBottomThreshold
	}
	if c.StreamingThrottle <= 0 {
		c.StreamingThrottle = DefaultStreamingThrottle
	}
	if c.MutationDebounce <= 0 {
		c.MutationDebounce = DefaultMutationDebounce
	}
	if c.ScrollThrottle <= 0 {
		c.ScrollThrottle = DefaultScrollThrottle
	}
	if c.MessageSelector == "" {
		c.MessageSelector = DefaultMessageSelector
	}
	if c.StopSelector == "" {
		c.StopSelector = DefaultStopSelector
	}
	if c.MarkerSelector == "" {
		c.MarkerSelector = DefaultMarkerSelector
	}
}
