// threadview is a terminal viewer that follows a growing conversation
// transcript. Messages far outside the viewport are swapped for blank
// placeholders, so redraws stay cheap however long the conversation gets.
//
// Usage:
//
//	threadview                          # Auto-discover .threadview/transcript.jsonl
//	threadview --transcript <path>      # Follow a specific transcript
//	threadview --config threadview.yaml # Load settings from YAML
//	threadview --json                   # Run one pass and print stats as JSON
//	threadview --debug                  # Outline placeholders, log every pass
//	threadview --log threadview.log     # Write structured logs to a file
//	threadview --metrics-addr :9099     # Serve Prometheus metrics
//	threadview --version                # Print version and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/daviddao/threadview/internal/config"
	"github.com/daviddao/threadview/internal/metrics"
	"github.com/daviddao/threadview/internal/page"
	"github.com/daviddao/threadview/internal/transcript"
	"github.com/daviddao/threadview/internal/virtualize"
)

// Version is set via ldflags at build time (e.g. -X main.Version=v0.1.0).
var Version = "dev"

func main() {
	transcriptPath := flag.String("transcript", "", "path to transcript.jsonl (default: auto-discover)")
	configPath := flag.String("config", "", "YAML config file")
	jsonMode := flag.Bool("json", false, "run one virtualization pass, print stats as JSON and exit (no TUI)")
	width := flag.Int("width", 100, "viewport width for --json")
	height := flag.Int("height", 40, "viewport height for --json")
	debug := flag.Bool("debug", false, "outline placeholders and log every pass")
	logPath := flag.String("log", "", "write logs to this file")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	refresh := flag.Duration("refresh", config.DefaultRefresh, "polling fallback interval")
	plain := flag.Bool("plain", false, "disable markdown rendering")
	disabled := flag.Bool("no-virtualize", false, "start with virtualization off")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("threadview %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadview: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transcript":
			cfg.Transcript = *transcriptPath
		case "debug":
			cfg.Virtualize.Debug = *debug
		case "log":
			cfg.LogFile = *logPath
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "refresh":
			cfg.Refresh = *refresh
		case "plain":
			cfg.Plain = *plain
		case "no-virtualize":
			cfg.Virtualize.Disabled = *disabled
		}
	})
	if cfg.Virtualize.Debug && cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}

	logger, closeLog, err := newLogger(cfg, *jsonMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadview: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if cfg.Transcript != "" {
		os.Setenv(transcript.EnvPath, cfg.Transcript)
	}
	path, err := transcript.Discover()
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadview: %v\n", err)
		os.Exit(1)
	}
	snap, err := transcript.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadview: %v\n", err)
		os.Exit(1)
	}

	// --json mode: one pass over a virtual viewport, print stats, exit.
	if *jsonMode {
		out, err := runOnce(snap, cfg, *width, *height, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "threadview: %v\n", err)
			os.Exit(1)
		}
		out.Transcript = path
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "threadview: json: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	w, err := transcript.NewWatcher(path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadview: watch: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mx := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := mx.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("threadview: metrics server", "err", err)
			}
		}()
	}

	var prog *tea.Program
	clock := virtualize.NewLoopClock(func(fn func()) { prog.Send(loopMsg{fn: fn}) })

	m, err := newModel(cfg, path, w, snap, clock, mx, logger)
	if err != nil {
		w.Close()
		fmt.Fprintf(os.Stderr, "threadview: %v\n", err)
		os.Exit(1)
	}
	prog = tea.NewProgram(m, tea.WithAltScreen())

	// Feed transcript change events into the TUI.
	go func() {
		for c := range w.Changes() {
			prog.Send(fileChangedMsg{change: c})
		}
	}()

	// Polling fallback: refresh at --refresh interval even if fsnotify misses events.
	go func() {
		ticker := time.NewTicker(cfg.Refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prog.Send(fileChangedMsg{})
			}
		}
	}()

	if _, err := prog.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "threadview: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. The TUI owns the terminal, so logs
// go to --log or nowhere; --json mode logs warnings to stderr.
func newLogger(cfg *config.Config, jsonMode bool) (*slog.Logger, func(), error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log: %w", err)
		}
		return slog.New(slog.NewTextHandler(f, opts)), func() { f.Close() }, nil
	case jsonMode:
		opts.Level = max(level, slog.LevelWarn)
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}, nil
	}
	return slog.New(slog.NewTextHandler(io.Discard, opts)), func() {}, nil
}

type jsonOutput struct {
	Transcript string                   `json:"transcript"`
	SessionID  string                   `json:"session_id,omitempty"`
	Messages   int                      `json:"messages"`
	Streaming  bool                     `json:"streaming"`
	Viewport   jsonViewport             `json:"viewport"`
	Pass       jsonPass                 `json:"pass"`
	Stats      virtualize.StatsSnapshot `json:"stats"`
}

type jsonViewport struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	ScrollTop int `json:"scroll_top"`
	Rows      int `json:"rows"`
}

type jsonPass struct {
	Reason     string  `json:"reason"`
	DurationMS float64 `json:"duration_ms"`
	Unmounted  int     `json:"unmounted"`
	Restored   int     `json:"restored"`
	Signal     string  `json:"signal,omitempty"`
}

// runOnce lays the transcript out in a width x height viewport scrolled to
// the bottom, runs the boot pass on an event loop, and reports the result.
func runOnce(snap *transcript.Snapshot, cfg *config.Config, width, height int, logger *slog.Logger) (jsonOutput, error) {
	p, err := page.New(width, height, page.NewRenderer(!cfg.Plain), cfg.Virtualize.MessageSelector)
	if err != nil {
		return jsonOutput{}, err
	}
	p.Sync(snap)
	p.ScrollToBottom()

	loop := virtualize.NewLoop()
	done := make(chan struct{})
	defer close(done)
	go loop.Run(done)

	passes := make(chan virtualize.PassResult, 1)
	errc := make(chan error, 1)
	var session *virtualize.Session
	loop.Post(func() {
		s, err := virtualize.Boot(p, virtualize.Options{
			Config: cfg.Virtualize,
			Clock:  virtualize.NewLoopClock(loop.Post),
			Logger: logger,
			OnPass: func(r virtualize.PassResult) {
				select {
				case passes <- r:
				default:
				}
			},
		})
		if err != nil {
			errc <- err
			return
		}
		session = s
	})

	var r virtualize.PassResult
	select {
	case r = <-passes:
	case err := <-errc:
		return jsonOutput{}, err
	case <-time.After(5 * time.Second):
		return jsonOutput{}, fmt.Errorf("no virtualization pass ran")
	}

	out := make(chan jsonOutput, 1)
	loop.Post(func() {
		o := jsonOutput{
			SessionID: snap.SessionID,
			Messages:  len(snap.Messages),
			Streaming: snap.Streaming,
			Viewport: jsonViewport{
				Width:     width,
				Height:    height,
				ScrollTop: int(p.Document().ScrollTop()),
				Rows:      int(p.Document().ScrollHeight()),
			},
			Pass: jsonPass{
				Reason:     r.Reason,
				DurationMS: float64(r.Duration.Microseconds()) / 1000,
				Unmounted:  r.Unmounted,
				Restored:   r.Restored,
				Signal:     r.Signal,
			},
			Stats: session.StatsSnapshot(),
		}
		session.Teardown()
		out <- o
	})
	return <-out, nil
}
