package transcript

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a burst of writes is reported.
const DefaultDebounce = 100 * time.Millisecond

// ChangeKind says how the transcript file changed since the last report.
type ChangeKind int

const (
	// Written: the same file was written to and is no shorter. Transcripts
	// are append-only, so this is the common case.
	Written ChangeKind = iota
	// Truncated: the same file got shorter, e.g. cleared in place.
	Truncated
	// Replaced: another file now sits at the path (rotation, atomic
	// rewrite, or the file reappearing after removal).
	Replaced
	// Removed: nothing exists at the path.
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Written:
		return "written"
	case Truncated:
		return "truncated"
	case Replaced:
		return "replaced"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Change is one debounced report. Size is the file size after the change.
type Change struct {
	Kind ChangeKind
	Size int64
}

// Watcher monitors the transcript for changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onChange chan Change
	done     chan struct{}

	// last is the file as of the previous report; nil while it is missing.
	// Owned by the loop goroutine.
	last os.FileInfo
}

// NewWatcher creates a watcher for the transcript at path.
// It watches the parent directory so that files replaced by rename (editors,
// log rotation) keep being followed.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	return newWatcher(path, DefaultDebounce, logger)
}

func newWatcher(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher := &Watcher{
		watcher:  w,
		path:     path,
		debounce: debounce,
		logger:   logger,
		onChange: make(chan Change, 1),
		done:     make(chan struct{}),
	}
	if fi, err := os.Stat(path); err == nil {
		watcher.last = fi
	}

	go watcher.loop()
	return watcher, nil
}

// Changes returns a channel that receives a report when the transcript
// changes. Reports not yet received are merged, so a reader never misses a
// truncation or replacement behind a later write.
func (w *Watcher) Changes() <-chan Change {
	return w.onChange
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	base := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Debounce: reset timer on each event.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.check()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("transcript: watch error", "path", w.path, "err", err)
		}
	}
}

// check stats the file and reports how it differs from the last report.
func (w *Watcher) check() {
	fi, err := os.Stat(w.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("transcript: stat", "path", w.path, "err", err)
		return
	}
	if err != nil {
		fi = nil
	}
	kind, changed := classify(w.last, fi)
	w.last = fi
	if !changed {
		return
	}
	c := Change{Kind: kind}
	if fi != nil {
		c.Size = fi.Size()
	}
	if kind != Written {
		w.logger.Info("transcript: "+kind.String(), "path", w.path, "size", c.Size)
	}
	w.send(c)
}

// send delivers c, folding it into a report the reader has not taken yet.
// The loop goroutine is the only sender, so the send after draining never
// blocks.
func (w *Watcher) send(c Change) {
	select {
	case prev := <-w.onChange:
		c = merge(prev, c)
	default:
	}
	w.onChange <- c
}

func classify(prev, cur os.FileInfo) (ChangeKind, bool) {
	switch {
	case cur == nil && prev == nil:
		return Removed, false
	case cur == nil:
		return Removed, true
	case prev == nil, !os.SameFile(prev, cur):
		return Replaced, true
	case cur.Size() < prev.Size():
		return Truncated, true
	}
	return Written, true
}

// merge combines an unread report with a newer one. A plain write does not
// hide an earlier reason to reload from scratch.
func merge(prev, next Change) Change {
	if next.Kind != Written {
		return next
	}
	switch prev.Kind {
	case Truncated, Replaced:
		next.Kind = prev.Kind
	case Removed:
		next.Kind = Replaced
	}
	return next
}
