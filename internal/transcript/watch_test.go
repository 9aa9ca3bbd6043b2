package transcript

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTranscript(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestNewWatcherSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeTranscript(t, path, "")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if w.Changes() == nil {
		t.Error("Changes() returned nil channel")
	}
}

func TestNewWatcherBadPath(t *testing.T) {
	_, err := NewWatcher("/nonexistent/dir/transcript.jsonl", nil)
	if err == nil {
		t.Error("NewWatcher should fail for nonexistent directory")
	}
}

func TestWatcherDetectsAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeTranscript(t, path, `{"role":"user","content":"hi"}`+"\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	// Give fsnotify time to start watching.
	time.Sleep(50 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString(`{"role":"assistant","content":"hello"}` + "\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()

	// Should receive a change signal within debounce + margin.
	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for change signal on append")
	}
}

func TestWatcherDetectsReplaceByRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	writeTranscript(t, path, "")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(50 * time.Millisecond)

	tmp := filepath.Join(dir, "transcript.tmp")
	writeTranscript(t, tmp, `{"type":"session","id":"s2"}`+"\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if c := waitChange(t, w); c.Kind != Replaced {
		t.Errorf("Kind = %v, want replaced", c.Kind)
	}
}

// waitChange returns the next report or fails the test.
func waitChange(t *testing.T, w *Watcher) Change {
	t.Helper()
	select {
	case c := <-w.Changes():
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}
	return Change{}
}

func TestWatcherReportsTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeTranscript(t, path, `{"role":"user","content":"a long first message"}`+"\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(50 * time.Millisecond)
	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	c := waitChange(t, w)
	if c.Kind != Truncated || c.Size != 0 {
		t.Errorf("got %+v, want truncated to 0", c)
	}
}

func TestWatcherReportsRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeTranscript(t, path, `{"role":"user","content":"hi"}`+"\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(50 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if c := waitChange(t, w); c.Kind != Removed {
		t.Errorf("Kind = %v, want removed", c.Kind)
	}

	writeTranscript(t, path, `{"role":"user","content":"back"}`+"\n")
	if c := waitChange(t, w); c.Kind != Replaced {
		t.Errorf("Kind = %v, want replaced once the file is back", c.Kind)
	}
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	stat := func(name, data string) os.FileInfo {
		t.Helper()
		path := filepath.Join(dir, name)
		writeTranscript(t, path, data)
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		return fi
	}
	long := stat("a", "0123456789")
	short := stat("a", "0123")
	other := stat("b", "0123456789")

	tests := []struct {
		name      string
		prev, cur os.FileInfo
		want      ChangeKind
		changed   bool
	}{
		{"grown", short, long, Written, true},
		{"same size", long, long, Written, true},
		{"shorter", long, short, Truncated, true},
		{"other file", long, other, Replaced, true},
		{"appeared", nil, long, Replaced, true},
		{"removed", long, nil, Removed, true},
		{"still missing", nil, nil, Removed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := classify(tt.prev, tt.cur)
			if got != tt.want || changed != tt.changed {
				t.Errorf("classify = %v, %v; want %v, %v", got, changed, tt.want, tt.changed)
			}
		})
	}
}

func TestMergeKeepsReloadReason(t *testing.T) {
	tests := []struct {
		prev, next ChangeKind
		want       ChangeKind
	}{
		{Written, Written, Written},
		{Truncated, Written, Truncated},
		{Replaced, Written, Replaced},
		{Removed, Written, Replaced},
		{Written, Removed, Removed},
		{Truncated, Replaced, Replaced},
	}
	for _, tt := range tests {
		got := merge(Change{Kind: tt.prev, Size: 1}, Change{Kind: tt.next, Size: 2})
		if got.Kind != tt.want || got.Size != 2 {
			t.Errorf("merge(%v, %v) = %+v, want %v with the newer size", tt.prev, tt.next, got, tt.want)
		}
	}
}

func TestSendFoldsUnreadReports(t *testing.T) {
	w := &Watcher{onChange: make(chan Change, 1)}
	w.send(Change{Kind: Truncated, Size: 0})
	w.send(Change{Kind: Written, Size: 40})

	c := <-w.Changes()
	if c != (Change{Kind: Truncated, Size: 40}) {
		t.Errorf("got %+v", c)
	}
	select {
	case c := <-w.Changes():
		t.Errorf("unexpected second report %+v", c)
	default:
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	writeTranscript(t, path, "")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(50 * time.Millisecond)

	// Write to an unrelated file in the same directory.
	writeTranscript(t, filepath.Join(dir, "other.txt"), "noise")

	select {
	case <-w.Changes():
		t.Error("unexpected change signal from unrelated file write")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeTranscript(t, path, "")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(50 * time.Millisecond)
	for range 5 {
		writeTranscript(t, path, `{"role":"user","content":"x"}`+"\n")
	}

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}
	select {
	case <-w.Changes():
		t.Error("a burst of writes should produce one signal")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeTranscript(t, path, "")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
