package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// makeTranscript creates dir/.threadview/transcript.jsonl and returns its path.
func makeTranscript(t *testing.T, dir string) string {
	t.Helper()
	tvDir := filepath.Join(dir, ".threadview")
	if err := os.MkdirAll(tvDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(tvDir, "transcript.jsonl")
	writeTranscript(t, path, `{"type":"session","id":"s1"}`+"\n")
	return path
}

func TestDiscoverFromEnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.jsonl")
	writeTranscript(t, path, "")
	t.Setenv(EnvPath, path)

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got != path {
		t.Errorf("Discover() = %q, want %q", got, path)
	}
}

func TestDiscoverEnvVarDirectory(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "session-1.jsonl")
	newer := filepath.Join(dir, "session-2.jsonl")
	writeTranscript(t, older, "")
	writeTranscript(t, newer, "")
	writeTranscript(t, filepath.Join(dir, "notes.txt"), "")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	t.Setenv(EnvPath, dir)

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got != newer {
		t.Errorf("Discover() = %q, want the newest transcript %q", got, newer)
	}
}

func TestLatestEmptyDir(t *testing.T) {
	dir := t.TempDir()
	writeTranscript(t, filepath.Join(dir, "notes.txt"), "")

	_, err := Latest(dir)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Latest on a dir without transcripts: err = %v, want ErrNotExist", err)
	}
}

func TestDiscoverEnvVarMissing(t *testing.T) {
	t.Setenv(EnvPath, "/nonexistent/path/transcript.jsonl")

	_, err := Discover()
	if err == nil {
		t.Fatal("Discover should fail when THREADVIEW_TRANSCRIPT points to a nonexistent file")
	}
	if !strings.Contains(err.Error(), EnvPath) {
		t.Errorf("error %q should name the env var", err)
	}
}

func TestDiscoverFromCWD(t *testing.T) {
	dir := t.TempDir()
	makeTranscript(t, dir)
	t.Setenv(EnvPath, "")
	t.Chdir(dir)

	path, err := Discover()
	if err != nil {
		t.Fatalf("Discover from CWD: %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != ".threadview" {
		t.Errorf("expected path in .threadview/, got %q", path)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("expected absolute path, got %q", path)
	}
}

func TestDiscoverFromParentDir(t *testing.T) {
	dir := t.TempDir()
	want := makeTranscript(t, dir)

	childDir := filepath.Join(dir, "sub", "deep")
	if err := os.MkdirAll(childDir, 0o755); err != nil {
		t.Fatalf("MkdirAll child: %v", err)
	}
	t.Setenv(EnvPath, "")
	t.Chdir(childDir)

	path, err := Discover()
	if err != nil {
		t.Fatalf("Discover from parent: %v", err)
	}
	// Resolve symlinks for comparison (macOS /var -> /private/var).
	resolvedPath, _ := filepath.EvalSymlinks(path)
	resolvedExpect, _ := filepath.EvalSymlinks(want)
	if resolvedPath != resolvedExpect {
		t.Errorf("Discover() = %q, want %q", path, want)
	}
}

func TestDiscoverNoTranscript(t *testing.T) {
	t.Setenv(EnvPath, "")
	t.Chdir(t.TempDir())

	if _, err := Discover(); err == nil {
		t.Error("Discover should fail when no transcript exists")
	}
}

func TestLoad(t *testing.T) {
	path := makeTranscript(t, t.TempDir())

	snap, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", snap.SessionID)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/transcript.jsonl")
	if err == nil {
		t.Fatal("Load should fail for a missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}
