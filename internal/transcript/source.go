// Package transcript discovers, parses, and watches the JSONL conversation
// transcript a threadview window follows.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultFile = ".threadview/transcript.jsonl"

	// EnvPath overrides discovery.
	EnvPath = "THREADVIEW_TRANSCRIPT"
)

// Discover finds the transcript path.
// Priority: THREADVIEW_TRANSCRIPT env var > .threadview/transcript.jsonl in CWD > walk up parents.
// The env var may name a sessions directory, in which case the most recently
// written transcript in it is followed.
func Discover() (string, error) {
	if env := os.Getenv(EnvPath); env != "" {
		info, err := os.Stat(env)
		if err != nil {
			return "", fmt.Errorf("%s=%q: %w", EnvPath, env, os.ErrNotExist)
		}
		if info.IsDir() {
			return Latest(env)
		}
		return env, nil
	}

	// Check CWD first.
	if _, err := os.Stat(defaultFile); err == nil {
		abs, err := filepath.Abs(defaultFile)
		if err != nil {
			return "", fmt.Errorf("resolve absolute path for %s: %w", defaultFile, err)
		}
		return abs, nil
	}

	// Walk up parent directories.
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, defaultFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no transcript found (looked for %s)", defaultFile)
}

// Latest returns the most recently modified *.jsonl file in dir.
func Latest(dir string) (string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return "", fmt.Errorf("glob transcripts in %s: %w", dir, err)
	}
	var (
		latest  string
		updated time.Time
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if latest == "" || info.ModTime().After(updated) {
			latest, updated = path, info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no transcripts in %s: %w", dir, os.ErrNotExist)
	}
	return latest, nil
}

// Load reads and parses the transcript at path.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	snap, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return snap, nil
}
