package main

import (
	"testing"

	"github.com/daviddao/threadview/internal/transcript"
)

func TestSmokeTranscript(t *testing.T) {
	path, err := transcript.Discover()
	if err != nil {
		t.Skipf("no transcript available: %v", err)
	}
	t.Logf("loading %s", path)

	snap, err := transcript.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	t.Logf("transcript: %d messages, %d skipped lines, streaming=%v",
		len(snap.Messages), snap.Skipped, snap.Streaming)

	out, err := runOnce(snap, testConfig(), 100, 40, discardLogger)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	t.Logf("stats: %+v", out.Stats)
}
