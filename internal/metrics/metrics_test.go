package metrics_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/threadview/internal/metrics"
	"github.com/daviddao/threadview/internal/virtualize"
)

func TestObserve(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.Observe(virtualize.PassResult{
		Reason:    "scroll",
		Duration:  time.Millisecond,
		Unmounted: 7,
		Stats:     virtualize.StatsSnapshot{TotalTracked: 10, MountedCount: 3, PinnedCount: 3, IsStreaming: true},
	})
	m.Observe(virtualize.PassResult{
		Reason:   "scroll",
		Restored: 2,
		Stats:    virtualize.StatsSnapshot{TotalTracked: 10, MountedCount: 5},
	})
	m.SessionBooted()

	reg := m.Registry()
	n, err := testutil.GatherAndCount(reg, "threadview_passes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one series per reason")

	metricsFamilies, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range metricsFamilies {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), values["threadview_passes_total"])
	assert.Equal(t, float64(7), values["threadview_unmounted_total"])
	assert.Equal(t, float64(2), values["threadview_restored_total"])
	assert.Equal(t, float64(1), values["threadview_sessions_total"])
	assert.Equal(t, float64(5), values["threadview_mounted_messages"])
	assert.Equal(t, float64(0), values["threadview_pinned_messages"])
	assert.Equal(t, float64(0), values["threadview_streaming"])
}

func TestHandlerServesMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.Observe(virtualize.PassResult{Reason: "boot"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), `threadview_passes_total{reason="boot"} 1`)
}

func TestServeStopsWithContext(t *testing.T) {
	t.Parallel()

	// Reserve a free port.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- metrics.New().Serve(ctx, addr, discardLogger()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeBadAddr(t *testing.T) {
	t.Parallel()

	err := metrics.New().Serve(context.Background(), "not-an-addr", discardLogger())
	assert.ErrorContains(t, err, "metrics: listen")
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }
