// Package metrics exports virtualization pass statistics in the Prometheus
// exposition format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daviddao/threadview/internal/virtualize"
)

const namespace = "threadview"

// Metrics holds the collectors of one process. Each instance owns a private
// registry, so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	passes    *prometheus.CounterVec
	duration  prometheus.Histogram
	unmounted prometheus.Counter
	restored  prometheus.Counter
	sessions  prometheus.Counter

	tracked   prometheus.Gauge
	mounted   prometheus.Gauge
	pinned    prometheus.Gauge
	streaming prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Virtualization passes run, by trigger.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Time spent in one virtualization pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		unmounted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmounted_total",
			Help:      "Messages replaced by placeholders.",
		}),
		restored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restored_total",
			Help:      "Placeholders swapped back for their messages.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions booted.",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_messages",
			Help:      "Messages tracked after the last pass.",
		}),
		mounted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mounted_messages",
			Help:      "Messages mounted after the last pass.",
		}),
		pinned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pinned_messages",
			Help:      "Messages pinned by the last pass.",
		}),
		streaming: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streaming",
			Help:      "1 while a reply is being generated.",
		}),
	}
	m.registry.MustRegister(
		m.passes, m.duration, m.unmounted, m.restored, m.sessions,
		m.tracked, m.mounted, m.pinned, m.streaming,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe records one pass. It has the signature of virtualize.Options.OnPass.
func (m *Metrics) Observe(r virtualize.PassResult) {
	m.passes.WithLabelValues(r.Reason).Inc()
	m.duration.Observe(r.Duration.Seconds())
	m.unmounted.Add(float64(r.Unmounted))
	m.restored.Add(float64(r.Restored))
	m.tracked.Set(float64(r.Stats.TotalTracked))
	m.mounted.Set(float64(r.Stats.MountedCount))
	m.pinned.Set(float64(r.Stats.PinnedCount))
	if r.Stats.IsStreaming {
		m.streaming.Set(1)
	} else {
		m.streaming.Set(0)
	}
}

// SessionBooted counts a new session.
func (m *Metrics) SessionBooted() { m.sessions.Inc() }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics: serving", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve: %w", err)
	}
	return nil
}
