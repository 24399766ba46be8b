// Package metrics aggregates the process's Prometheus registry and the
// gauges that don't belong to a single component (restart counts,
// shared-buffer occupancy), and exposes the combined /metrics handler.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shellforge/shellcore/internal/fabric"
)

// BufferStatsInterval is the period between shared-buffer occupancy
// samples.
const BufferStatsInterval = 15 * time.Second

// Metrics owns the process-wide registry plus the supervisor- and
// fabric-level gauges that sit above any single component.
type Metrics struct {
	Registry *prometheus.Registry

	ServiceRestarts  *prometheus.GaugeVec
	BufferOccupancy  prometheus.Gauge
	BufferTotalBytes prometheus.Gauge
	BufferMeanAccess prometheus.Gauge
}

// New creates a fresh registry, registers the Go/process collectors the
// pack's own daemon repos expose alongside domain gauges, and returns
// the bundle ready to hand to health.NewMonitor and the supervisor.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		ServiceRestarts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shellcore_supervisor_restart_count",
			Help: "Cumulative restart count per supervised service.",
		}, []string{"service"}),
		BufferOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shellcore_fabric_buffer_count",
			Help: "Current number of live shared buffer blocks.",
		}),
		BufferTotalBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shellcore_fabric_buffer_bytes",
			Help: "Current total bytes held across live shared buffer blocks.",
		}),
		BufferMeanAccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shellcore_fabric_buffer_mean_access_count",
			Help: "Mean access count across live shared buffer blocks.",
		}),
	}

	registry.MustRegister(
		m.ServiceRestarts,
		m.BufferOccupancy,
		m.BufferTotalBytes,
		m.BufferMeanAccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler serving this registry's exposition.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveBufferStats copies a single shared-buffer store snapshot onto
// the buffer occupancy gauges.
func (m *Metrics) ObserveBufferStats(s fabric.Stats) {
	m.BufferOccupancy.Set(float64(s.Count))
	m.BufferTotalBytes.Set(float64(s.TotalSize))
	m.BufferMeanAccess.Set(s.MeanAccessCount)
}

// WatchBufferStats samples store on BufferStatsInterval until ctx is
// cancelled, keeping the occupancy gauges current without the store
// itself depending on Prometheus.
func (m *Metrics) WatchBufferStats(ctx context.Context, store *fabric.Store) {
	ticker := time.NewTicker(BufferStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ObserveBufferStats(store.Stats())
		}
	}
}
