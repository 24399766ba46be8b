// Package health probes each registered service's HTTP health endpoint
// on a fixed period and keeps a bounded per-service history of the
// results.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/shellforge/shellcore/internal/registry"
)

// ProbeTimeout bounds a single HTTP probe.
const ProbeTimeout = 5 * time.Second

// Interval is the period between monitoring loop ticks.
const Interval = 30 * time.Second

// HistoryCap bounds the number of results kept per service; the
// oldest is evicted first.
const HistoryCap = 100

// Result is one probe or fallback outcome.
type Result struct {
	Identity  uuid.UUID
	Healthy   bool
	LatencyMS *int64
	Error     string
	Timestamp int64
}

// Monitor periodically probes every registered service and records
// bounded history per service.
type Monitor struct {
	reg    *registry.Registry
	client *http.Client
	log    zerolog.Logger

	mu      sync.RWMutex
	history map[string][]Result

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	statusGauge  *prometheus.GaugeVec
	latencyGauge *prometheus.GaugeVec
}

// NewMonitor creates a Monitor over reg. metrics may be nil, in which
// case no gauges are registered.
func NewMonitor(reg *registry.Registry, log zerolog.Logger, metrics *prometheus.Registry) *Monitor {
	m := &Monitor{
		reg:     reg,
		client:  &http.Client{Timeout: ProbeTimeout},
		log:     log,
		history: make(map[string][]Result),
	}

	if metrics != nil {
		m.statusGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shellcore",
			Subsystem: "health",
			Name:      "service_healthy",
			Help:      "1 if the last health check for a service was healthy, 0 otherwise.",
		}, []string{"service"})
		m.latencyGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shellcore",
			Subsystem: "health",
			Name:      "probe_latency_ms",
			Help:      "Latency of the last completed HTTP health probe, in milliseconds.",
		}, []string{"service"})
		metrics.MustRegister(m.statusGauge, m.latencyGauge)
	}

	return m
}

// Check probes a single service by name. If the service is Failed or
// Stopped, the probe is skipped and the result is unhealthy. If the
// config carries no port or endpoint, the result is a healthy
// process-presence fallback with no latency.
func (m *Monitor) Check(ctx context.Context, name string) (Result, error) {
	st, err := m.reg.Get(name)
	if err != nil {
		return Result{}, err
	}

	now := time.Now().Unix()
	id := st.Identity

	if st.Status == registry.StatusFailed || st.Status == registry.StatusStopped {
		return Result{Identity: id, Healthy: false, Error: "Service is not running", Timestamp: now}, nil
	}

	if st.Config.Port == nil || st.Config.HealthEndpoint == "" {
		return Result{Identity: id, Healthy: true, Timestamp: now}, nil
	}

	url := fmt.Sprintf("http://localhost:%d%s", *st.Config.Port, st.Config.HealthEndpoint)

	probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Identity: id, Healthy: false, Error: err.Error(), Timestamp: now}, nil
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Result{Identity: id, Healthy: false, Error: err.Error(), Timestamp: now}, nil
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	result := Result{Identity: id, Healthy: healthy, LatencyMS: &latency, Timestamp: now}
	if !healthy {
		result.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	}
	return result, nil
}

// CheckAll probes every registered service. A per-service error is
// recorded as an unhealthy result rather than aborting the batch, then
// appended to that service's bounded history.
func (m *Monitor) CheckAll(ctx context.Context) map[string]Result {
	services := m.reg.List()
	out := make(map[string]Result, len(services))

	for name := range services {
		result, err := m.Check(ctx, name)
		if err != nil {
			result = Result{Healthy: false, Error: err.Error(), Timestamp: time.Now().Unix()}
		}
		out[name] = result
		m.record(name, result)
	}
	return out
}

// record appends result to name's bounded history and updates the
// observability gauges.
func (m *Monitor) record(name string, result Result) {
	m.mu.Lock()
	hist := append(m.history[name], result)
	if len(hist) > HistoryCap {
		hist = hist[len(hist)-HistoryCap:]
	}
	m.history[name] = hist
	m.mu.Unlock()

	if m.statusGauge != nil {
		v := 0.0
		if result.Healthy {
			v = 1.0
		}
		m.statusGauge.WithLabelValues(name).Set(v)
		if result.LatencyMS != nil {
			m.latencyGauge.WithLabelValues(name).Set(float64(*result.LatencyMS))
		}
	}
}

// History returns a snapshot of a service's recorded results, oldest
// first.
func (m *Monitor) History(name string) []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.history[name]
	out := make([]Result, len(hist))
	copy(out, hist)
	return out
}

// Start begins the 30-second monitoring loop. Calling Start while
// already running is idempotent and never spawns a second loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
}

// loop runs CheckAll every Interval until Stop is called or ctx is
// cancelled. The current tick always completes before the loop exits.
func (m *Monitor) loop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// Stop signals the monitoring loop to exit; the loop observes this on
// its next wake and exits after its current tick completes.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()
}
