package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellforge/shellcore/internal/fabric"
	"github.com/shellforge/shellcore/internal/metrics"
)

func TestHandlerServesRegisteredGauges(t *testing.T) {
	m := metrics.New()
	m.ServiceRestarts.WithLabelValues("ai-engine").Set(3)
	m.BufferOccupancy.Set(7)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shellcore_supervisor_restart_count")
	assert.Contains(t, rec.Body.String(), "shellcore_fabric_buffer_count")
}

func TestGaugesAreIndependentlyAddressable(t *testing.T) {
	m := metrics.New()
	m.ServiceRestarts.WithLabelValues("dsl-parser").Set(2)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ServiceRestarts.WithLabelValues("dsl-parser")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BufferOccupancy))
}

func TestObserveBufferStatsSetsAllThreeGauges(t *testing.T) {
	m := metrics.New()
	m.ObserveBufferStats(fabric.Stats{Count: 3, TotalSize: 4096, MeanAccessCount: 1.5})

	assert.Equal(t, float64(3), testutil.ToFloat64(m.BufferOccupancy))
	assert.Equal(t, float64(4096), testutil.ToFloat64(m.BufferTotalBytes))
	assert.Equal(t, float64(1.5), testutil.ToFloat64(m.BufferMeanAccess))
}

func TestWatchBufferStatsStopsOnContextCancel(t *testing.T) {
	m := metrics.New()
	store := fabric.NewStore(zerolog.Nop())
	defer store.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.WatchBufferStats(ctx, store)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchBufferStats did not return after context cancellation")
	}
}
