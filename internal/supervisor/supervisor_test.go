package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellforge/shellcore/internal/process"
	"github.com/shellforge/shellcore/internal/registry"
	"github.com/shellforge/shellcore/internal/supervisor"
)

func newTestSupervisor() *supervisor.Supervisor {
	return supervisor.New(process.NewUnixExecutor(), zerolog.Nop())
}

func TestRegisterThenStartThenStop(t *testing.T) {
	sup := newTestSupervisor()

	_, err := sup.Register(registry.ServiceConfig{
		Name:    "x",
		Command: "/bin/sleep",
		Args:    []string{"5"},
		Restart: registry.RestartNever,
	})
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), "x")
	require.NoError(t, err)

	st, err := sup.Get("x")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusRunning, st.Status)
	require.NotNil(t, st.PID)

	require.NoError(t, sup.Stop("x"))

	st, err = sup.Get("x")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusStopped, st.Status)
	assert.Nil(t, st.PID)
}

func TestStartUnknownServiceFails(t *testing.T) {
	sup := newTestSupervisor()
	_, err := sup.Start(context.Background(), "ghost")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestSpawnFailureTransitionsToFailed(t *testing.T) {
	sup := newTestSupervisor()

	_, err := sup.Register(registry.ServiceConfig{
		Name:    "bad",
		Command: "/does/not/exist",
		Restart: registry.RestartNever,
	})
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), "bad")
	assert.Error(t, err)

	st, err := sup.Get("bad")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusFailed, st.Status)
	assert.NotEmpty(t, st.LastError)
}

func TestCrashWithRestartNeverStaysFailed(t *testing.T) {
	sup := newTestSupervisor()

	_, err := sup.Register(registry.ServiceConfig{
		Name:    "crasher",
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 1"},
		Restart: registry.RestartNever,
	})
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), "crasher")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := sup.Get("crasher")
		return err == nil && st.Status == registry.StatusFailed
	}, 5*time.Second, 50*time.Millisecond)

	st, err := sup.Get("crasher")
	require.NoError(t, err)
	assert.Equal(t, 0, st.RestartCount)
}

func TestCrashWithRestartAlwaysRestarts(t *testing.T) {
	sup := newTestSupervisor()

	_, err := sup.Register(registry.ServiceConfig{
		Name:    "flappy",
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 0"},
		Restart: registry.RestartAlways,
	})
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), "flappy")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := sup.Get("flappy")
		return err == nil && st.RestartCount >= 1
	}, 6*time.Second, 50*time.Millisecond)
}

func TestRestartCountMonotonic(t *testing.T) {
	sup := newTestSupervisor()

	_, err := sup.Register(registry.ServiceConfig{
		Name:    "x",
		Command: "/bin/sleep",
		Args:    []string{"5"},
		Restart: registry.RestartNever,
	})
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), "x")
	require.NoError(t, err)

	_, err = sup.Restart(context.Background(), "x")
	require.NoError(t, err)

	st, err := sup.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 1, st.RestartCount)

	require.NoError(t, sup.Stop("x"))
}

func TestRestartGaugeMirrorsRestartCount(t *testing.T) {
	sup := newTestSupervisor()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_restart_count"}, []string{"service"})
	sup.SetRestartGauge(gauge)

	_, err := sup.Register(registry.ServiceConfig{
		Name:    "x",
		Command: "/bin/sleep",
		Args:    []string{"5"},
		Restart: registry.RestartNever,
	})
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), "x")
	require.NoError(t, err)

	_, err = sup.Restart(context.Background(), "x")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(gauge.WithLabelValues("x")))

	require.NoError(t, sup.Stop("x"))
}
