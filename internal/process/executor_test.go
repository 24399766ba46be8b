package process_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellforge/shellcore/internal/process"
)

func TestStartDeliversExitResult(t *testing.T) {
	exec := process.NewUnixExecutor()

	pid, wait, err := exec.Start(context.Background(), process.Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 0"},
	})
	require.NoError(t, err)
	require.Greater(t, pid, 0)

	select {
	case res := <-wait:
		assert.NoError(t, res.Error)
		assert.Equal(t, 0, res.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit result")
	}
}

func TestStartDeliversNonZeroExitCode(t *testing.T) {
	exec := process.NewUnixExecutor()

	_, wait, err := exec.Start(context.Background(), process.Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 7"},
	})
	require.NoError(t, err)

	select {
	case res := <-wait:
		assert.NoError(t, res.Error)
		assert.Equal(t, 7, res.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit result")
	}
}

func TestStopTerminatesRunningProcess(t *testing.T) {
	exec := process.NewUnixExecutor()

	pid, wait, err := exec.Start(context.Background(), process.Spec{
		Command: "/bin/sleep",
		Args:    []string{"30"},
	})
	require.NoError(t, err)

	require.NoError(t, exec.Stop(pid, 2*time.Second))

	select {
	case <-wait:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Stop")
	}
}

func TestStopUnknownPidFails(t *testing.T) {
	exec := process.NewUnixExecutor()
	err := exec.Stop(999999, time.Second)
	assert.ErrorIs(t, err, process.ErrNotFound)
}

// safeBuffer guards a bytes.Buffer so the pipe-draining goroutine and
// the test's read of the buffer's contents never race.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestStartCapturesStdoutAndStderr(t *testing.T) {
	exec := process.NewUnixExecutor()
	var stdout, stderr safeBuffer

	_, wait, err := exec.Start(context.Background(), process.Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo out-line; echo err-line 1>&2"},
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	require.NoError(t, err)

	select {
	case res := <-wait:
		assert.NoError(t, res.Error)
		assert.Equal(t, 0, res.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit result")
	}

	assert.Equal(t, "out-line\n", stdout.String())
	assert.Equal(t, "err-line\n", stderr.String())
}
