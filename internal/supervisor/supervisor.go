// Package supervisor implements the process lifecycle state machine:
// register, start, stop, restart, get, list, plus the crash-detection
// and restart-policy enforcement the spec defers to an open question.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shellforge/shellcore/internal/process"
	"github.com/shellforge/shellcore/internal/registry"
)

// RestartDelay is the fixed, non-configurable wait between stop and
// start in a manual restart, and the delay before a crash-triggered
// restart is attempted.
const RestartDelay = 2 * time.Second

// children tracks the live pid for each running service, under its own
// lock. Lock order when both are needed: registry first, then this.
type children struct {
	mu  sync.Mutex
	pid map[string]int
}

func newChildren() *children {
	return &children{pid: make(map[string]int)}
}

func (c *children) set(name string, pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pid[name] = pid
}

func (c *children) get(name string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pid, ok := c.pid[name]
	return pid, ok
}

func (c *children) clear(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pid, name)
}

// Supervisor owns the service registry and drives each service through
// the lifecycle state machine in spec terms: Stopped -> Starting ->
// Running, Running -> Stopped, Failed -> Starting, and the
// restart-composite Any -> Restarting -> Starting.
type Supervisor struct {
	registry *registry.Registry
	executor process.Executor
	log      zerolog.Logger

	children     *children
	restartGauge *prometheus.GaugeVec
	outputsFor   func(name string) (stdout, stderr io.Writer)
}

// New creates a Supervisor over an empty registry.
func New(executor process.Executor, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		registry: registry.New(),
		executor: executor,
		log:      log,
		children: newChildren(),
	}
}

// SetRestartGauge wires a restart-count gauge vector (labeled by
// service name) that every crash-triggered or manual restart updates.
// Passing nil (the default) disables this observability hook.
func (s *Supervisor) SetRestartGauge(g *prometheus.GaugeVec) {
	s.restartGauge = g
}

// SetOutputCapture wires a resolver that supplies per-service stdout
// and stderr destinations; Start queries it fresh on every spawn so a
// capture's lifecycle can track the service's own restarts. Passing
// nil (the default) leaves output capture off.
func (s *Supervisor) SetOutputCapture(outputsFor func(name string) (stdout, stderr io.Writer)) {
	s.outputsFor = outputsFor
}

// Register inserts cfg into the registry with a fresh identity and
// status Stopped.
func (s *Supervisor) Register(cfg registry.ServiceConfig) (uuid.UUID, error) {
	return s.registry.Register(cfg)
}

// RegisterAll registers every cfg, stopping at the first failure.
func (s *Supervisor) RegisterAll(cfgs []registry.ServiceConfig) error {
	for _, cfg := range cfgs {
		if _, err := s.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a snapshot of one service's state.
func (s *Supervisor) Get(name string) (registry.ServiceState, error) {
	return s.registry.Get(name)
}

// Registry exposes the underlying service registry for callers (the
// health monitor, the command façade) that operate on it directly.
func (s *Supervisor) Registry() *registry.Registry {
	return s.registry
}

// List returns a snapshot of every registered service.
func (s *Supervisor) List() map[string]registry.ServiceState {
	return s.registry.List()
}

// Start atomically transitions Stopped|Failed|Restarting -> Starting
// (any other status is rejected with an error), spawns the child, and
// on success transitions Starting -> Running. On spawn failure it
// records the error and transitions to Failed.
func (s *Supervisor) Start(ctx context.Context, name string) (uuid.UUID, error) {
	st, err := s.registry.Get(name)
	if err != nil {
		return uuid.Nil, err
	}

	var stateErr error
	if err := s.registry.Mutate(name, func(st *registry.ServiceState) {
		switch st.Status {
		case registry.StatusStopped, registry.StatusFailed, registry.StatusRestarting:
			st.Status = registry.StatusStarting
		default:
			stateErr = fmt.Errorf("starting %s: service is %s", name, st.Status)
		}
	}); err != nil {
		return uuid.Nil, err
	}
	if stateErr != nil {
		return uuid.Nil, stateErr
	}

	spec := specFor(st.Config)
	if s.outputsFor != nil {
		spec.Stdout, spec.Stderr = s.outputsFor(name)
	}

	pid, wait, spawnErr := s.executor.Start(ctx, spec)
	if spawnErr != nil {
		s.registry.Mutate(name, func(st *registry.ServiceState) {
			st.Status = registry.StatusFailed
			st.LastError = spawnErr.Error()
		})
		s.log.Error().Str("service", name).Err(spawnErr).Msg("spawn failed")
		return uuid.Nil, fmt.Errorf("starting %s: %w", name, spawnErr)
	}

	now := time.Now().Unix()
	s.children.set(name, pid)
	if err := s.registry.Mutate(name, func(st *registry.ServiceState) {
		st.PID = &pid
		st.StartTime = &now
		st.Status = registry.StatusRunning
		st.LastError = ""
	}); err != nil {
		return uuid.Nil, err
	}

	go s.reap(name, wait)

	return st.Identity, nil
}

// reap blocks on a child's exit channel and applies the restart-policy
// decision spec.md §9 licenses: Always restarts unconditionally,
// OnFailure restarts only on non-zero exit, Never leaves the service
// Failed (or Stopped, for a clean exit).
func (s *Supervisor) reap(name string, wait <-chan process.ExitResult) {
	result, ok := <-wait
	if !ok {
		return
	}

	s.children.clear(name)

	st, err := s.registry.Get(name)
	if err != nil {
		return
	}
	// A manual Stop already transitioned this service away from Running
	// and cleared its tracked pid; nothing to reap against.
	if st.Status != registry.StatusRunning {
		return
	}

	crashed := result.Error != nil || result.Code != 0

	restart := false
	switch st.Config.Restart {
	case registry.RestartAlways:
		restart = true
	case registry.RestartOnFailure:
		restart = crashed
	case registry.RestartNever:
		restart = false
	}

	s.registry.Mutate(name, func(st *registry.ServiceState) {
		st.PID = nil
		st.StartTime = nil
		if crashed {
			st.Status = registry.StatusFailed
			if result.Error != nil {
				st.LastError = result.Error.Error()
			} else {
				st.LastError = fmt.Sprintf("exited with code %d", result.Code)
			}
		} else {
			st.Status = registry.StatusStopped
		}
	})

	s.log.Info().Str("service", name).Bool("crashed", crashed).Bool("restart", restart).Msg("child exited")

	if !restart {
		return
	}

	s.registry.Mutate(name, func(st *registry.ServiceState) {
		st.Status = registry.StatusRestarting
	})
	time.Sleep(RestartDelay)
	s.bumpRestartCount(name)
	if _, err := s.Start(context.Background(), name); err != nil {
		s.log.Error().Str("service", name).Err(err).Msg("crash-triggered restart failed")
	}
}

// bumpRestartCount increments the registry's restart counter and, if a
// gauge is wired, mirrors the new count to it.
func (s *Supervisor) bumpRestartCount(name string) {
	var count int
	s.registry.Mutate(name, func(st *registry.ServiceState) {
		st.RestartCount++
		count = st.RestartCount
	})
	if s.restartGauge != nil {
		s.restartGauge.WithLabelValues(name).Set(float64(count))
	}
}

// Stop sends a kill to any tracked child and transitions to Stopped. A
// missing child is not an error.
func (s *Supervisor) Stop(name string) error {
	// Transition before signalling, so that reap sees a non-Running
	// status when the child exits and does not treat it as a crash.
	if err := s.registry.Mutate(name, func(st *registry.ServiceState) {
		st.PID = nil
		st.StartTime = nil
		st.Status = registry.StatusStopped
	}); err != nil {
		return err
	}

	pid, ok := s.children.get(name)
	if ok {
		if err := s.executor.Stop(pid, 10*time.Second); err != nil {
			return fmt.Errorf("stopping %s: %w", name, err)
		}
		s.children.clear(name)
	}
	return nil
}

// Restart stops the service, waits the fixed RestartDelay, increments
// the restart count, and starts it again.
func (s *Supervisor) Restart(ctx context.Context, name string) (uuid.UUID, error) {
	if err := s.Stop(name); err != nil {
		return uuid.Nil, err
	}
	time.Sleep(RestartDelay)
	s.bumpRestartCount(name)
	return s.Start(ctx, name)
}

// StartAll starts every registered service concurrently, returning the
// first error encountered while leaving already-started services
// running.
func (s *Supervisor) StartAll(ctx context.Context) error {
	g := new(errgroup.Group)
	for name := range s.registry.List() {
		name := name
		g.Go(func() error {
			_, err := s.Start(ctx, name)
			return err
		})
	}
	return g.Wait()
}

// StopAll stops every registered service concurrently.
func (s *Supervisor) StopAll() error {
	g := new(errgroup.Group)
	for name := range s.registry.List() {
		name := name
		g.Go(func() error {
			return s.Stop(name)
		})
	}
	return g.Wait()
}

func specFor(cfg registry.ServiceConfig) process.Spec {
	env := make([]string, 0, len(cfg.Environment)+1)
	for k, v := range cfg.Environment {
		env = append(env, k+"="+v)
	}
	if cfg.Port != nil {
		env = append(env, fmt.Sprintf("PORT=%d", *cfg.Port))
	}
	return process.Spec{
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     env,
	}
}
