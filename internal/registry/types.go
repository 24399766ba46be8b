// Package registry holds the shared value objects for a registered
// service and the map that tracks their live state.
package registry

import (
	"github.com/google/uuid"
)

// RestartPolicy controls whether an observed exit triggers an automatic
// restart.
type RestartPolicy string

const (
	RestartNever      RestartPolicy = "never"
	RestartAlways     RestartPolicy = "always"
	RestartOnFailure  RestartPolicy = "on-failure"
)

// ServiceConfig is the immutable description of a worker process,
// recorded once at registration.
type ServiceConfig struct {
	// Name uniquely identifies the service within the registry.
	Name string
	// Command is the executable path.
	Command string
	// Args is the argument vector passed to the executable.
	Args []string
	// Port is the loopback port the worker binds, if any.
	Port *uint16
	// HealthEndpoint is the HTTP path probed for health, if any.
	HealthEndpoint string
	// StartupTimeoutSeconds bounds how long a spawn may take to settle.
	StartupTimeoutSeconds int
	// Restart is the declared restart policy.
	Restart RestartPolicy
	// Environment holds extra environment variables passed to the child.
	Environment map[string]string
}

// Status is a service's point in the supervisor's lifecycle state
// machine.
type Status string

const (
	StatusStopped    Status = "stopped"
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusFailed     Status = "failed"
	StatusRestarting Status = "restarting"
)

// ServiceState is the mutable record the registry tracks for a
// registered service.
//
// Invariants: Identity is assigned at registration and never changes;
// PID is non-nil iff Status is StatusRunning; StartTime is non-nil iff
// Status is StatusRunning or a successfully-respawned StatusRestarting;
// RestartCount only increases.
type ServiceState struct {
	Identity     uuid.UUID
	Config       ServiceConfig
	Status       Status
	PID          *int
	StartTime    *int64
	RestartCount int
	LastError    string
}

// Clone returns a value copy of the state, deep enough that the
// returned ServiceState shares no mutable pointer with the original.
func (s ServiceState) Clone() ServiceState {
	out := s
	if s.PID != nil {
		pid := *s.PID
		out.PID = &pid
	}
	if s.StartTime != nil {
		t := *s.StartTime
		out.StartTime = &t
	}
	if s.Config.Port != nil {
		p := *s.Config.Port
		out.Config.Port = &p
	}
	if s.Config.Args != nil {
		out.Config.Args = append([]string(nil), s.Config.Args...)
	}
	if s.Config.Environment != nil {
		env := make(map[string]string, len(s.Config.Environment))
		for k, v := range s.Config.Environment {
			env[k] = v
		}
		out.Config.Environment = env
	}
	return out
}
