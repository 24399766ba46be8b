// Package config loads and validates the supervisor's YAML configuration.
package config

import (
	"time"

	"github.com/shellforge/shellcore/internal/registry"
)

// Config is the root configuration structure.
type Config struct {
	Version    string          `yaml:"version"`
	Logging    LoggingConfig   `yaml:"logging"`
	Services   []ServiceConfig `yaml:"services" validate:"dive"`
	ConfigPath string          `yaml:"-"`
}

// LoggingConfig defines global logging defaults for service-output
// capture.
type LoggingConfig struct {
	Defaults LogDefaults `yaml:"defaults"`
	BaseDir  string      `yaml:"base_dir" validate:"required"`
}

// LogDefaults defines default logging settings.
type LogDefaults struct {
	TimestampFormat string         `yaml:"timestamp_format"`
	Rotation        RotationConfig `yaml:"rotation"`
}

// RotationConfig defines log rotation settings for captured service
// output.
type RotationConfig struct {
	MaxSize  string `yaml:"max_size"`
	MaxFiles int    `yaml:"max_files" validate:"min=0"`
}

// ServiceConfig is the YAML-facing shape of a registered worker. It
// mirrors registry.ServiceConfig field for field (port, health
// endpoint, startup timeout, restart policy) plus the logging
// overrides that are purely an ambient, non-spec concern.
type ServiceConfig struct {
	Name                  string            `yaml:"name" validate:"required"`
	Command               string            `yaml:"command" validate:"required"`
	Args                  []string          `yaml:"args,omitempty"`
	Port                  *uint16           `yaml:"port,omitempty"`
	HealthEndpoint        string            `yaml:"health_endpoint,omitempty"`
	StartupTimeoutSeconds int               `yaml:"startup_timeout_seconds,omitempty" validate:"min=0"`
	Restart               RestartPolicy     `yaml:"restart" validate:"oneof=always on-failure never ''"`
	Environment           map[string]string `yaml:"environment,omitempty"`
	Logging               ServiceLogging    `yaml:"logging,omitempty"`
}

// RestartPolicy mirrors registry.RestartPolicy for YAML decoding.
type RestartPolicy = registry.RestartPolicy

const (
	RestartAlways    = registry.RestartAlways
	RestartOnFailure = registry.RestartOnFailure
	RestartNever     = registry.RestartNever
)

// ServiceLogging defines per-service output capture configuration.
type ServiceLogging struct {
	Stdout LogStreamConfig `yaml:"stdout,omitempty"`
	Stderr LogStreamConfig `yaml:"stderr,omitempty"`
}

// LogStreamConfig defines configuration for a captured output stream.
type LogStreamConfig struct {
	File            string         `yaml:"file,omitempty"`
	TimestampFormat string         `yaml:"timestamp_format,omitempty"`
	Rotation        RotationConfig `yaml:"rotation,omitempty"`
}

// Duration is a wrapper around time.Duration that marshals to and from
// a Go duration string in YAML (e.g. "30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ToRegistry converts the YAML-facing shape into the registry's
// ServiceConfig value object.
func (s ServiceConfig) ToRegistry() registry.ServiceConfig {
	return registry.ServiceConfig{
		Name:                  s.Name,
		Command:               s.Command,
		Args:                  s.Args,
		Port:                  s.Port,
		HealthEndpoint:        s.HealthEndpoint,
		StartupTimeoutSeconds: s.StartupTimeoutSeconds,
		Restart:               s.Restart,
		Environment:           s.Environment,
	}
}
