package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultDeployment is the service set registered at startup when no
// configuration file overrides it.
func DefaultDeployment() []ServiceConfig {
	port := func(p uint16) *uint16 { return &p }
	return []ServiceConfig{
		{
			Name:                  "ai-engine",
			Command:               "python3",
			Args:                  []string{"-m", "uvicorn", "main:app", "--reload"},
			Port:                  port(8000),
			HealthEndpoint:        "/health",
			StartupTimeoutSeconds: 30,
			Restart:               RestartAlways,
		},
		{
			Name:                  "dsl-parser",
			Command:               "dsl-parser",
			Args:                  []string{"--server"},
			Port:                  port(8001),
			HealthEndpoint:        "/health",
			StartupTimeoutSeconds: 10,
			Restart:               RestartAlways,
		},
		{
			Name:                  "graph-engine",
			Command:               "./main",
			Args:                  []string{"--port", "8002"},
			Port:                  port(8002),
			HealthEndpoint:        "/health",
			StartupTimeoutSeconds: 15,
			Restart:               RestartAlways,
		},
		{
			Name:                  "event-processor",
			Command:               "elixir",
			Args:                  []string{"-S", "mix", "phx.server"},
			Port:                  port(8003),
			HealthEndpoint:        "/health",
			StartupTimeoutSeconds: 20,
			Restart:               RestartAlways,
		},
	}
}

// Load reads and parses a configuration file from the given path. A
// missing file is not an error: the default deployment is used as-is.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{Services: DefaultDeployment()}
		applyDefaults(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := &Config{Services: DefaultDeployment()}
		applyDefaults(cfg)
		cfg.ConfigPath = path
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.ConfigPath = path
	return cfg, nil
}

// Parse parses configuration from YAML bytes. A file with no services
// declared falls back to the default deployment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	if len(cfg.Services) == 0 {
		cfg.Services = DefaultDeployment()
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unset configuration options.
func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.Logging.BaseDir == "" {
		cfg.Logging.BaseDir = "/var/log/shellcore"
	}
	if cfg.Logging.Defaults.TimestampFormat == "" {
		cfg.Logging.Defaults.TimestampFormat = "iso8601"
	}
	if cfg.Logging.Defaults.Rotation.MaxSize == "" {
		cfg.Logging.Defaults.Rotation.MaxSize = "100MB"
	}
	if cfg.Logging.Defaults.Rotation.MaxFiles == 0 {
		cfg.Logging.Defaults.Rotation.MaxFiles = 10
	}

	for i := range cfg.Services {
		applyServiceDefaults(&cfg.Services[i], &cfg.Logging)
	}
}

// applyServiceDefaults applies default values to a service configuration.
func applyServiceDefaults(svc *ServiceConfig, logging *LoggingConfig) {
	if svc.Restart == "" {
		svc.Restart = RestartOnFailure
	}

	if svc.Logging.Stdout.File == "" {
		svc.Logging.Stdout.File = svc.Name + ".out.log"
	}
	if svc.Logging.Stderr.File == "" {
		svc.Logging.Stderr.File = svc.Name + ".err.log"
	}
	if svc.Logging.Stdout.TimestampFormat == "" {
		svc.Logging.Stdout.TimestampFormat = logging.Defaults.TimestampFormat
	}
	if svc.Logging.Stderr.TimestampFormat == "" {
		svc.Logging.Stderr.TimestampFormat = logging.Defaults.TimestampFormat
	}
	if svc.Logging.Stdout.Rotation.MaxSize == "" {
		svc.Logging.Stdout.Rotation = logging.Defaults.Rotation
	}
	if svc.Logging.Stderr.Rotation.MaxSize == "" {
		svc.Logging.Stderr.Rotation = logging.Defaults.Rotation
	}
}

// GetServiceLogPath returns the full path for a service log file.
func (c *Config) GetServiceLogPath(serviceName, logFile string) string {
	return filepath.Join(c.Logging.BaseDir, serviceName, logFile)
}

// FindService returns a service configuration by name.
func (c *Config) FindService(name string) *ServiceConfig {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i]
		}
	}
	return nil
}

// ParseSize parses a size string like "100MB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"G", 1024 * 1024 * 1024},
		{"M", 1024 * 1024},
		{"K", 1024},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSuffix(s, sf.suffix)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size: %s", s)
			}
			return num * sf.mult, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %s", s)
	}
	return num, nil
}
