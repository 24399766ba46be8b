package config

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "valid minimal config",
			yaml: `
version: "1"
services:
  - name: nginx
    command: /usr/sbin/nginx
    port: 8080
    health_endpoint: /health
`,
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.Services) != 1 {
					t.Errorf("expected 1 service, got %d", len(cfg.Services))
				}
				if cfg.Services[0].Name != "nginx" {
					t.Errorf("expected service name 'nginx', got '%s'", cfg.Services[0].Name)
				}
			},
		},
		{
			name: "applies defaults",
			yaml: `
services:
  - name: app
    command: /bin/app
`,
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				svc := &cfg.Services[0]
				if svc.Restart != RestartOnFailure {
					t.Errorf("expected default restart policy 'on-failure', got '%s'", svc.Restart)
				}
				if cfg.Logging.BaseDir != "/var/log/shellcore" {
					t.Errorf("expected default base_dir '/var/log/shellcore', got '%s'", cfg.Logging.BaseDir)
				}
			},
		},
		{
			name: "empty services falls back to default deployment",
			yaml: `
version: "1"
services: []
`,
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.Services) != len(DefaultDeployment()) {
					t.Errorf("expected default deployment of %d services, got %d", len(DefaultDeployment()), len(cfg.Services))
				}
			},
		},
		{
			name: "invalid - missing service name",
			yaml: `
services:
  - command: /bin/app
`,
			wantErr: true,
		},
		{
			name: "invalid - missing command",
			yaml: `
services:
  - name: app
`,
			wantErr: true,
		},
		{
			name: "invalid - health endpoint without port",
			yaml: `
services:
  - name: app
    command: /bin/app
    health_endpoint: /health
`,
			wantErr: true,
		},
		{
			name: "invalid - duplicate service names",
			yaml: `
services:
  - name: app
    command: /bin/app
  - name: app
    command: /bin/app2
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"5s", 5 * time.Second, false},
		{"10m", 10 * time.Minute, false},
		{"1h", 1 * time.Hour, false},
		{"500ms", 500 * time.Millisecond, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalYAML(func(v interface{}) error {
				*(v.(*string)) = tt.input
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalYAML() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && d.Duration() != tt.expected {
				t.Errorf("UnmarshalYAML() = %v, want %v", d.Duration(), tt.expected)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"100", 100, false},
		{"100B", 100, false},
		{"1KB", 1024, false},
		{"1K", 1024, false},
		{"10MB", 10 * 1024 * 1024, false},
		{"10M", 10 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSize() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && result != tt.expected {
				t.Errorf("ParseSize() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestDefaultDeploymentMatchesExternalInterface(t *testing.T) {
	deployment := DefaultDeployment()
	want := map[string]uint16{
		"ai-engine":       8000,
		"dsl-parser":      8001,
		"graph-engine":    8002,
		"event-processor": 8003,
	}
	if len(deployment) != len(want) {
		t.Fatalf("expected %d default services, got %d", len(want), len(deployment))
	}
	for _, svc := range deployment {
		port, ok := want[svc.Name]
		if !ok {
			t.Errorf("unexpected default service %q", svc.Name)
			continue
		}
		if svc.Port == nil || *svc.Port != port {
			t.Errorf("service %q: expected port %d, got %v", svc.Name, port, svc.Port)
		}
		if svc.HealthEndpoint != "/health" {
			t.Errorf("service %q: expected health endpoint /health, got %q", svc.Name, svc.HealthEndpoint)
		}
		if svc.Restart != RestartAlways {
			t.Errorf("service %q: expected restart policy always, got %q", svc.Name, svc.Restart)
		}
	}
}
