package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
security:
  failed_attempt_threshold: 3
  failed_attempt_window: 5
  command_timeout: 10
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `site: {id: "s"}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Security.FailedAttemptThreshold != 3 {
		t.Errorf("FailedAttemptThreshold = %d, want 3", cfg.Security.FailedAttemptThreshold)
	}
	if cfg.Security.AfterHoursStart != 22 || cfg.Security.AfterHoursEnd != 6 {
		t.Errorf("after-hours window = %d..%d, want 22..6",
			cfg.Security.AfterHoursStart, cfg.Security.AfterHoursEnd)
	}
	if cfg.MQTT.Broker.ClientID != "doorman-core" {
		t.Errorf("ClientID = %q, want doorman-core", cfg.MQTT.Broker.ClientID)
	}
	if got := cfg.GetCommandTimeout(); got != 10*time.Second {
		t.Errorf("GetCommandTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetFailedAttemptWindow(); got != 5*time.Minute {
		t.Errorf("GetFailedAttemptWindow() = %v, want 5m", got)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOORMAN_MQTT_HOST", "override.local")
	t.Setenv("DOORMAN_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load(writeConfig(t, `
site: {id: "s"}
mqtt:
  broker: {host: "file.local"}
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "override.local" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing site id", func(c *Config) { c.Site.ID = "" }},
		{"missing database path", func(c *Config) { c.Database.Path = "" }},
		{"invalid qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"zero threshold", func(c *Config) { c.Security.FailedAttemptThreshold = 0 }},
		{"zero window", func(c *Config) { c.Security.FailedAttemptWindow = 0 }},
		{"after hours start out of range", func(c *Config) { c.Security.AfterHoursStart = 24 }},
		{"pin bounds inverted", func(c *Config) { c.Security.PINMinLength = 8; c.Security.PINMaxLength = 4 }},
		{"pin too short", func(c *Config) { c.Security.PINMinLength = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}
