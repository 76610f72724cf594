package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Doorman Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// access-event time series.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains access-control policy settings.
type SecurityConfig struct {
	// FailedAttemptThreshold is the number of denied attempts on one door
	// within FailedAttemptWindow that raises a security alert.
	FailedAttemptThreshold int `yaml:"failed_attempt_threshold"`

	// FailedAttemptWindow is the trailing window for failed-attempt
	// counting, in minutes.
	FailedAttemptWindow int `yaml:"failed_attempt_window"`

	// AfterHoursStart is the local hour after which successful access
	// raises an after-hours alert. Example: 22 flags any success from
	// 23:00 onwards.
	AfterHoursStart int `yaml:"after_hours_start"`

	// AfterHoursEnd is the local hour before which successful access
	// raises an after-hours alert. Example: 6 flags any success before
	// 06:00.
	AfterHoursEnd int `yaml:"after_hours_end"`

	// CommandTimeout is the deadline for controller command responses,
	// in seconds.
	CommandTimeout int `yaml:"command_timeout"`

	// PIN length bounds for generated and accepted credentials.
	PINMinLength int `yaml:"pin_min_length"`
	PINMaxLength int `yaml:"pin_max_length"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DOORMAN_SECTION_KEY
// For example: DOORMAN_DATABASE_PATH, DOORMAN_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Doorman",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/doorman.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "doorman-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			FailedAttemptThreshold: 3,
			FailedAttemptWindow:    5,
			AfterHoursStart:        22,
			AfterHoursEnd:          6,
			CommandTimeout:         10,
			PINMinLength:           4,
			PINMaxLength:           8,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DOORMAN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("DOORMAN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DOORMAN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DOORMAN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DOORMAN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("DOORMAN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Security.FailedAttemptThreshold < 1 {
		errs = append(errs, "security.failed_attempt_threshold must be at least 1")
	}
	if c.Security.FailedAttemptWindow < 1 {
		errs = append(errs, "security.failed_attempt_window must be at least 1 minute")
	}
	if c.Security.AfterHoursStart < 0 || c.Security.AfterHoursStart > 23 {
		errs = append(errs, "security.after_hours_start must be between 0 and 23")
	}
	if c.Security.AfterHoursEnd < 0 || c.Security.AfterHoursEnd > 23 {
		errs = append(errs, "security.after_hours_end must be between 0 and 23")
	}
	if c.Security.CommandTimeout < 1 {
		errs = append(errs, "security.command_timeout must be at least 1 second")
	}
	if c.Security.PINMinLength < 4 || c.Security.PINMaxLength > 8 || c.Security.PINMinLength > c.Security.PINMaxLength {
		errs = append(errs, "security.pin_min_length/pin_max_length must satisfy 4 <= min <= max <= 8")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCommandTimeout returns the controller command deadline as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Security.CommandTimeout) * time.Second
}

// GetFailedAttemptWindow returns the failed-attempt window as a Duration.
func (c *Config) GetFailedAttemptWindow() time.Duration {
	return time.Duration(c.Security.FailedAttemptWindow) * time.Minute
}
