// Doorman Core - Physical Access Control
//
// This is the main entry point for the Doorman Core application.
// Doorman is the building access-control core designed for:
//   - Offline-first operation (decisions keep working without internet)
//   - Authoritative core state (controllers resynchronise, never rule)
//   - An immutable audit trail for every access decision
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/finchsec/doorman-core/migrations"

	"github.com/finchsec/doorman-core/internal/access"
	"github.com/finchsec/doorman-core/internal/audit"
	"github.com/finchsec/doorman-core/internal/devicecomm"
	"github.com/finchsec/doorman-core/internal/door"
	"github.com/finchsec/doorman-core/internal/doorcontrol"
	"github.com/finchsec/doorman-core/internal/events"
	"github.com/finchsec/doorman-core/internal/infrastructure/config"
	"github.com/finchsec/doorman-core/internal/infrastructure/database"
	"github.com/finchsec/doorman-core/internal/infrastructure/influxdb"
	"github.com/finchsec/doorman-core/internal/infrastructure/logging"
	"github.com/finchsec/doorman-core/internal/infrastructure/mqtt"
	"github.com/finchsec/doorman-core/internal/validation"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Doorman Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories and the cached door registry
	doorRepo := door.NewSQLiteRepository(db.DB)
	doorRegistry := door.NewRegistry(doorRepo)
	doorRegistry.SetLogger(log)

	if refreshErr := doorRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading door registry: %w", refreshErr)
	}
	log.Info("door registry initialised", "doors", doorRegistry.DoorCount())

	accessRepo := access.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Domain event bus, mirrored to MQTT for external collaborators
	qos := byte(cfg.MQTT.QoS)
	bus := events.NewBus()
	bus.SetLogger(log)
	bus.SetMirror(mqttClient, mqtt.Topics{}, qos)

	// Security pattern detector over the audit trail. After-hours
	// checks run in the site's local time, not UTC.
	siteLocation, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		return fmt.Errorf("loading site timezone %q: %w", cfg.Site.Timezone, err)
	}

	detector := audit.NewDetector(auditRepo, audit.DetectorConfig{
		FailedAttemptThreshold: cfg.Security.FailedAttemptThreshold,
		FailedAttemptWindow:    cfg.GetFailedAttemptWindow(),
		AfterHoursStart:        cfg.Security.AfterHoursStart,
		AfterHoursEnd:          cfg.Security.AfterHoursEnd,
		Location:               siteLocation,
	}, bus)
	detector.SetLogger(log)

	// Device channel to the door controllers
	deviceChannel, err := devicecomm.NewService(devicecomm.ServiceOptions{
		MQTT:           mqttClient,
		QoS:            qos,
		CommandTimeout: cfg.GetCommandTimeout(),
		Events:         bus,
		Logger:         log.With("component", "devicecomm"),
	})
	if err != nil {
		return fmt.Errorf("creating device channel: %w", err)
	}
	if startErr := deviceChannel.Start(ctx); startErr != nil {
		return fmt.Errorf("starting device channel: %w", startErr)
	}
	defer func() {
		log.Info("stopping device channel")
		deviceChannel.Stop()
	}()

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		deviceChannel.FlushQueue()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Validation pipeline
	validatorOpts := validation.ServiceOptions{
		Doors:    doorRegistry,
		Accesses: accessRepo,
		Logs:     auditRepo,
		Detector: detector,
		Events:   bus,
		Logger:   log.With("component", "validation"),
	}
	if influxClient != nil {
		validatorOpts.Metrics = influxClient
	}
	validator, err := validation.NewService(validatorOpts)
	if err != nil {
		return fmt.Errorf("creating validation service: %w", err)
	}

	// Door control with emergency cascade
	controlOpts := doorcontrol.ServiceOptions{
		Registry: doorRegistry,
		Devices:  deviceChannel,
		Logs:     auditRepo,
		Events:   bus,
		Logger:   log.With("component", "doorcontrol"),
	}
	if influxClient != nil {
		controlOpts.Metrics = influxClient
	}
	controller, err := doorcontrol.NewService(controlOpts)
	if err != nil {
		return fmt.Errorf("creating door control service: %w", err)
	}
	defer func() {
		log.Info("stopping door control")
		controller.Stop()
	}()

	wireDeviceChannel(deviceChannel, validator, controller, doorRegistry, log)
	wirePresenceToDoors(bus, doorRegistry, log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// door control, device channel, InfluxDB (if enabled), MQTT, database.

	log.Info("Doorman Core stopped")
	return nil
}

// wireDeviceChannel connects reader access requests to the validation
// pipeline and controller hardware events to door control.
func wireDeviceChannel(
	deviceChannel *devicecomm.Service,
	validator *validation.Service,
	controller *doorcontrol.Service,
	doors *door.Registry,
	log *logging.Logger,
) {
	deviceChannel.SetAccessHandler(func(ctx context.Context, deviceID string, req devicecomm.AccessRequestMessage) devicecomm.AccessResultMessage {
		result, err := validator.ValidateDevice(ctx, deviceID, req.Method, req.Credential)
		if err != nil {
			log.Error("reader validation failed", "device_id", deviceID, "error", err)
			return devicecomm.AccessResultMessage{Allowed: false, Reason: "internal error"}
		}
		return devicecomm.AccessResultMessage{Allowed: result.Allowed, Reason: result.Message}
	})

	deviceChannel.SetCredentialHandler(func(ctx context.Context, deviceID string, req devicecomm.CredentialEnteredMessage) devicecomm.CredentialResultMessage {
		result, err := validator.ValidateDevice(ctx, deviceID, string(door.MethodPIN), req.Credential)
		if err != nil {
			log.Error("keypad validation failed", "device_id", deviceID, "error", err)
			return devicecomm.CredentialResultMessage{Valid: false, Reason: "internal error"}
		}
		return devicecomm.CredentialResultMessage{Valid: result.Allowed, Reason: result.Message}
	})

	deviceChannel.SetDeviceEventHandler(func(ctx context.Context, deviceID string, event devicecomm.DeviceEventMessage) {
		d, err := doors.GetDoorByDevice(ctx, deviceID)
		if err != nil {
			log.Warn("hardware event from unmapped controller",
				"device_id", deviceID,
				"type", event.Type,
			)
			return
		}

		switch event.Type {
		case "fire_alarm":
			// Fire panel input: evacuate through this door and cascade.
			if _, execErr := controller.Execute(ctx, doorcontrol.Command{
				DoorID: d.ID,
				Action: doorcontrol.ActionEmergencyUnlock,
				UserID: "system",
				Reason: "fire alarm from controller " + deviceID,
			}); execErr != nil {
				log.Error("fire alarm emergency unlock failed", "door_id", d.ID, "error", execErr)
			}
		default:
			log.Warn("controller hardware event",
				"device_id", deviceID,
				"door_id", d.ID,
				"type", event.Type,
				"data", event.Data,
			)
		}
	})
}

// wirePresenceToDoors keeps door status in step with controller
// presence: a controller dropping off the broker marks its door
// offline, and a returning controller restores it to locked
// (fail-secure default).
func wirePresenceToDoors(bus *events.Bus, doors *door.Registry, log *logging.Logger) {
	bus.Subscribe(events.TypeDeviceOffline, func(ctx context.Context, e events.Event) error {
		d, err := doors.GetDoorByDevice(ctx, e.AggregateID)
		if err != nil {
			return nil // controller without a mapped door
		}
		if d.Status == door.StatusOffline {
			return nil
		}
		if err := doors.SetDoorStatus(ctx, d.ID, door.StatusOffline); err != nil {
			return fmt.Errorf("marking door offline: %w", err)
		}
		log.Warn("door offline", "door_id", d.ID, "device_id", e.AggregateID)
		return nil
	})

	bus.Subscribe(events.TypeDeviceOnline, func(ctx context.Context, e events.Event) error {
		d, err := doors.GetDoorByDevice(ctx, e.AggregateID)
		if err != nil {
			return nil
		}
		if d.Status != door.StatusOffline {
			return nil
		}
		if err := doors.SetDoorStatus(ctx, d.ID, door.StatusLocked); err != nil {
			return fmt.Errorf("restoring door status: %w", err)
		}
		log.Info("door back online, locked", "door_id", d.ID, "device_id", e.AggregateID)
		return nil
	})
}

// getConfigPath returns the configuration file path.
// Uses DOORMAN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DOORMAN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
