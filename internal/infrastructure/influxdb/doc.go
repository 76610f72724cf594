// Package influxdb provides InfluxDB connectivity for Doorman Core.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes, and health monitoring.
//
// # Purpose
//
// This package handles optional time-series storage for:
//   - Access validation outcomes (grant/deny rates per door)
//   - Door lock-state changes
//   - Security alert counts
//
// The SQLite audit trail is authoritative; this series exists for
// dashboards and trend queries and the core runs fine without it
// (enabled: false in config.yaml).
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "doorman",
//	    Bucket:  "access",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteAccessEvent("bld-01", "door-lobby", "pin", "success", true)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via
// a callback. Connection and health check errors are returned directly.
package influxdb
