package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAccessEvent records an access validation outcome in the time series.
//
// The write is non-blocking; points are batched and sent asynchronously.
// SQLite access_logs remain authoritative; this series feeds dashboards
// (denial rates, per-door traffic, after-hours activity).
//
// Parameters:
//   - buildingID: Building the door belongs to
//   - doorID: Door the attempt was made on
//   - method: Access method used (e.g., "pin", "card")
//   - result: Validation result code (e.g., "success", "invalid_pin")
//   - allowed: Whether access was granted
func (c *Client) WriteAccessEvent(buildingID, doorID, method, result string, allowed bool) {
	if !c.IsConnected() {
		return
	}

	granted := 0
	if allowed {
		granted = 1
	}

	point := write.NewPoint(
		"access_events",
		map[string]string{
			"building_id": buildingID,
			"door_id":     doorID,
			"method":      method,
			"result":      result,
		},
		map[string]interface{}{
			"granted": granted,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDoorState records a door lock-state change.
//
// Parameters:
//   - buildingID: Building the door belongs to
//   - doorID: Door identifier
//   - status: New status (e.g., "locked", "unlocked", "emergency")
func (c *Client) WriteDoorState(buildingID, doorID, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"door_state",
		map[string]string{
			"building_id": buildingID,
			"door_id":     doorID,
		},
		map[string]interface{}{
			"status": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSecurityAlert records a raised security alert.
//
// Parameters:
//   - buildingID: Building the alert relates to
//   - doorID: Door the alert relates to (may be empty for building-wide alerts)
//   - alertType: Alert type (e.g., "multiple_failed_attempts", "after_hours_access")
func (c *Client) WriteSecurityAlert(buildingID, doorID, alertType string) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"building_id": buildingID,
		"type":        alertType,
	}
	if doorID != "" {
		tags["door_id"] = doorID
	}

	point := write.NewPoint(
		"security_alerts",
		tags,
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("controller_stats",
//	    map[string]string{"device_id": "ctrl-lobby-01"},
//	    map[string]interface{}{"heartbeat_gap_ms": 1042})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed controller data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
