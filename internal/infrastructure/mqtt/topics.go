package mqtt

import "fmt"

// Topic prefixes for the Doorman MQTT scheme.
//
// Device topics are keyed by controller id and message class:
//
//	doorman/device/{device_id}/{class}[/{subclass}]
//
// Core topics carry domain events and alerts published by the core for
// external notification collaborators.
const (
	// TopicPrefixDevice is the base for all door-controller topics.
	TopicPrefixDevice = "doorman/device"

	// TopicPrefixCore is the base for all core-published topics.
	TopicPrefixCore = "doorman/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "doorman/system"
)

// Topics provides builders for Doorman MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("ctrl-lobby-01")
//	// Returns: "doorman/device/ctrl-lobby-01/command"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceStatus returns the topic for controller status reports.
//
// Example: doorman/device/ctrl-lobby-01/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, deviceID)
}

// DeviceEvent returns the topic for controller events (door forced, tamper).
//
// Example: doorman/device/ctrl-lobby-01/event
func (Topics) DeviceEvent(deviceID string) string {
	return fmt.Sprintf("%s/%s/event", TopicPrefixDevice, deviceID)
}

// DeviceHeartbeat returns the topic for controller heartbeats.
//
// Example: doorman/device/ctrl-lobby-01/heartbeat
func (Topics) DeviceHeartbeat(deviceID string) string {
	return fmt.Sprintf("%s/%s/heartbeat", TopicPrefixDevice, deviceID)
}

// DeviceCommand returns the topic for commands to a controller.
//
// Example: doorman/device/ctrl-lobby-01/command
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevice, deviceID)
}

// DeviceResponse returns the topic for command responses from a controller.
//
// Example: doorman/device/ctrl-lobby-01/response
func (Topics) DeviceResponse(deviceID string) string {
	return fmt.Sprintf("%s/%s/response", TopicPrefixDevice, deviceID)
}

// DeviceAccess returns an access-flow topic for a controller.
// Kind is one of "request", "granted", or "denied".
//
// Example: doorman/device/ctrl-lobby-01/access/request
func (Topics) DeviceAccess(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/access/%s", TopicPrefixDevice, deviceID, kind)
}

// DeviceCredential returns a credential-flow topic for a controller.
// Kind is one of "entered" or "validated".
//
// Example: doorman/device/ctrl-lobby-01/credential/entered
func (Topics) DeviceCredential(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/credential/%s", TopicPrefixDevice, deviceID, kind)
}

// =============================================================================
// Core Topics
// =============================================================================

// CoreEvent returns the topic for domain events.
//
// Example: doorman/core/event/access_granted
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// CoreAlert returns the topic for security alerts.
//
// Example: doorman/core/alert/alr-4f2a91c3
func (Topics) CoreAlert(alertID string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, alertID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic (online/offline presence).
//
// Example: doorman/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceStatuses returns a pattern matching all controller status reports.
//
// Pattern: doorman/device/+/status
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixDevice)
}

// AllDeviceEvents returns a pattern matching all controller events.
//
// Pattern: doorman/device/+/event
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/+/event", TopicPrefixDevice)
}

// AllDeviceHeartbeats returns a pattern matching all controller heartbeats.
//
// Pattern: doorman/device/+/heartbeat
func (Topics) AllDeviceHeartbeats() string {
	return fmt.Sprintf("%s/+/heartbeat", TopicPrefixDevice)
}

// AllDeviceResponses returns a pattern matching all command responses.
//
// Pattern: doorman/device/+/response
func (Topics) AllDeviceResponses() string {
	return fmt.Sprintf("%s/+/response", TopicPrefixDevice)
}

// AllDeviceAccess returns a pattern matching all access-flow messages.
//
// Pattern: doorman/device/+/access/+
func (Topics) AllDeviceAccess() string {
	return fmt.Sprintf("%s/+/access/+", TopicPrefixDevice)
}

// AllDeviceCredentials returns a pattern matching all credential-flow messages.
//
// Pattern: doorman/device/+/credential/+
func (Topics) AllDeviceCredentials() string {
	return fmt.Sprintf("%s/+/credential/+", TopicPrefixDevice)
}

// AllCoreEvents returns a pattern matching all domain events.
//
// Pattern: doorman/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllCoreAlerts returns a pattern matching all security alerts.
//
// Pattern: doorman/core/alert/+
func (Topics) AllCoreAlerts() string {
	return fmt.Sprintf("%s/alert/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching all Doorman topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: doorman/#
func (Topics) AllTopics() string {
	return "doorman/#"
}
