// Package mqtt provides the broker connection for Doorman Core.
//
// It wraps eclipse/paho.mqtt.golang with:
//   - Connection lifecycle (connect, LWT presence, graceful close)
//   - Automatic reconnection with exponential backoff and attempt counting
//   - Subscription tracking with restoration after reconnect
//   - Topic builders for the doorman/* topic scheme
//   - Panic-recovering message handler wrapping
//
// The devicecomm package builds the door-controller protocol on top of
// this client; nothing else in the codebase publishes raw MQTT.
//
// # Topic Scheme
//
//	doorman/device/{id}/status       controller online/offline reports
//	doorman/device/{id}/event        controller events (forced, tamper)
//	doorman/device/{id}/heartbeat    periodic liveness
//	doorman/device/{id}/command      core -> controller commands
//	doorman/device/{id}/response     controller -> core command responses
//	doorman/device/{id}/access/+     access request/granted/denied flow
//	doorman/device/{id}/credential/+ credential entered/validated flow
//	doorman/core/event/{type}        domain events for collaborators
//	doorman/core/alert/{id}          security alerts
//	doorman/system/status            core presence (retained, LWT)
package mqtt
