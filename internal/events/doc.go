// Package events implements the typed domain-event bus for Doorman Core.
//
// Every access validation, door control action, security alert, and
// device presence change publishes one Event through the Bus. In-process
// subscribers (the alert detector, loggers) receive events synchronously
// with per-handler panic isolation; when an MQTT mirror is configured,
// the same envelope is also published to doorman/core/event/{type} (and
// security alerts to doorman/core/alert/{id}) for external notification
// collaborators.
package events
