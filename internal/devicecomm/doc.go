// Package devicecomm implements the asynchronous channel between Doorman
// Core and the door controllers in the field.
//
// Controllers publish status, heartbeats, reader events, and command
// responses over MQTT; the Service tracks their presence, correlates
// responses to outstanding commands by request id, and queues outbound
// commands in FIFO order while the broker is unreachable, flushing the
// queue when the connection returns. Core state stays authoritative: a
// controller that misses a command is resynchronised on reconnect, not
// rolled back.
package devicecomm
