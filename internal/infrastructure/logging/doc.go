// Package logging provides structured logging for Doorman Core.
//
// It wraps the standard library's log/slog with configuration-driven
// level filtering, output format selection (JSON/text), and default
// service attributes.
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("door unlocked", "door_id", id)
//
//	commLog := log.With("component", "devicecomm")
//	commLog.Warn("command timed out", "request_id", reqID)
//
// Credentials must never reach the logger unmasked; callers log
// credential.Credential values directly (the type stringifies masked).
package logging
