// Package database provides SQLite connection management for Doorman Core.
//
// It handles:
//   - Opening the database with WAL mode and busy-timeout pragmas
//   - Embedded schema migrations (see the migrations package)
//   - Health checks and graceful shutdown
//
// SQLite is configured with a single writer connection; the doors,
// accesses, and access-log repositories share it. The access repository
// relies on this single-writer model for its atomic usage-count
// compare-and-increment.
package database
