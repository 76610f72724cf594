// Package door implements the Door entity for Doorman Core.
//
// A Door is a controllable access point with a guarded lock-state
// machine, priority-ordered unlock schedules, supported access methods,
// and emergency settings.
//
// # Lock State
//
// Status transitions are guarded: locking a locked door returns
// ErrAlreadyLocked rather than silently succeeding, and only accessible
// doors (locked or unlocked) can be operated. Offline, maintenance, and
// emergency doors reject routine transitions.
//
// # Schedules
//
// ShouldBeUnlocked evaluates active schedules by priority descending;
// the first ALWAYS_UNLOCKED/ALWAYS_LOCKED rule or matching SCHEDULED
// rule decides, and the default with no match is locked. Doors in
// emergency status short-circuit to their emergency settings.
//
// # Persistence
//
// Repository defines the persistence interface with a SQLite
// implementation (JSON columns for schedules, methods, and emergency
// settings). Registry layers a deep-copy-isolated in-memory cache over
// the repository for the hot validation path.
package door
