// Package doorcontrol implements explicit lock-state control for
// Doorman Core.
//
// Execute drives the domain state machine first and mirrors the result
// to the door's controller second: core state is authoritative, and a
// controller that misses a command is resynchronised rather than rolled
// back. Emergency unlocks cascade concurrently to every emergency exit
// in the building, with per-door failure isolation so one jammed
// mechanism never blocks the rest of the evacuation path.
package doorcontrol
