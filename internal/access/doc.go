// Package access implements the Access authorization record for
// Doorman Core.
//
// An Access binds one credential holder (user or visitor) to a set of
// doors in a building, with a lifecycle state machine
// (pending/active/suspended/revoked/expired), a validity window, a
// permission set, and a usage counter with an optional maximum.
//
// Records are never deleted: revoked and expired accesses persist for
// the audit trail.
//
// The usage counter only moves through Repository.IncrementUsage, a
// guarded atomic SQL compare-and-increment, so concurrent validations
// against the same credential cannot race past the maximum.
package access
