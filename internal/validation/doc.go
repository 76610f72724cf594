// Package validation implements credential validation for Doorman Core.
//
// Validate runs the full decision pipeline for one presented credential:
// door accessibility, method support, emergency override codes, PIN
// lookup, credential lifecycle (window, expiry, usage limits), door
// grants, and schedule rules. Every call writes exactly one access log
// entry and publishes exactly one domain event, whatever the outcome;
// the security detector analyses the entry after it is written.
package validation
