// Package liveness contains the core domain of the dead-man's switch.
//
// A Subject checks in periodically; every check-in moves its deadline 48
// hours ahead. Missing the deadline escalates through Notifications sent to
// the Subject's EmergencyContacts. The types here hold all invariants of that
// model (bounded history, at least one contact, the notification state
// machine) and never perform I/O: time and identifiers are passed in by the
// caller.
package liveness
