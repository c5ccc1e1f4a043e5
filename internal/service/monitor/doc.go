// Package monitor is the application service used by the transport layer:
// subject registration, check-ins, contact management and status queries.
//
// Every mutation runs under the same per-subject lock the escalation engine
// takes, inside one repository transaction.
package monitor
