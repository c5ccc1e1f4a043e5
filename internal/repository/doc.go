// Package repository declares the persistence contracts used by the
// escalation engine and the monitor service.
//
// Implementations live in sub-packages. Every method accepts a context so
// that an implementation can carry a transaction started by
// Store.WithinTransaction; calls made with that context join the transaction.
package repository
