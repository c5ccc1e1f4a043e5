// Package config defines the settings shared by the deadman binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Validate fills in defaults for every omitted value, so a file holding only
// server_addr yields a working setup: SQLite storage, in-process locks,
// a log-only sender and the standard reminder tiers.
package config
