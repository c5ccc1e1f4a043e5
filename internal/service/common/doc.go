// Package common holds helpers shared by several services.
//
// It provides a lightweight MonitorService client with call timeouts and
// detects the current user and host used as the default check-in location.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
