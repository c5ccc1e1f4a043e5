// Package version reports which deadman build is running. Release builds
// inject Version, Commit and BuildTime through ldflags; local builds fall
// back to the VCS stamp of the Go toolchain.
package version
