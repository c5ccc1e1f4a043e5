// Package client implements the deadman-checkin commands.
//
// The check-in command confirms the subject is safe, optionally waiting for
// an unreachable server. Every other command is a sequence of monitor calls
// run through Run, each reply printed as JSON.
package client
