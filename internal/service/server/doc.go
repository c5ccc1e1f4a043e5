// Package server runs the deadman service: the gRPC monitor API next to the
// escalation loop, plus one-shot tick and subject registration commands
// sharing the same wiring.
package server
