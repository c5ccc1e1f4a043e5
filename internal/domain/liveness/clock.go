package liveness

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so deadline math is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the current UTC time.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator abstracts unique ID generation.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

// New implements IDGenerator.
func (UUIDGenerator) New() string { return uuid.NewString() }
