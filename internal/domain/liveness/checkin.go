package liveness

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// CheckInValidity is the time a check-in keeps the subject safe.
	CheckInValidity = 48 * time.Hour
	// MaxClockSkew is how far in the future a check-in timestamp may be.
	MaxClockSkew = time.Hour
)

// CheckIn is an immutable liveness confirmation.
type CheckIn struct {
	// id is the unique identifier of the check-in.
	id string
	// subjectID is the subject who checked in.
	subjectID string
	// at is when the subject checked in.
	at time.Time
	// location is an optional free-text location.
	location string
}

// NewCheckIn validates and creates a check-in. A zero at means now.
func NewCheckIn(id, subjectID string, at time.Time, location string, now time.Time) (CheckIn, error) {
	if strings.TrimSpace(subjectID) == "" {
		return CheckIn{}, fmt.Errorf("%w: subject id is required", ErrInvalidCheckIn)
	}

	if at.IsZero() {
		at = now
	}

	if at.After(now.Add(MaxClockSkew)) {
		return CheckIn{}, fmt.Errorf("%w: timestamp %s is more than %s in the future",
			ErrInvalidCheckIn, at.Format(time.RFC3339), MaxClockSkew)
	}

	return CheckIn{
		id:        id,
		subjectID: subjectID,
		at:        at,
		location:  strings.TrimSpace(location),
	}, nil
}

// RestoreCheckIn rebuilds a stored check-in without validation.
func RestoreCheckIn(id, subjectID string, at time.Time, location string) CheckIn {
	return CheckIn{
		id:        id,
		subjectID: subjectID,
		at:        at,
		location:  location,
	}
}

// ID returns the check-in identifier.
func (c CheckIn) ID() string { return c.id }

// SubjectID returns the owning subject.
func (c CheckIn) SubjectID() string { return c.subjectID }

// At returns the check-in timestamp.
func (c CheckIn) At() time.Time { return c.at }

// Location returns the optional location text.
func (c CheckIn) Location() string { return c.location }

// Deadline returns the moment this check-in stops covering the subject.
func (c CheckIn) Deadline() time.Time {
	return c.at.Add(CheckInValidity)
}

// IsExpired reports whether now is past the deadline.
func (c CheckIn) IsExpired(now time.Time) bool {
	return now.After(c.Deadline())
}

// HoursUntilDeadline returns the signed number of hours left.
func (c CheckIn) HoursUntilDeadline(now time.Time) float64 {
	return c.Deadline().Sub(now).Hours()
}

// DaysUntilDeadline returns the remaining days rounded up, or 0 once expired.
func (c CheckIn) DaysUntilDeadline(now time.Time) int {
	hours := c.HoursUntilDeadline(now)
	if hours <= 0 {
		return 0
	}

	return int(math.Ceil(hours / 24))
}

// Remaining renders the time left, e.g. "1 day and 5 hours".
func (c CheckIn) Remaining(now time.Time) string {
	return FormatRemaining(c.Deadline().Sub(now))
}

// FormatRemaining renders a duration left until a deadline.
func FormatRemaining(left time.Duration) string {
	if left <= 0 {
		return "expired"
	}

	days := int(left / (24 * time.Hour))
	hours := int((left % (24 * time.Hour)) / time.Hour)

	if days > 0 {
		return fmt.Sprintf("%s and %s", plural(days, "day"), plural(hours, "hour"))
	}

	return plural(hours, "hour")
}

// plural formats n with a singular or plural unit.
func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}

	return fmt.Sprintf("%d %ss", n, unit)
}
