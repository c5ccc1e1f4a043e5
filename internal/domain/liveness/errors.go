package liveness

import "errors"

// Kind classifies domain errors so callers can branch without matching
// every sentinel.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors outside this package.
	KindUnknown Kind = iota
	// KindInvalidInput marks malformed identifiers, timestamps or fields.
	KindInvalidInput
	// KindInvariantViolation marks operations rejected to keep the aggregate consistent.
	KindInvariantViolation
	// KindNotFound marks lookups of entities that do not exist.
	KindNotFound
	// KindDispatchFailure marks sender failures and timeouts.
	KindDispatchFailure
)

// String returns a lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindNotFound:
		return "not_found"
	case KindDispatchFailure:
		return "dispatch_failure"
	default:
		return "unknown"
	}
}

// Error is a domain error with a kind.
type Error struct {
	// kind is the error category.
	kind Kind
	// message is the human-readable description.
	message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.message
}

// Kind returns the error category.
func (e *Error) Kind() Kind {
	return e.kind
}

// newError creates a sentinel domain error.
func newError(kind Kind, message string) *Error {
	return &Error{
		kind:    kind,
		message: message,
	}
}

// KindOf extracts the kind of the first domain error in err's chain.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.kind
	}

	return KindUnknown
}

var (
	// ErrInvalidEmail is returned for blank or malformed email addresses.
	ErrInvalidEmail = newError(KindInvalidInput, "invalid email")
	// ErrInvalidPhone is returned for phone numbers that are not 11 digits long.
	ErrInvalidPhone = newError(KindInvalidInput, "invalid phone")
	// ErrInvalidCheckIn is returned for check-ins without a subject or too far in the future.
	ErrInvalidCheckIn = newError(KindInvalidInput, "invalid check-in")
	// ErrInvalidSubject is returned when required subject fields are missing or malformed.
	ErrInvalidSubject = newError(KindInvalidInput, "invalid subject")
	// ErrInvalidContact is returned when contact fields are missing or malformed.
	ErrInvalidContact = newError(KindInvalidInput, "invalid contact")
	// ErrInvalidPriority is returned for priorities outside 1..10.
	ErrInvalidPriority = newError(KindInvalidInput, "priority must be between 1 and 10")

	// ErrContactRequired is returned when an operation would leave a subject without contacts.
	ErrContactRequired = newError(KindInvariantViolation, "at least one emergency contact is required")
	// ErrDuplicateContact is returned when a contact email is already used by the subject.
	ErrDuplicateContact = newError(KindInvariantViolation, "contact with this email already exists")
	// ErrContactMismatch is returned when a contact belongs to another subject.
	ErrContactMismatch = newError(KindInvariantViolation, "contact belongs to another subject")
	// ErrSubjectInactive is returned when an inactive subject tries to check in.
	ErrSubjectInactive = newError(KindInvariantViolation, "subject monitoring is inactive")
	// ErrSubjectExists is returned when the email is already registered.
	ErrSubjectExists = newError(KindInvariantViolation, "subject with this email already exists")
	// ErrNotificationClosed is returned when a cancelled notification is changed.
	ErrNotificationClosed = newError(KindInvariantViolation, "notification is cancelled")

	// ErrSubjectNotFound is returned when no subject matches the lookup.
	ErrSubjectNotFound = newError(KindNotFound, "subject not found")
	// ErrContactNotFound is returned when a contact id is unknown to the subject.
	ErrContactNotFound = newError(KindNotFound, "contact not found")

	// ErrDispatch wraps sender failures recorded on notifications.
	ErrDispatch = newError(KindDispatchFailure, "notification dispatch failed")
)
