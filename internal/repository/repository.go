package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/deadman/internal/domain/liveness"
)

// ErrNotFound is returned when a lookup by identifier matches nothing.
var ErrNotFound = errors.New("record not found")

// SubjectRepository persists whole subject aggregates: the subject row,
// its check-in history and its contact roster.
type SubjectRepository interface {
	FindByID(ctx context.Context, id string) (*liveness.Subject, error)
	FindByEmail(ctx context.Context, email liveness.Email) (*liveness.Subject, error)
	List(ctx context.Context) ([]*liveness.Subject, error)
	// ListOverdue returns monitored subjects whose deadline is at or before the given time.
	ListOverdue(ctx context.Context, before time.Time) ([]*liveness.Subject, error)
	Save(ctx context.Context, subject *liveness.Subject) error
	Delete(ctx context.Context, id string) error
}

// ContactRepository gives direct access to emergency contacts.
type ContactRepository interface {
	Save(ctx context.Context, contact *liveness.Contact) error
	FindByID(ctx context.Context, id string) (*liveness.Contact, error)
	FindByOwner(ctx context.Context, subjectID string) ([]*liveness.Contact, error)
	// FindByEmailGlobal returns the contacts with this email across all subjects.
	FindByEmailGlobal(ctx context.Context, email liveness.Email) ([]*liveness.Contact, error)
	Delete(ctx context.Context, id string) error
}

// NotificationRepository persists notifications. Lists are ordered oldest first.
type NotificationRepository interface {
	Save(ctx context.Context, notification *liveness.Notification) error
	FindByID(ctx context.Context, id string) (*liveness.Notification, error)
	FindBySubject(ctx context.Context, subjectID string) ([]*liveness.Notification, error)
	// FindPendingOrSentForSubject returns the open notifications of a subject:
	// pending, sent, and failed emergencies that are still retried.
	FindPendingOrSentForSubject(ctx context.Context, subjectID string) ([]*liveness.Notification, error)
	// FindDueForResend returns emergencies that ShouldResend or ShouldRetry at now.
	FindDueForResend(ctx context.Context, now time.Time) ([]*liveness.Notification, error)
	// TrimHistory keeps only the most recent notifications of a contact.
	TrimHistory(ctx context.Context, contactID string, keep int) error
	// TrimReminders keeps only the most recent reminders of a subject.
	TrimReminders(ctx context.Context, subjectID string, keep int) error
}

// Store groups the repositories that share one transaction scope.
type Store interface {
	Subjects() SubjectRepository
	Contacts() ContactRepository
	Notifications() NotificationRepository
	// WithinTransaction runs fn in a transaction carried by the context passed
	// to fn. It commits when fn returns nil and rolls back otherwise.
	// Nested calls join the outer transaction.
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}
