package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/lock"
	"github.com/oshokin/deadman/internal/logger"
	"github.com/oshokin/deadman/internal/repository"
)

// registrationLockPrefix scopes the lock taken while an email is being registered.
const registrationLockPrefix = "register:"

// Service coordinates subjects, their contacts and their notifications.
type Service struct {
	// store persists subjects, contacts and notifications.
	store repository.Store
	// locker serializes work on one subject across the process or the cluster.
	locker lock.Locker
	// clock provides the current time.
	clock liveness.Clock
	// ids generates identifiers for new entities.
	ids liveness.IDGenerator
}

// NewService creates a monitor service.
func NewService(
	store repository.Store,
	locker lock.Locker,
	clock liveness.Clock,
	ids liveness.IDGenerator,
) *Service {
	return &Service{
		store:  store,
		locker: locker,
		clock:  clock,
		ids:    ids,
	}
}

// CheckInResult describes the subject right after a check-in.
type CheckInResult struct {
	// CheckIn is the recorded confirmation.
	CheckIn liveness.CheckIn
	// Status is the subject status after the check-in.
	Status liveness.Status
	// NextDeadlineAt is the deadline after the check-in.
	NextDeadlineAt time.Time
	// Cancelled counts the open notifications closed by the recovery.
	Cancelled int
}

// StatusView is a read-only snapshot of a subject at a given time.
type StatusView struct {
	SubjectID      string
	Name           string
	Status         liveness.Status
	LastCheckInAt  time.Time
	NextDeadlineAt time.Time
	HoursLeft      float64
	Remaining      string
	ActiveContacts int
	CheckedAt      time.Time
}

// RegisterSubject creates a subject with its initial contacts.
// Missing identifiers are generated.
func (s *Service) RegisterSubject(ctx context.Context, params liveness.SubjectParams) (*liveness.Subject, error) {
	email, err := liveness.ParseEmail(params.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", liveness.ErrInvalidSubject, err)
	}

	release, err := s.locker.Acquire(ctx, registrationLockPrefix+email.String())
	if err != nil {
		return nil, fmt.Errorf("lock registration: %w", err)
	}
	defer release()

	if params.ID == "" {
		params.ID = s.ids.New()
	}

	for i := range params.Contacts {
		if params.Contacts[i].ID == "" {
			params.Contacts[i].ID = s.ids.New()
		}
	}

	subject, err := liveness.NewSubject(params, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTransaction(ctx, func(ctx context.Context) error {
		_, findErr := s.store.Subjects().FindByEmail(ctx, email)

		switch {
		case findErr == nil:
			return fmt.Errorf("%w: %s", liveness.ErrSubjectExists, email)
		case !errors.Is(findErr, repository.ErrNotFound):
			return fmt.Errorf("find subject by email: %w", findErr)
		}

		return s.store.Subjects().Save(ctx, subject)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Subject registered",
		"subject_id", subject.ID(),
		"contacts", len(subject.Contacts()),
		"deadline", subject.NextDeadlineAt())

	return subject, nil
}

// CheckIn records a liveness confirmation. A zero at means now. Open
// notifications of the subject are cancelled in the same transaction, so a
// recovering subject stops the running campaign at once.
func (s *Service) CheckIn(ctx context.Context, subjectID string, at time.Time, location string) (CheckInResult, error) {
	ctx = logger.WithKV(ctx, "subject_id", subjectID)

	var result CheckInResult

	err := s.update(ctx, subjectID, func(ctx context.Context, subject *liveness.Subject, now time.Time) error {
		checkIn, err := subject.RecordCheckIn(s.ids.New(), at, location, now)
		if err != nil {
			return err
		}

		cancelled, err := s.cancelOpen(ctx, subjectID, now)
		if err != nil {
			return err
		}

		result = CheckInResult{
			CheckIn:        checkIn,
			Status:         subject.Status(),
			NextDeadlineAt: subject.NextDeadlineAt(),
			Cancelled:      cancelled,
		}

		return nil
	})
	if err != nil {
		return CheckInResult{}, err
	}

	logger.InfoKV(ctx, "Check-in recorded",
		"at", result.CheckIn.At(),
		"deadline", result.NextDeadlineAt,
		"cancelled_notifications", result.Cancelled)

	return result, nil
}

// Status returns the subject state derived at the current time. The stored
// status is left to the escalation engine.
func (s *Service) Status(ctx context.Context, subjectID string) (StatusView, error) {
	subject, err := s.find(ctx, subjectID)
	if err != nil {
		return StatusView{}, err
	}

	now := s.clock.Now()
	subject.RefreshStatus(now)

	return StatusView{
		SubjectID:      subject.ID(),
		Name:           subject.Name(),
		Status:         subject.Status(),
		LastCheckInAt:  subject.LastCheckInAt(),
		NextDeadlineAt: subject.NextDeadlineAt(),
		HoursLeft:      subject.HoursUntilDeadline(now),
		Remaining:      liveness.FormatRemaining(subject.NextDeadlineAt().Sub(now)),
		ActiveContacts: len(subject.ActiveContactsByPriority()),
		CheckedAt:      now,
	}, nil
}

// History returns the retained check-ins, oldest first.
func (s *Service) History(ctx context.Context, subjectID string) ([]liveness.CheckIn, error) {
	subject, err := s.find(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	return subject.History(), nil
}

// Notifications returns the notifications of the subject, oldest first.
func (s *Service) Notifications(ctx context.Context, subjectID string) ([]*liveness.Notification, error) {
	if _, err := s.find(ctx, subjectID); err != nil {
		return nil, err
	}

	return s.store.Notifications().FindBySubject(ctx, subjectID)
}

// FindByEmail looks a subject up by its email.
func (s *Service) FindByEmail(ctx context.Context, rawEmail string) (*liveness.Subject, error) {
	email, err := liveness.ParseEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	subject, err := s.store.Subjects().FindByEmail(ctx, email)
	if err != nil {
		return nil, notFound(err)
	}

	return subject, nil
}

// Deactivate switches monitoring off and cancels the open notifications.
func (s *Service) Deactivate(ctx context.Context, subjectID string) error {
	ctx = logger.WithKV(ctx, "subject_id", subjectID)

	var cancelled int

	err := s.update(ctx, subjectID, func(ctx context.Context, subject *liveness.Subject, now time.Time) error {
		subject.Deactivate(now)

		var err error

		cancelled, err = s.cancelOpen(ctx, subjectID, now)

		return err
	})
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Monitoring deactivated", "cancelled_notifications", cancelled)

	return nil
}

// Reactivate switches monitoring back on with a fresh 48-hour cycle.
func (s *Service) Reactivate(ctx context.Context, subjectID string) error {
	ctx = logger.WithKV(ctx, "subject_id", subjectID)

	err := s.update(ctx, subjectID, func(_ context.Context, subject *liveness.Subject, now time.Time) error {
		subject.Reactivate(now)

		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "Monitoring reactivated")

	return nil
}

// Delete removes the subject with its history, contacts and notifications.
func (s *Service) Delete(ctx context.Context, subjectID string) error {
	release, err := s.locker.Acquire(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("lock subject: %w", err)
	}
	defer release()

	if err = s.store.Subjects().Delete(ctx, subjectID); err != nil {
		return notFound(err)
	}

	logger.InfoKV(ctx, "Subject deleted", "subject_id", subjectID)

	return nil
}

// update loads the subject under its lock, applies fn and saves the result
// in one transaction.
func (s *Service) update(
	ctx context.Context,
	subjectID string,
	fn func(ctx context.Context, subject *liveness.Subject, now time.Time) error,
) error {
	release, err := s.locker.Acquire(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("lock subject: %w", err)
	}
	defer release()

	return s.store.WithinTransaction(ctx, func(ctx context.Context) error {
		subject, err := s.store.Subjects().FindByID(ctx, subjectID)
		if err != nil {
			return notFound(err)
		}

		if err = fn(ctx, subject, s.clock.Now()); err != nil {
			return err
		}

		return s.store.Subjects().Save(ctx, subject)
	})
}

// cancelOpen cancels every open notification of the subject.
func (s *Service) cancelOpen(ctx context.Context, subjectID string, now time.Time) (int, error) {
	open, err := s.store.Notifications().FindPendingOrSentForSubject(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("find open notifications: %w", err)
	}

	for _, n := range open {
		n.Cancel(now)

		if err = s.store.Notifications().Save(ctx, n); err != nil {
			return 0, fmt.Errorf("cancel notification %s: %w", n.ID(), err)
		}
	}

	return len(open), nil
}

func (s *Service) find(ctx context.Context, subjectID string) (*liveness.Subject, error) {
	subject, err := s.store.Subjects().FindByID(ctx, subjectID)
	if err != nil {
		return nil, notFound(err)
	}

	return subject, nil
}

// notFound translates a missing row into the domain error.
func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %w", liveness.ErrSubjectNotFound, err)
	}

	return err
}
