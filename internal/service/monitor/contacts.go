package monitor

import (
	"context"
	"time"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/logger"
)

// AddContact attaches a new emergency contact to the subject.
// A contact added during a running campaign joins from the next cycle.
func (s *Service) AddContact(ctx context.Context, subjectID string, params liveness.ContactParams) (*liveness.Contact, error) {
	params.SubjectID = subjectID
	if params.ID == "" {
		params.ID = s.ids.New()
	}

	var added *liveness.Contact

	err := s.update(ctx, subjectID, func(_ context.Context, subject *liveness.Subject, now time.Time) error {
		contact, err := liveness.NewContact(params, now)
		if err != nil {
			return err
		}

		if err = subject.AddContact(contact, now); err != nil {
			return err
		}

		added = contact

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Contact added", "subject_id", subjectID, "contact_id", added.ID(), "priority", added.Priority())

	return added, nil
}

// RemoveContact deletes a contact and its notifications.
func (s *Service) RemoveContact(ctx context.Context, subjectID, contactID string) error {
	err := s.update(ctx, subjectID, func(_ context.Context, subject *liveness.Subject, now time.Time) error {
		return subject.RemoveContact(contactID, now)
	})
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Contact removed", "subject_id", subjectID, "contact_id", contactID)

	return nil
}

// DeactivateContact excludes a contact from escalation.
func (s *Service) DeactivateContact(ctx context.Context, subjectID, contactID string) error {
	return s.update(ctx, subjectID, func(_ context.Context, subject *liveness.Subject, now time.Time) error {
		return subject.DeactivateContact(contactID, now)
	})
}

// ReactivateContact includes a contact in escalation again.
func (s *Service) ReactivateContact(ctx context.Context, subjectID, contactID string) error {
	return s.update(ctx, subjectID, func(_ context.Context, subject *liveness.Subject, now time.Time) error {
		return subject.ReactivateContact(contactID, now)
	})
}

// SetContactPriority changes the campaign order of a contact.
func (s *Service) SetContactPriority(ctx context.Context, subjectID, contactID string, priority int) error {
	return s.update(ctx, subjectID, func(_ context.Context, subject *liveness.Subject, now time.Time) error {
		return subject.SetContactPriority(contactID, priority, now)
	})
}

// ListContacts returns the roster of the subject in insertion order.
func (s *Service) ListContacts(ctx context.Context, subjectID string) ([]*liveness.Contact, error) {
	if _, err := s.find(ctx, subjectID); err != nil {
		return nil, err
	}

	return s.store.Contacts().FindByOwner(ctx, subjectID)
}

// Watching returns every contact entry registered with the email, that is
// the subjects this person would be alerted about.
func (s *Service) Watching(ctx context.Context, rawEmail string) ([]*liveness.Contact, error) {
	email, err := liveness.ParseEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	return s.store.Contacts().FindByEmailGlobal(ctx, email)
}
