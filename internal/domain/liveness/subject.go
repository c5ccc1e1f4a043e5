package liveness

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// OverdueWindow is the lead time before the deadline in which a subject is Overdue.
const OverdueWindow = 6 * time.Hour

// Status is the monitoring state of a subject.
type Status int

const (
	// StatusActive means the deadline is more than 6 hours away.
	StatusActive Status = iota + 1
	// StatusOverdue means less than 6 hours are left.
	StatusOverdue
	// StatusCriticalAlert means the deadline was missed.
	StatusCriticalAlert
	// StatusInactive means monitoring was switched off by the subject.
	StatusInactive
)

// String returns the persisted name of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusOverdue:
		return "overdue"
	case StatusCriticalAlert:
		return "critical_alert"
	case StatusInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// ParseStatus converts a persisted name back to a status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "active":
		return StatusActive, nil
	case "overdue":
		return StatusOverdue, nil
	case "critical_alert":
		return StatusCriticalAlert, nil
	case "inactive":
		return StatusInactive, nil
	default:
		return 0, fmt.Errorf("unknown subject status %q", s)
	}
}

// DeriveStatus computes the status for a deadline at a given time.
// It never returns StatusInactive.
func DeriveStatus(deadline, now time.Time) Status {
	switch {
	case now.After(deadline):
		return StatusCriticalAlert
	case deadline.Sub(now) < OverdueWindow:
		return StatusOverdue
	default:
		return StatusActive
	}
}

// SubjectParams holds the input for a new subject.
type SubjectParams struct {
	// ID is the identifier assigned by the caller.
	ID string
	// Name is the subject display name.
	Name string
	// Email is the raw email address.
	Email string
	// Phone is the raw phone number.
	Phone string
	// CredentialHash is stored as-is and never interpreted.
	CredentialHash string
	// Contacts are the initial emergency contacts, at least one.
	// Their SubjectID is filled in from ID.
	Contacts []ContactParams
}

// Subject is the aggregate root: it owns the check-in history and the contact roster.
type Subject struct {
	// id is the unique identifier of the subject.
	id string
	// name is the display name.
	name string
	// email is the validated email.
	email Email
	// phone is the validated phone.
	phone Phone
	// credentialHash is an opaque blob.
	credentialHash string
	// status is the current monitoring state.
	status Status
	// lastCheckInAt is the timestamp of the most recent check-in.
	lastCheckInAt time.Time
	// nextDeadlineAt is always lastCheckInAt + 48h.
	nextDeadlineAt time.Time
	// createdAt is the registration time.
	createdAt time.Time
	// updatedAt is the time of the last mutation.
	updatedAt time.Time
	// history holds up to HistoryLimit check-ins ordered by timestamp.
	history []CheckIn
	// contacts is the roster in insertion order.
	contacts []*Contact
}

// NewSubject validates params and creates an active subject whose first
// deadline is 48 hours after now.
func NewSubject(p SubjectParams, now time.Time) (*Subject, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSubject)
	}

	if strings.TrimSpace(p.CredentialHash) == "" {
		return nil, fmt.Errorf("%w: credential hash is required", ErrInvalidSubject)
	}

	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidSubject)
	}

	email, err := ParseEmail(p.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubject, err)
	}

	phone, err := ParsePhone(p.Phone)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubject, err)
	}

	if len(p.Contacts) == 0 {
		return nil, ErrContactRequired
	}

	s := &Subject{
		id:             p.ID,
		name:           name,
		email:          email,
		phone:          phone,
		credentialHash: p.CredentialHash,
		status:         StatusActive,
		createdAt:      now,
		updatedAt:      now,
	}
	s.resetCycle(now)

	for _, cp := range p.Contacts {
		cp.SubjectID = s.id

		contact, err := NewContact(cp, now)
		if err != nil {
			return nil, err
		}

		if err = s.AddContact(contact, now); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// SubjectRecord is the persisted form of a subject aggregate.
type SubjectRecord struct {
	ID             string
	Name           string
	Email          string
	Phone          string
	CredentialHash string
	Status         Status
	LastCheckInAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	History        []CheckIn
	Contacts       []ContactRecord
}

// RestoreSubject rebuilds a stored aggregate. The deadline is recomputed
// from LastCheckInAt and the history is re-trimmed.
func RestoreSubject(r SubjectRecord) (*Subject, error) {
	email, err := ParseEmail(r.Email)
	if err != nil {
		return nil, fmt.Errorf("restore subject %s: %w", r.ID, err)
	}

	phone, err := ParsePhone(r.Phone)
	if err != nil {
		return nil, fmt.Errorf("restore subject %s: %w", r.ID, err)
	}

	s := &Subject{
		id:             r.ID,
		name:           r.Name,
		email:          email,
		phone:          phone,
		credentialHash: r.CredentialHash,
		status:         r.Status,
		lastCheckInAt:  r.LastCheckInAt,
		nextDeadlineAt: r.LastCheckInAt.Add(CheckInValidity),
		createdAt:      r.CreatedAt,
		updatedAt:      r.UpdatedAt,
	}

	for _, c := range r.History {
		s.appendHistory(c)
	}

	for _, cr := range r.Contacts {
		contact, err := RestoreContact(cr)
		if err != nil {
			return nil, err
		}

		s.contacts = append(s.contacts, contact)
	}

	return s, nil
}

// Record exports the aggregate for persistence.
func (s *Subject) Record() SubjectRecord {
	contacts := make([]ContactRecord, 0, len(s.contacts))
	for _, c := range s.contacts {
		contacts = append(contacts, c.Record())
	}

	return SubjectRecord{
		ID:             s.id,
		Name:           s.name,
		Email:          s.email.String(),
		Phone:          s.phone.String(),
		CredentialHash: s.credentialHash,
		Status:         s.status,
		LastCheckInAt:  s.lastCheckInAt,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
		History:        s.History(),
		Contacts:       contacts,
	}
}

// ID returns the subject identifier.
func (s *Subject) ID() string { return s.id }

// Name returns the display name.
func (s *Subject) Name() string { return s.name }

// Email returns the validated email.
func (s *Subject) Email() Email { return s.email }

// Phone returns the validated phone.
func (s *Subject) Phone() Phone { return s.phone }

// CredentialHash returns the opaque credential blob.
func (s *Subject) CredentialHash() string { return s.credentialHash }

// Status returns the stored status.
func (s *Subject) Status() Status { return s.status }

// LastCheckInAt returns the most recent check-in time.
func (s *Subject) LastCheckInAt() time.Time { return s.lastCheckInAt }

// NextDeadlineAt returns the current deadline.
func (s *Subject) NextDeadlineAt() time.Time { return s.nextDeadlineAt }

// CreatedAt returns the registration time.
func (s *Subject) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns the time of the last mutation.
func (s *Subject) UpdatedAt() time.Time { return s.updatedAt }

// IsInactive reports whether monitoring is switched off.
func (s *Subject) IsInactive() bool { return s.status == StatusInactive }

// History returns a copy of the check-in history, oldest first.
func (s *Subject) History() []CheckIn {
	return slices.Clone(s.history)
}

// Contacts returns copies of all contacts in insertion order.
func (s *Subject) Contacts() []*Contact {
	out := make([]*Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c.clone())
	}

	return out
}

// Contact returns a copy of the contact with the given id.
func (s *Subject) Contact(id string) (*Contact, bool) {
	idx := s.contactIndex(id)
	if idx < 0 {
		return nil, false
	}

	return s.contacts[idx].clone(), true
}

// ActiveContactsByPriority returns the active contacts in campaign order:
// ascending priority, ties broken by creation time, then insertion order.
func (s *Subject) ActiveContactsByPriority() []*Contact {
	var active []*Contact

	for _, c := range s.contacts {
		if c.active {
			active = append(active, c.clone())
		}
	}

	slices.SortStableFunc(active, func(a, b *Contact) int {
		if a.priority != b.priority {
			return a.priority - b.priority
		}

		return a.createdAt.Compare(b.createdAt)
	})

	return active
}

// Recipient returns the subject's own delivery address for reminders.
func (s *Subject) Recipient() Recipient {
	return Recipient{
		Name:  s.name,
		Email: s.email,
		Phone: s.phone,
	}
}

// AddContact attaches a contact owned by this subject.
func (s *Subject) AddContact(c *Contact, now time.Time) error {
	if c == nil {
		return fmt.Errorf("%w: contact is required", ErrInvalidContact)
	}

	if c.subjectID != s.id {
		return fmt.Errorf("%w: contact %s belongs to %s", ErrContactMismatch, c.id, c.subjectID)
	}

	for _, existing := range s.contacts {
		if existing.email.Equal(c.email) {
			return fmt.Errorf("%w: %s", ErrDuplicateContact, c.email)
		}
	}

	s.contacts = append(s.contacts, c.clone())
	s.updatedAt = now

	return nil
}

// RemoveContact detaches a contact unless it is the last one.
func (s *Subject) RemoveContact(id string, now time.Time) error {
	idx := s.contactIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}

	if len(s.contacts) <= 1 {
		return ErrContactRequired
	}

	if s.contacts[idx].active && s.activeContactCount() == 1 {
		return fmt.Errorf("%w: cannot remove the last active contact", ErrContactRequired)
	}

	s.contacts = slices.Delete(s.contacts, idx, idx+1)
	s.updatedAt = now

	return nil
}

// DeactivateContact excludes a contact from escalation without removing it.
func (s *Subject) DeactivateContact(id string, now time.Time) error {
	idx := s.contactIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}

	contact := s.contacts[idx]
	if !contact.active {
		return nil
	}

	if s.activeContactCount() == 1 {
		return fmt.Errorf("%w: cannot deactivate the last active contact", ErrContactRequired)
	}

	contact.deactivate()
	s.updatedAt = now

	return nil
}

// ReactivateContact includes a contact in escalation again.
func (s *Subject) ReactivateContact(id string, now time.Time) error {
	idx := s.contactIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}

	s.contacts[idx].reactivate()
	s.updatedAt = now

	return nil
}

// SetContactPriority changes the campaign order of a contact.
func (s *Subject) SetContactPriority(id string, priority int, now time.Time) error {
	idx := s.contactIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}

	if err := s.contacts[idx].setPriority(priority); err != nil {
		return err
	}

	s.updatedAt = now

	return nil
}

// RecordCheckIn registers a liveness confirmation: the deadline moves to
// 48 hours after the newest check-in, the status returns to Active and the
// history keeps only the most recent entries.
func (s *Subject) RecordCheckIn(id string, at time.Time, location string, now time.Time) (CheckIn, error) {
	if s.status == StatusInactive {
		return CheckIn{}, ErrSubjectInactive
	}

	checkIn, err := NewCheckIn(id, s.id, at, location, now)
	if err != nil {
		return CheckIn{}, err
	}

	if !checkIn.At().Before(s.lastCheckInAt) {
		s.resetCycle(checkIn.At())
	}

	s.status = StatusActive
	s.updatedAt = now
	s.appendHistory(checkIn)

	return checkIn, nil
}

// RefreshStatus re-derives the status at now. Inactive subjects are left
// untouched. It reports whether the status changed.
func (s *Subject) RefreshStatus(now time.Time) bool {
	if s.status == StatusInactive {
		return false
	}

	derived := DeriveStatus(s.nextDeadlineAt, now)
	if derived == s.status {
		return false
	}

	s.status = derived
	s.updatedAt = now

	return true
}

// HoursUntilDeadline returns the signed number of hours left at now.
func (s *Subject) HoursUntilDeadline(now time.Time) float64 {
	return s.nextDeadlineAt.Sub(now).Hours()
}

// Deactivate switches monitoring off. The status stays Inactive until Reactivate.
func (s *Subject) Deactivate(now time.Time) {
	s.status = StatusInactive
	s.updatedAt = now
}

// Reactivate switches monitoring back on and starts a fresh cycle at now.
func (s *Subject) Reactivate(now time.Time) {
	if s.status != StatusInactive {
		return
	}

	s.resetCycle(now)
	s.status = StatusActive
	s.updatedAt = now
}

// resetCycle moves the deadline; both fields always change together.
func (s *Subject) resetCycle(lastCheckInAt time.Time) {
	s.lastCheckInAt = lastCheckInAt
	s.nextDeadlineAt = lastCheckInAt.Add(CheckInValidity)
}

// appendHistory inserts c keeping timestamp order (stable for equal
// timestamps) and evicts the oldest entries beyond HistoryLimit.
func (s *Subject) appendHistory(c CheckIn) {
	s.history = append(s.history, c)

	slices.SortStableFunc(s.history, func(a, b CheckIn) int {
		return a.at.Compare(b.at)
	})

	if overflow := len(s.history) - HistoryLimit; overflow > 0 {
		s.history = slices.Delete(s.history, 0, overflow)
	}
}

// contactIndex finds a contact by id, -1 when absent.
func (s *Subject) contactIndex(id string) int {
	return slices.IndexFunc(s.contacts, func(c *Contact) bool {
		return c.id == id
	})
}

// activeContactCount counts contacts taking part in escalation.
func (s *Subject) activeContactCount() int {
	n := 0

	for _, c := range s.contacts {
		if c.active {
			n++
		}
	}

	return n
}
