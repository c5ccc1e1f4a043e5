package liveness

import (
	"fmt"
	"strings"
	"time"
)

const (
	// HighestPriority is the priority of contacts notified first.
	HighestPriority = 1
	// LowestPriority is the largest accepted priority value.
	LowestPriority = 10
)

// ContactParams holds the input for a new emergency contact.
type ContactParams struct {
	// ID is the identifier assigned by the caller.
	ID string
	// SubjectID is the subject the contact will be attached to.
	SubjectID string
	// Name is the contact display name.
	Name string
	// Email is the raw email address.
	Email string
	// Phone is the raw WhatsApp number.
	Phone string
	// Priority orders contacts during a campaign, 1 is contacted first.
	// Zero means HighestPriority.
	Priority int
}

// Contact is a person notified when a subject misses the deadline.
type Contact struct {
	// id is the unique identifier of the contact.
	id string
	// subjectID is the owning subject.
	subjectID string
	// name is the contact display name.
	name string
	// email is the validated email.
	email Email
	// phone is the validated WhatsApp number.
	phone Phone
	// priority is the 1..10 campaign order.
	priority int
	// active excludes the contact from escalation when false.
	active bool
	// createdAt breaks priority ties.
	createdAt time.Time
}

// NewContact validates params and creates an active contact.
func NewContact(p ContactParams, now time.Time) (*Contact, error) {
	if strings.TrimSpace(p.SubjectID) == "" {
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidContact)
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidContact)
	}

	priority := p.Priority
	if priority == 0 {
		priority = HighestPriority
	}

	if err := validatePriority(priority); err != nil {
		return nil, err
	}

	email, err := ParseEmail(p.Email)
	if err != nil {
		return nil, fmt.Errorf("contact %q: %w", name, err)
	}

	phone, err := ParsePhone(p.Phone)
	if err != nil {
		return nil, fmt.Errorf("contact %q: %w", name, err)
	}

	return &Contact{
		id:        p.ID,
		subjectID: p.SubjectID,
		name:      name,
		email:     email,
		phone:     phone,
		priority:  priority,
		active:    true,
		createdAt: now,
	}, nil
}

// ContactRecord is the persisted form of a contact.
type ContactRecord struct {
	ID        string
	SubjectID string
	Name      string
	Email     string
	Phone     string
	Priority  int
	Active    bool
	CreatedAt time.Time
}

// RestoreContact rebuilds a stored contact, re-validating identifiers.
func RestoreContact(r ContactRecord) (*Contact, error) {
	email, err := ParseEmail(r.Email)
	if err != nil {
		return nil, fmt.Errorf("restore contact %s: %w", r.ID, err)
	}

	phone, err := ParsePhone(r.Phone)
	if err != nil {
		return nil, fmt.Errorf("restore contact %s: %w", r.ID, err)
	}

	return &Contact{
		id:        r.ID,
		subjectID: r.SubjectID,
		name:      r.Name,
		email:     email,
		phone:     phone,
		priority:  r.Priority,
		active:    r.Active,
		createdAt: r.CreatedAt,
	}, nil
}

// Record exports the contact for persistence.
func (c *Contact) Record() ContactRecord {
	return ContactRecord{
		ID:        c.id,
		SubjectID: c.subjectID,
		Name:      c.name,
		Email:     c.email.String(),
		Phone:     c.phone.String(),
		Priority:  c.priority,
		Active:    c.active,
		CreatedAt: c.createdAt,
	}
}

// ID returns the contact identifier.
func (c *Contact) ID() string { return c.id }

// SubjectID returns the owning subject.
func (c *Contact) SubjectID() string { return c.subjectID }

// Name returns the display name.
func (c *Contact) Name() string { return c.name }

// Email returns the validated email.
func (c *Contact) Email() Email { return c.email }

// Phone returns the validated WhatsApp number.
func (c *Contact) Phone() Phone { return c.phone }

// Priority returns the campaign order, 1 first.
func (c *Contact) Priority() int { return c.priority }

// Active reports whether the contact takes part in escalation.
func (c *Contact) Active() bool { return c.active }

// CreatedAt returns the creation time.
func (c *Contact) CreatedAt() time.Time { return c.createdAt }

// Recipient returns the delivery address of the contact.
func (c *Contact) Recipient() Recipient {
	return Recipient{
		Name:  c.name,
		Email: c.email,
		Phone: c.phone,
	}
}

// deactivate excludes the contact from escalation.
func (c *Contact) deactivate() { c.active = false }

// reactivate includes the contact in escalation again.
func (c *Contact) reactivate() { c.active = true }

// setPriority changes the campaign order.
func (c *Contact) setPriority(priority int) error {
	if err := validatePriority(priority); err != nil {
		return err
	}

	c.priority = priority

	return nil
}

// clone returns a copy safe to hand out of the aggregate.
func (c *Contact) clone() *Contact {
	cloned := *c

	return &cloned
}

// validatePriority checks the 1..10 range.
func validatePriority(priority int) error {
	if priority < HighestPriority || priority > LowestPriority {
		return fmt.Errorf("%w: got %d", ErrInvalidPriority, priority)
	}

	return nil
}

// Recipient is the address a notification is delivered to.
type Recipient struct {
	// Name is the display name used in the message.
	Name string
	// Email is the destination for the email channel.
	Email Email
	// Phone is the destination for the WhatsApp channel.
	Phone Phone
}
