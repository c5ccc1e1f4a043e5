package liveness

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ResendInterval is the delay between emergency resends.
	ResendInterval = 6 * time.Hour
	// CampaignWindow bounds how long an emergency notification keeps resending.
	CampaignWindow = 48 * time.Hour
	// HistoryLimit is the number of check-ins kept per subject and
	// notifications kept per contact.
	HistoryLimit = 5
)

// NotificationKind tells who the notification is addressed to.
type NotificationKind int

const (
	// KindReminderToSubject is a one-shot pre-deadline reminder to the subject.
	KindReminderToSubject NotificationKind = iota + 1
	// KindEmergencyToContact is an alert to an emergency contact, resent during the campaign.
	KindEmergencyToContact
)

// String returns the persisted name of the kind.
func (k NotificationKind) String() string {
	switch k {
	case KindReminderToSubject:
		return "reminder"
	case KindEmergencyToContact:
		return "emergency"
	default:
		return "unknown"
	}
}

// ParseNotificationKind converts a persisted name back to a kind.
func ParseNotificationKind(s string) (NotificationKind, error) {
	switch s {
	case "reminder":
		return KindReminderToSubject, nil
	case "emergency":
		return KindEmergencyToContact, nil
	default:
		return 0, fmt.Errorf("unknown notification kind %q", s)
	}
}

// Channel is the delivery medium.
type Channel int

const (
	// ChannelEmail delivers by email.
	ChannelEmail Channel = iota + 1
	// ChannelWhatsApp delivers by WhatsApp message.
	ChannelWhatsApp
)

// String returns the persisted name of the channel.
func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelWhatsApp:
		return "whatsapp"
	default:
		return "unknown"
	}
}

// ParseChannel converts a configured or persisted name to a channel.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return ChannelEmail, nil
	case "whatsapp":
		return ChannelWhatsApp, nil
	default:
		return 0, fmt.Errorf("unknown notification channel %q", s)
	}
}

// NotificationStatus is the state of the notification state machine.
type NotificationStatus int

const (
	// StatusPending is a created notification not yet dispatched.
	StatusPending NotificationStatus = iota + 1
	// StatusSent is a delivered notification.
	StatusSent
	// StatusError is a notification whose last dispatch failed.
	StatusError
	// StatusCancelled is terminal; the subject recovered or opted out.
	StatusCancelled
)

// String returns the persisted name of the status.
func (s NotificationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseNotificationStatus converts a persisted name back to a status.
func ParseNotificationStatus(s string) (NotificationStatus, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "sent":
		return StatusSent, nil
	case "error":
		return StatusError, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("unknown notification status %q", s)
	}
}

// Notification is one outbound alert and its resend schedule.
type Notification struct {
	// id is the unique identifier of the notification.
	id string
	// subjectID is the subject the alert is about.
	subjectID string
	// contactID is the recipient contact, empty for reminders.
	contactID string
	// kind tells reminders from emergencies.
	kind NotificationKind
	// channel is the delivery medium.
	channel Channel
	// status is the current state.
	status NotificationStatus
	// tier is the reminder lead time before the deadline, zero for emergencies.
	tier time.Duration
	// cycleDeadline is the subject deadline this notification was raised for.
	cycleDeadline time.Time
	// createdAt starts the 48-hour campaign window.
	createdAt time.Time
	// updatedAt is the time of the last transition.
	updatedAt time.Time
	// nextResendAt is set for sent emergencies only.
	nextResendAt time.Time
	// errorDetail holds the last dispatch failure.
	errorDetail string
	// attempts counts dispatch attempts.
	attempts int
}

// NewReminder creates a pending reminder for the subject. Reminders are never resent.
func NewReminder(id, subjectID string, channel Channel, tier time.Duration, cycleDeadline, now time.Time) *Notification {
	return &Notification{
		id:            id,
		subjectID:     subjectID,
		kind:          KindReminderToSubject,
		channel:       channel,
		status:        StatusPending,
		tier:          tier,
		cycleDeadline: cycleDeadline,
		createdAt:     now,
		updatedAt:     now,
	}
}

// NewEmergency creates a pending emergency alert for a contact.
func NewEmergency(id, subjectID, contactID string, channel Channel, cycleDeadline, now time.Time) (*Notification, error) {
	if strings.TrimSpace(contactID) == "" {
		return nil, fmt.Errorf("%w: emergency notification needs a contact", ErrInvalidContact)
	}

	return &Notification{
		id:            id,
		subjectID:     subjectID,
		contactID:     contactID,
		kind:          KindEmergencyToContact,
		channel:       channel,
		status:        StatusPending,
		cycleDeadline: cycleDeadline,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// NotificationRecord is the persisted form of a notification.
type NotificationRecord struct {
	ID            string
	SubjectID     string
	ContactID     string
	Kind          NotificationKind
	Channel       Channel
	Status        NotificationStatus
	Tier          time.Duration
	CycleDeadline time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	NextResendAt  *time.Time
	ErrorDetail   string
	Attempts      int
}

// RestoreNotification rebuilds a stored notification.
func RestoreNotification(r NotificationRecord) *Notification {
	n := &Notification{
		id:            r.ID,
		subjectID:     r.SubjectID,
		contactID:     r.ContactID,
		kind:          r.Kind,
		channel:       r.Channel,
		status:        r.Status,
		tier:          r.Tier,
		cycleDeadline: r.CycleDeadline,
		createdAt:     r.CreatedAt,
		updatedAt:     r.UpdatedAt,
		errorDetail:   r.ErrorDetail,
		attempts:      r.Attempts,
	}

	if r.NextResendAt != nil {
		n.nextResendAt = *r.NextResendAt
	}

	return n
}

// Record exports the notification for persistence.
func (n *Notification) Record() NotificationRecord {
	r := NotificationRecord{
		ID:            n.id,
		SubjectID:     n.subjectID,
		ContactID:     n.contactID,
		Kind:          n.kind,
		Channel:       n.channel,
		Status:        n.status,
		Tier:          n.tier,
		CycleDeadline: n.cycleDeadline,
		CreatedAt:     n.createdAt,
		UpdatedAt:     n.updatedAt,
		ErrorDetail:   n.errorDetail,
		Attempts:      n.attempts,
	}

	if at, ok := n.NextResendAt(); ok {
		r.NextResendAt = &at
	}

	return r
}

// ID returns the notification identifier.
func (n *Notification) ID() string { return n.id }

// SubjectID returns the subject the alert is about.
func (n *Notification) SubjectID() string { return n.subjectID }

// ContactID returns the recipient contact, empty for reminders.
func (n *Notification) ContactID() string { return n.contactID }

// Kind returns the notification kind.
func (n *Notification) Kind() NotificationKind { return n.kind }

// Channel returns the delivery medium.
func (n *Notification) Channel() Channel { return n.channel }

// Status returns the current state.
func (n *Notification) Status() NotificationStatus { return n.status }

// Tier returns the reminder lead time.
func (n *Notification) Tier() time.Duration { return n.tier }

// CycleDeadline returns the deadline the notification belongs to.
func (n *Notification) CycleDeadline() time.Time { return n.cycleDeadline }

// CreatedAt returns the creation time.
func (n *Notification) CreatedAt() time.Time { return n.createdAt }

// UpdatedAt returns the time of the last transition.
func (n *Notification) UpdatedAt() time.Time { return n.updatedAt }

// ErrorDetail returns the last dispatch failure.
func (n *Notification) ErrorDetail() string { return n.errorDetail }

// Attempts returns the number of dispatch attempts.
func (n *Notification) Attempts() int { return n.attempts }

// NextResendAt returns the scheduled resend time, if any.
func (n *Notification) NextResendAt() (time.Time, bool) {
	return n.nextResendAt, !n.nextResendAt.IsZero()
}

// IsEmergency reports whether the notification targets a contact.
func (n *Notification) IsEmergency() bool {
	return n.kind == KindEmergencyToContact
}

// MarkSent records a successful dispatch and schedules the next emergency resend.
func (n *Notification) MarkSent(now time.Time) error {
	if n.status == StatusCancelled {
		return fmt.Errorf("mark %s sent: %w", n.id, ErrNotificationClosed)
	}

	n.status = StatusSent
	n.errorDetail = ""
	n.attempts++
	n.updatedAt = now

	if n.kind == KindEmergencyToContact {
		n.nextResendAt = now.Add(ResendInterval)
	}

	return nil
}

// MarkError records a failed dispatch. Whether to retry is up to the engine.
func (n *Notification) MarkError(detail string, now time.Time) error {
	if n.status == StatusCancelled {
		return fmt.Errorf("mark %s failed: %w", n.id, ErrNotificationClosed)
	}

	n.status = StatusError
	n.errorDetail = detail
	n.nextResendAt = time.Time{}
	n.attempts++
	n.updatedAt = now

	return nil
}

// Cancel moves the notification to the terminal Cancelled state.
func (n *Notification) Cancel(now time.Time) {
	if n.status == StatusCancelled {
		return
	}

	n.status = StatusCancelled
	n.nextResendAt = time.Time{}
	n.updatedAt = now
}

// WithinCampaign reports whether now is inside the 48-hour window.
func (n *Notification) WithinCampaign(now time.Time) bool {
	return now.Sub(n.createdAt) <= CampaignWindow
}

// ShouldResend is the sole authority on re-dispatching a sent emergency.
func (n *Notification) ShouldResend(now time.Time) bool {
	if n.kind != KindEmergencyToContact || n.status != StatusSent {
		return false
	}

	if n.nextResendAt.IsZero() || now.Before(n.nextResendAt) {
		return false
	}

	return n.WithinCampaign(now)
}

// ShouldRetry reports whether a failed emergency is attempted again.
// Reminders are one-shot and never retried.
func (n *Notification) ShouldRetry(now time.Time) bool {
	return n.kind == KindEmergencyToContact &&
		n.status == StatusError &&
		n.WithinCampaign(now)
}

// IsOpen reports whether the notification still needs attention:
// pending, sent, or a failed emergency that will be retried.
func (n *Notification) IsOpen() bool {
	switch n.status {
	case StatusPending, StatusSent:
		return true
	case StatusError:
		return n.kind == KindEmergencyToContact
	default:
		return false
	}
}
