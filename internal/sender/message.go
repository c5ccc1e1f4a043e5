package sender

import (
	"fmt"
	"time"

	"github.com/oshokin/deadman/internal/domain/liveness"
)

// Message is the rendered form of a notification.
type Message struct {
	// ID is the notification identifier, used by the gateway for deduplication.
	ID string `json:"id"`
	// Kind is "reminder" or "emergency".
	Kind string `json:"kind"`
	// Channel is "email" or "whatsapp".
	Channel string `json:"channel"`
	// To is the email address or the phone digits, depending on Channel.
	To string `json:"to"`
	// Name is the recipient display name.
	Name string `json:"name"`
	// Subject is the email subject line.
	Subject string `json:"subject"`
	// Body is the message text.
	Body string `json:"body"`
	// Attempt counts deliveries of this notification, starting at 1.
	Attempt int `json:"attempt"`
}

// deadlineLayout renders deadlines in messages.
const deadlineLayout = "Mon, 02 Jan 2006 15:04 MST"

// Compose renders a notification for a recipient.
func Compose(n *liveness.Notification, to liveness.Recipient) Message {
	msg := Message{
		ID:      n.ID(),
		Kind:    n.Kind().String(),
		Channel: n.Channel().String(),
		Name:    to.Name,
		Attempt: n.Attempts() + 1,
	}

	if n.Channel() == liveness.ChannelWhatsApp {
		msg.To = to.Phone.Digits()
	} else {
		msg.To = to.Email.String()
	}

	deadline := n.CycleDeadline().Format(deadlineLayout)

	if n.IsEmergency() {
		msg.Subject = "Emergency: check-in missed"
		msg.Body = fmt.Sprintf(
			"Hello %s, you are listed as an emergency contact. "+
				"The person you watch over missed the check-in deadline of %s. "+
				"Please try to reach them.",
			to.Name, deadline)

		return msg
	}

	msg.Subject = "Reminder: check in before " + deadline
	msg.Body = fmt.Sprintf(
		"Hello %s, your check-in expires in about %s (%s). "+
			"Check in now so your emergency contacts are not alerted.",
		to.Name, liveness.FormatRemaining(n.Tier().Round(time.Hour)), deadline)

	return msg
}
