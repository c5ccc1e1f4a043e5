package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestEmergency creates an emergency notification created at t0.
func newTestEmergency(t *testing.T) *Notification {
	t.Helper()

	n, err := NewEmergency("n-1", "s-1", "c-1", ChannelWhatsApp, t0, t0)
	require.NoError(t, err)

	return n
}

// TestNewEmergency_RequiresContact rejects an empty contact id.
func TestNewEmergency_RequiresContact(t *testing.T) {
	t.Parallel()

	_, err := NewEmergency("n-1", "s-1", "", ChannelEmail, t0, t0)
	require.ErrorIs(t, err, ErrInvalidContact)
}

// TestReminder_NeverResends verifies reminders stay one-shot after being sent.
func TestReminder_NeverResends(t *testing.T) {
	t.Parallel()

	n := NewReminder("n-1", "s-1", ChannelEmail, 6*time.Hour, t0.Add(48*time.Hour), t0)
	require.Equal(t, StatusPending, n.Status())
	require.Empty(t, n.ContactID())

	require.NoError(t, n.MarkSent(t0))

	_, scheduled := n.NextResendAt()
	require.False(t, scheduled)
	require.False(t, n.ShouldResend(t0.Add(7*time.Hour)))

	require.NoError(t, n.MarkError("smtp down", t0))
	require.False(t, n.ShouldRetry(t0.Add(time.Minute)))
	require.False(t, n.IsOpen())
}

// TestEmergency_ResendWindow walks the 6-hour and 48-hour boundaries.
func TestEmergency_ResendWindow(t *testing.T) {
	t.Parallel()

	n := newTestEmergency(t)
	require.False(t, n.ShouldResend(t0), "pending is never resent")

	require.NoError(t, n.MarkSent(t0))

	next, ok := n.NextResendAt()
	require.True(t, ok)
	require.Equal(t, t0.Add(6*time.Hour), next)

	require.False(t, n.ShouldResend(t0.Add(6*time.Hour-time.Nanosecond)))
	require.True(t, n.ShouldResend(t0.Add(6*time.Hour)))

	// Keep resending every 6 hours.
	for sent := t0.Add(6 * time.Hour); sent.Before(t0.Add(48 * time.Hour)); sent = sent.Add(6 * time.Hour) {
		require.True(t, n.ShouldResend(sent))
		require.NoError(t, n.MarkSent(sent))
	}

	require.True(t, n.ShouldResend(t0.Add(48*time.Hour)))
	require.False(t, n.ShouldResend(t0.Add(48*time.Hour+time.Nanosecond)))
	require.False(t, n.ShouldResend(t0.Add(100*time.Hour)))
}

// TestEmergency_ErrorIsRetriedInsideCampaign checks the retry rule for failed emergencies.
func TestEmergency_ErrorIsRetriedInsideCampaign(t *testing.T) {
	t.Parallel()

	n := newTestEmergency(t)
	require.NoError(t, n.MarkError("gateway timeout", t0))
	require.Equal(t, StatusError, n.Status())
	require.Equal(t, "gateway timeout", n.ErrorDetail())
	require.True(t, n.IsOpen())

	require.True(t, n.ShouldRetry(t0.Add(time.Hour)))
	require.False(t, n.ShouldRetry(t0.Add(49*time.Hour)))
	require.False(t, n.ShouldResend(t0.Add(7*time.Hour)))

	require.NoError(t, n.MarkSent(t0.Add(time.Hour)))
	require.Empty(t, n.ErrorDetail())
	require.Equal(t, 2, n.Attempts())
}

// TestCancel_IsTerminal ensures Cancel clears the schedule and rejects later transitions.
func TestCancel_IsTerminal(t *testing.T) {
	t.Parallel()

	n := newTestEmergency(t)
	require.NoError(t, n.MarkSent(t0))

	n.Cancel(t0.Add(time.Hour))
	require.Equal(t, StatusCancelled, n.Status())

	_, scheduled := n.NextResendAt()
	require.False(t, scheduled)
	require.False(t, n.ShouldResend(t0.Add(7*time.Hour)))
	require.False(t, n.IsOpen())

	err := n.MarkSent(t0.Add(2 * time.Hour))
	require.ErrorIs(t, err, ErrNotificationClosed)
	require.Equal(t, KindInvariantViolation, KindOf(err))
	require.ErrorIs(t, n.MarkError("late", t0.Add(2*time.Hour)), ErrNotificationClosed)
	require.Equal(t, StatusCancelled, n.Status())

	// Cancelling twice keeps the original cancellation time.
	n.Cancel(t0.Add(3 * time.Hour))
	require.Equal(t, t0.Add(time.Hour), n.UpdatedAt())
}

// TestNotification_RecordRoundTrip checks that persistence keeps the schedule.
func TestNotification_RecordRoundTrip(t *testing.T) {
	t.Parallel()

	n := newTestEmergency(t)
	require.NoError(t, n.MarkSent(t0))

	restored := RestoreNotification(n.Record())
	require.Equal(t, n, restored)
}

// TestParseEnums covers names used in configuration and storage.
func TestParseEnums(t *testing.T) {
	t.Parallel()

	ch, err := ParseChannel(" WhatsApp ")
	require.NoError(t, err)
	require.Equal(t, ChannelWhatsApp, ch)

	_, err = ParseChannel("sms")
	require.Error(t, err)

	for _, st := range []NotificationStatus{StatusPending, StatusSent, StatusError, StatusCancelled} {
		parsed, err := ParseNotificationStatus(st.String())
		require.NoError(t, err)
		require.Equal(t, st, parsed)
	}

	for _, st := range []Status{StatusActive, StatusOverdue, StatusCriticalAlert, StatusInactive} {
		parsed, err := ParseStatus(st.String())
		require.NoError(t, err)
		require.Equal(t, st, parsed)
	}
}
