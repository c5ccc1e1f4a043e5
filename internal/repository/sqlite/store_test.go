package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/repository"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStoreFromConfig(config.Database{Type: config.DatabaseMemory})
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func newTestSubject(t *testing.T, id, email string, contacts ...string) *liveness.Subject {
	t.Helper()

	params := liveness.SubjectParams{
		ID:             id,
		Name:           "Subject " + id,
		Email:          email,
		Phone:          "11987654321",
		CredentialHash: "hash",
	}

	for i, c := range contacts {
		params.Contacts = append(params.Contacts, liveness.ContactParams{
			ID:       id + "-c" + fmt.Sprint(i+1),
			Name:     "Contact " + c,
			Email:    c,
			Phone:    "11999990000",
			Priority: len(contacts) - i,
		})
	}

	s, err := liveness.NewSubject(params, t0)
	require.NoError(t, err)

	return s
}

// TestSubjects_SaveAndLoad round-trips the whole aggregate.
func TestSubjects_SaveAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	s := newTestSubject(t, "s-1", "ana@example.com", "bia@example.com", "caio@example.com")

	for i := range 3 {
		_, err := s.RecordCheckIn(fmt.Sprintf("ci-%d", i), t0.Add(time.Duration(i)*time.Hour), "home", t0.Add(3*time.Hour))
		require.NoError(t, err)
	}

	require.NoError(t, store.Subjects().Save(ctx, s))

	loaded, err := store.Subjects().FindByID(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, s.Record(), loaded.Record())

	email, err := liveness.ParseEmail("ANA@example.com")
	require.NoError(t, err)

	byEmail, err := store.Subjects().FindByEmail(ctx, email)
	require.NoError(t, err)
	require.Equal(t, "s-1", byEmail.ID())

	_, err = store.Subjects().FindByID(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

// TestSubjects_SaveReplacesRoster removes contacts that left the aggregate.
func TestSubjects_SaveReplacesRoster(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	s := newTestSubject(t, "s-1", "ana@example.com", "bia@example.com", "caio@example.com")
	require.NoError(t, store.Subjects().Save(ctx, s))

	require.NoError(t, s.RemoveContact("s-1-c1", t0))
	require.NoError(t, store.Subjects().Save(ctx, s))

	contacts, err := store.Contacts().FindByOwner(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, "s-1-c2", contacts[0].ID())

	_, err = store.Contacts().FindByID(ctx, "s-1-c1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

// TestSubjects_ListOverdue skips inactive subjects and future deadlines.
func TestSubjects_ListOverdue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	late := newTestSubject(t, "late", "late@example.com", "x@example.com")
	fresh := newTestSubject(t, "fresh", "fresh@example.com", "y@example.com")
	off := newTestSubject(t, "off", "off@example.com", "z@example.com")

	_, err := fresh.RecordCheckIn("ci-1", t0.Add(40*time.Hour), "", t0.Add(40*time.Hour))
	require.NoError(t, err)

	off.Deactivate(t0)

	for _, s := range []*liveness.Subject{late, fresh, off} {
		require.NoError(t, store.Subjects().Save(ctx, s))
	}

	overdue, err := store.Subjects().ListOverdue(ctx, t0.Add(50*time.Hour))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, "late", overdue[0].ID())

	all, err := store.Subjects().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

// TestSubjects_DeleteCascades drops history, contacts and notifications.
func TestSubjects_DeleteCascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	s := newTestSubject(t, "s-1", "ana@example.com", "bia@example.com")
	require.NoError(t, store.Subjects().Save(ctx, s))

	n, err := liveness.NewEmergency("n-1", "s-1", "s-1-c1", liveness.ChannelWhatsApp, s.NextDeadlineAt(), t0)
	require.NoError(t, err)
	require.NoError(t, store.Notifications().Save(ctx, n))

	require.NoError(t, store.Subjects().Delete(ctx, "s-1"))
	require.ErrorIs(t, store.Subjects().Delete(ctx, "s-1"), repository.ErrNotFound)

	_, err = store.Notifications().FindByID(ctx, "n-1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	contacts, err := store.Contacts().FindByOwner(ctx, "s-1")
	require.NoError(t, err)
	require.Empty(t, contacts)
}

// TestContacts_FindByEmailGlobal finds the same person across subjects.
func TestContacts_FindByEmailGlobal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Subjects().Save(ctx, newTestSubject(t, "s-1", "ana@example.com", "bia@example.com")))
	require.NoError(t, store.Subjects().Save(ctx, newTestSubject(t, "s-2", "caio@example.com", "bia@example.com")))

	email, err := liveness.ParseEmail("bia@example.com")
	require.NoError(t, err)

	contacts, err := store.Contacts().FindByEmailGlobal(ctx, email)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
}

// TestContacts_SaveAppendsToRoster places new contacts after existing ones.
func TestContacts_SaveAppendsToRoster(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Subjects().Save(ctx, newTestSubject(t, "s-1", "ana@example.com", "bia@example.com")))

	c, err := liveness.NewContact(liveness.ContactParams{
		ID: "extra", SubjectID: "s-1", Name: "Extra", Email: "extra@example.com", Phone: "11911112222", Priority: 3,
	}, t0)
	require.NoError(t, err)
	require.NoError(t, store.Contacts().Save(ctx, c))

	loaded, err := store.Subjects().FindByID(ctx, "s-1")
	require.NoError(t, err)

	contacts := loaded.Contacts()
	require.Len(t, contacts, 2)
	require.Equal(t, "extra", contacts[1].ID())
	require.Equal(t, 3, contacts[1].Priority())
}

// TestNotifications_FindDueForResend selects resends and retries inside the window.
func TestNotifications_FindDueForResend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	s := newTestSubject(t, "s-1", "ana@example.com", "bia@example.com")
	require.NoError(t, store.Subjects().Save(ctx, s))

	deadline := s.NextDeadlineAt()
	campaignStart := deadline.Add(time.Minute)

	sent, err := liveness.NewEmergency("sent", "s-1", "s-1-c1", liveness.ChannelWhatsApp, deadline, campaignStart)
	require.NoError(t, err)
	require.NoError(t, sent.MarkSent(campaignStart))

	failed, err := liveness.NewEmergency("failed", "s-1", "s-1-c1", liveness.ChannelWhatsApp, deadline, campaignStart)
	require.NoError(t, err)
	require.NoError(t, failed.MarkError("timeout", campaignStart))

	reminder := liveness.NewReminder("rem", "s-1", liveness.ChannelEmail, 2*time.Hour, deadline, campaignStart)
	require.NoError(t, reminder.MarkError("smtp", campaignStart))

	for _, n := range []*liveness.Notification{sent, failed, reminder} {
		require.NoError(t, store.Notifications().Save(ctx, n))
	}

	due, err := store.Notifications().FindDueForResend(ctx, campaignStart.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{"failed"}, notificationIDs(due))

	due, err = store.Notifications().FindDueForResend(ctx, campaignStart.Add(6*time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{"sent", "failed"}, notificationIDs(due))

	due, err = store.Notifications().FindDueForResend(ctx, campaignStart.Add(49*time.Hour))
	require.NoError(t, err)
	require.Empty(t, due)

	open, err := store.Notifications().FindPendingOrSentForSubject(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, []string{"sent", "failed"}, notificationIDs(open))

	loaded, err := store.Notifications().FindByID(ctx, "sent")
	require.NoError(t, err)
	require.Equal(t, sent.Record(), loaded.Record())
}

// TestNotifications_TrimHistory keeps the five most recent records per contact.
func TestNotifications_TrimHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Subjects().Save(ctx, newTestSubject(t, "s-1", "ana@example.com", "bia@example.com")))

	for i := range 7 {
		at := t0.Add(time.Duration(i) * time.Hour)

		n, err := liveness.NewEmergency(fmt.Sprintf("n-%d", i), "s-1", "s-1-c1", liveness.ChannelEmail, at, at)
		require.NoError(t, err)
		require.NoError(t, store.Notifications().Save(ctx, n))

		r := liveness.NewReminder(fmt.Sprintf("r-%d", i), "s-1", liveness.ChannelEmail, time.Hour, at, at)
		require.NoError(t, store.Notifications().Save(ctx, r))
	}

	require.NoError(t, store.Notifications().TrimHistory(ctx, "s-1-c1", liveness.HistoryLimit))
	require.NoError(t, store.Notifications().TrimReminders(ctx, "s-1", 2))

	all, err := store.Notifications().FindBySubject(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, []string{"n-2", "n-3", "n-4", "n-5", "r-5", "n-6", "r-6"}, notificationIDs(all))
}

// TestWithinTransaction_RollsBack discards every write when fn fails.
func TestWithinTransaction_RollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	errBoom := errors.New("boom")

	err := store.WithinTransaction(ctx, func(ctx context.Context) error {
		s := newTestSubject(t, "s-1", "ana@example.com", "bia@example.com")
		if err := store.Subjects().Save(ctx, s); err != nil {
			return err
		}

		// Reads inside the transaction see its writes.
		if _, err := store.Subjects().FindByID(ctx, "s-1"); err != nil {
			return err
		}

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = store.Subjects().FindByID(ctx, "s-1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func notificationIDs(ns []*liveness.Notification) []string {
	ids := make([]string, 0, len(ns))
	for _, n := range ns {
		ids = append(ids, n.ID())
	}

	return ids
}
