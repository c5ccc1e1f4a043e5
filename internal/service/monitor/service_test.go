package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/lock"
	"github.com/oshokin/deadman/internal/repository/sqlite"
	"github.com/oshokin/deadman/internal/service/escalation"
	"github.com/oshokin/deadman/internal/testutil"
)

// fixture bundles the service with an engine sharing its store, lock and clock.
type fixture struct {
	service *Service
	engine  *escalation.Engine
	store   *sqlite.Store
	clock   *testutil.StubClock
	sender  *testutil.RecordingSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	var (
		store  = testutil.NewStore(t)
		locker = lock.NewKeyedMutex()
		clock  = testutil.NewStubClock(testutil.T0)
		ids    = testutil.NewStubIDGenerator()
		sender = testutil.NewRecordingSender()
	)

	return &fixture{
		service: NewService(store, locker, clock, ids),
		engine:  escalation.NewEngine(store, sender, locker, clock, ids, escalation.DefaultPolicy()),
		store:   store,
		clock:   clock,
		sender:  sender,
	}
}

func (f *fixture) register(t *testing.T) *liveness.Subject {
	t.Helper()

	subject, err := f.service.RegisterSubject(context.Background(),
		testutil.SubjectParams("s-1", "maria@example.com", "ana@example.com", "bruno@example.com"))
	require.NoError(t, err)

	return subject
}

// TestRegisterSubject creates the subject with a 48-hour deadline and rejects a second registration.
func TestRegisterSubject(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	subject := f.register(t)
	require.Equal(t, testutil.T0.Add(48*time.Hour), subject.NextDeadlineAt())

	found, err := f.service.FindByEmail(ctx, "MARIA@example.com")
	require.NoError(t, err)
	require.Equal(t, "s-1", found.ID())

	_, err = f.service.RegisterSubject(ctx, testutil.SubjectParams("s-2", "maria@example.com", "carla@example.com"))
	require.ErrorIs(t, err, liveness.ErrSubjectExists)

	_, err = f.service.RegisterSubject(ctx, testutil.SubjectParams("s-3", "nobody@example.com"))
	require.ErrorIs(t, err, liveness.ErrContactRequired)
}

// TestRegisterSubject_GeneratesIDs fills missing subject and contact identifiers.
func TestRegisterSubject_GeneratesIDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	params := testutil.SubjectParams("", "maria@example.com", "ana@example.com")
	params.Contacts[0].ID = ""

	subject, err := f.service.RegisterSubject(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, "id-1", subject.ID())
	require.Equal(t, "id-2", subject.Contacts()[0].ID())
}

// TestCheckIn_MovesDeadline checks in and reads the status back.
func TestCheckIn_MovesDeadline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.register(t)

	f.clock.Set(testutil.T0.Add(44 * time.Hour))

	view, err := f.service.Status(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, liveness.StatusOverdue, view.Status)
	require.Equal(t, "4 hours", view.Remaining)
	require.Equal(t, 2, view.ActiveContacts)

	result, err := f.service.CheckIn(ctx, "s-1", time.Time{}, " home ")
	require.NoError(t, err)
	require.Equal(t, liveness.StatusActive, result.Status)
	require.Equal(t, testutil.T0.Add(92*time.Hour), result.NextDeadlineAt)
	require.Equal(t, "home", result.CheckIn.Location())

	view, err = f.service.Status(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, liveness.StatusActive, view.Status)
	require.InDelta(t, 48.0, view.HoursLeft, 0.001)

	history, err := f.service.History(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

// TestCheckIn_Errors maps missing subjects and rejected timestamps to domain errors.
func TestCheckIn_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.register(t)

	_, err := f.service.CheckIn(ctx, "ghost", time.Time{}, "")
	require.ErrorIs(t, err, liveness.ErrSubjectNotFound)
	require.Equal(t, liveness.KindNotFound, liveness.KindOf(err))

	_, err = f.service.CheckIn(ctx, "s-1", testutil.T0.Add(2*time.Hour), "")
	require.ErrorIs(t, err, liveness.ErrInvalidCheckIn)

	require.NoError(t, f.service.Deactivate(ctx, "s-1"))

	_, err = f.service.CheckIn(ctx, "s-1", time.Time{}, "")
	require.ErrorIs(t, err, liveness.ErrSubjectInactive)

	_, err = f.service.Status(ctx, "ghost")
	require.ErrorIs(t, err, liveness.ErrSubjectNotFound)
}

// TestCheckIn_RecoveryCancelsCampaign checks in at T0+50h while the campaign is running.
func TestCheckIn_RecoveryCancelsCampaign(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.register(t)

	f.clock.Set(testutil.T0.Add(48*time.Hour + time.Minute))

	report, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Emergencies)

	f.clock.Set(testutil.T0.Add(50 * time.Hour))

	result, err := f.service.CheckIn(ctx, "s-1", time.Time{}, "")
	require.NoError(t, err)
	require.Equal(t, liveness.StatusActive, result.Status)
	require.Equal(t, testutil.T0.Add(98*time.Hour), result.NextDeadlineAt)
	require.Equal(t, 2, result.Cancelled)

	notifications, err := f.service.Notifications(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, notifications, 2)

	for _, n := range notifications {
		require.Equal(t, liveness.StatusCancelled, n.Status())
	}

	// Nothing is resent after the recovery.
	f.sender.Reset()
	f.clock.Set(testutil.T0.Add(55 * time.Hour))

	report, err = f.engine.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Resends)
	require.Empty(t, f.sender.Deliveries())
}

// TestCheckIn_Concurrent keeps the history bounded and consistent under parallel check-ins.
func TestCheckIn_Concurrent(t *testing.T) {
	t.Parallel()

	const workers = 12

	ctx := context.Background()
	f := newFixture(t)
	f.register(t)

	var wg sync.WaitGroup

	errs := make(chan error, workers)

	for i := range workers {
		wg.Go(func() {
			at := testutil.T0.Add(time.Duration(i) * time.Minute)

			if _, err := f.service.CheckIn(ctx, "s-1", at, fmt.Sprintf("worker %d", i)); err != nil {
				errs <- err
			}
		})
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	history, err := f.service.History(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, history, liveness.HistoryLimit)

	for i := 1; i < len(history); i++ {
		require.False(t, history[i].At().Before(history[i-1].At()))
	}

	// The newest check-in wins regardless of arrival order.
	view, err := f.service.Status(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, testutil.T0.Add(11*time.Minute), view.LastCheckInAt)
	require.Equal(t, testutil.T0.Add(11*time.Minute+48*time.Hour), view.NextDeadlineAt)
}

// TestCheckIn_RacesWithTick leaves no open notification whichever section runs first.
func TestCheckIn_RacesWithTick(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.register(t)

	f.clock.Set(testutil.T0.Add(49 * time.Hour))

	var (
		wg       sync.WaitGroup
		tickErr  error
		checkErr error
	)

	wg.Go(func() {
		_, tickErr = f.engine.Tick(ctx)
	})

	wg.Go(func() {
		_, checkErr = f.service.CheckIn(ctx, "s-1", time.Time{}, "")
	})

	wg.Wait()

	require.NoError(t, tickErr)
	require.NoError(t, checkErr)

	open, err := f.store.Notifications().FindPendingOrSentForSubject(ctx, "s-1")
	require.NoError(t, err)
	require.Empty(t, open)

	view, err := f.service.Status(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, liveness.StatusActive, view.Status)
}

// TestDeactivateReactivate stops escalation and restarts the cycle.
func TestDeactivateReactivate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.register(t)

	f.clock.Set(testutil.T0.Add(48*time.Hour + time.Minute))

	_, err := f.engine.Tick(ctx)
	require.NoError(t, err)

	require.NoError(t, f.service.Deactivate(ctx, "s-1"))

	open, err := f.store.Notifications().FindPendingOrSentForSubject(ctx, "s-1")
	require.NoError(t, err)
	require.Empty(t, open)

	view, err := f.service.Status(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, liveness.StatusInactive, view.Status)

	f.clock.Set(testutil.T0.Add(72 * time.Hour))
	require.NoError(t, f.service.Reactivate(ctx, "s-1"))

	view, err = f.service.Status(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, liveness.StatusActive, view.Status)
	require.Equal(t, testutil.T0.Add(120*time.Hour), view.NextDeadlineAt)
}

// TestContacts manages the roster through the service.
func TestContacts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.register(t)

	added, err := f.service.AddContact(ctx, "s-1", liveness.ContactParams{
		Name:     "Carla",
		Email:    "carla@example.com",
		Phone:    "(21) 99888-7766",
		Priority: 3,
	})
	require.NoError(t, err)
	require.Equal(t, "s-1", added.SubjectID())

	_, err = f.service.AddContact(ctx, "s-1", liveness.ContactParams{
		Name:  "Ana again",
		Email: "ANA@example.com",
		Phone: "11999990000",
	})
	require.ErrorIs(t, err, liveness.ErrDuplicateContact)

	require.NoError(t, f.service.SetContactPriority(ctx, "s-1", added.ID(), 1))
	require.ErrorIs(t, f.service.SetContactPriority(ctx, "s-1", added.ID(), 11), liveness.ErrInvalidPriority)

	require.NoError(t, f.service.DeactivateContact(ctx, "s-1", "s-1-c1"))
	require.NoError(t, f.service.RemoveContact(ctx, "s-1", "s-1-c2"))

	// Carla is now the only active contact.
	err = f.service.RemoveContact(ctx, "s-1", added.ID())
	require.ErrorIs(t, err, liveness.ErrContactRequired)

	err = f.service.DeactivateContact(ctx, "s-1", added.ID())
	require.ErrorIs(t, err, liveness.ErrContactRequired)

	require.NoError(t, f.service.ReactivateContact(ctx, "s-1", "s-1-c1"))

	contacts, err := f.service.ListContacts(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	require.Equal(t, "s-1-c1", contacts[0].ID())
	require.True(t, contacts[0].Active())
	require.Equal(t, 1, contacts[1].Priority())

	err = f.service.RemoveContact(ctx, "s-1", "missing")
	require.ErrorIs(t, err, liveness.ErrContactNotFound)
}

// TestWatching lists every subject a person is an emergency contact for.
func TestWatching(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.register(t)

	_, err := f.service.RegisterSubject(ctx, testutil.SubjectParams("s-2", "joao@example.com", "ana@example.com"))
	require.NoError(t, err)

	watching, err := f.service.Watching(ctx, "Ana@Example.com")
	require.NoError(t, err)
	require.Len(t, watching, 2)

	_, err = f.service.Watching(ctx, "not-an-email")
	require.ErrorIs(t, err, liveness.ErrInvalidEmail)
}

// TestDelete removes the subject and reports unknown ones.
func TestDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.register(t)

	require.NoError(t, f.service.Delete(ctx, "s-1"))

	err := f.service.Delete(ctx, "s-1")
	require.True(t, errors.Is(err, liveness.ErrSubjectNotFound))

	_, err = f.service.History(ctx, "s-1")
	require.ErrorIs(t, err, liveness.ErrSubjectNotFound)
}
