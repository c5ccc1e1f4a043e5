package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/lock"
	"github.com/oshokin/deadman/internal/service/escalation"
	"github.com/oshokin/deadman/internal/testutil"
)

// gatedSender holds every send until resume is closed.
type gatedSender struct {
	started chan struct{}
	resume  chan struct{}
	once    sync.Once
}

func newGatedSender() *gatedSender {
	return &gatedSender{
		started: make(chan struct{}),
		resume:  make(chan struct{}),
	}
}

func (s *gatedSender) Send(ctx context.Context, _ *liveness.Notification, _ liveness.Recipient) error {
	s.once.Do(func() { close(s.started) })

	select {
	case <-s.resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newRedisLocker(t *testing.T, mr *miniredis.Miniredis) *lock.RedisLocker {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return lock.NewRedisLocker(client, lock.RedisOptions{
		TTL:           time.Second,
		RetryInterval: 5 * time.Millisecond,
	})
}

// TestCheckIn_WhileDispatchingUnderLapsedLease keeps the campaign cancelled
// when a check-in on another instance commits after the engine's Redis
// lease expired in the middle of a dispatch.
func TestCheckIn_WhileDispatchingUnderLapsedLease(t *testing.T) {
	t.Parallel()

	var (
		ctx    = context.Background()
		mr     = miniredis.RunT(t)
		store  = testutil.NewStore(t)
		clock  = testutil.NewStubClock(testutil.T0)
		ids    = testutil.NewStubIDGenerator()
		sender = newGatedSender()
	)

	service := NewService(store, newRedisLocker(t, mr), clock, ids)
	engine := escalation.NewEngine(store, sender, newRedisLocker(t, mr), clock, ids, escalation.DefaultPolicy())

	_, err := service.RegisterSubject(ctx,
		testutil.SubjectParams("s-1", "maria@example.com", "ana@example.com", "bruno@example.com"))
	require.NoError(t, err)

	clock.Set(testutil.T0.Add(48*time.Hour + time.Minute))

	ticked := make(chan error, 1)

	go func() {
		_, tickErr := engine.Tick(ctx)
		ticked <- tickErr
	}()

	<-sender.started

	// The engine still sends, but its lease is gone.
	mr.FastForward(2 * time.Second)

	result, err := service.CheckIn(ctx, "s-1", time.Time{}, "")
	require.NoError(t, err)
	require.Equal(t, 2, result.Cancelled)

	close(sender.resume)
	require.NoError(t, <-ticked)

	notifications, err := service.Notifications(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, notifications, 2)

	for _, n := range notifications {
		require.Equal(t, liveness.StatusCancelled, n.Status())
	}

	open, err := store.Notifications().FindPendingOrSentForSubject(ctx, "s-1")
	require.NoError(t, err)
	require.Empty(t, open)
}
