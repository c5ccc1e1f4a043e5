//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/deadman/internal/config"
)

// TestDial_Options rejects an empty address and applies only positive call timeouts.
func TestDial_Options(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "")
	require.ErrorIs(t, err, errAddressRequired)

	c, err := Dial(context.Background(), "127.0.0.1:1", WithCallTimeout(-time.Second))
	require.NoError(t, err)
	require.Equal(t, config.DefaultTimeout, c.callTimeout)
	require.NoError(t, c.Close())

	c, err = Dial(context.Background(), "127.0.0.1:1", WithCallTimeout(time.Minute))
	require.NoError(t, err)
	require.Equal(t, time.Minute, c.callTimeout)
	require.NoError(t, c.Close())

	// Closing a client that never dialled is a no-op.
	require.NoError(t, new(Client).Close())
}

// TestClient_CallDeadline bounds calls only when a call timeout is set.
func TestClient_CallDeadline(t *testing.T) {
	t.Parallel()

	unbounded, cancel := new(Client).callContext(context.Background())
	_, ok := unbounded.Deadline()
	require.False(t, ok)
	cancel()
	require.ErrorIs(t, unbounded.Err(), context.Canceled)

	bounded, cancel := (&Client{callTimeout: time.Hour}).callContext(context.Background())
	defer cancel()

	deadline, ok := bounded.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(time.Hour), deadline, time.Second)
}

// TestClient_RequiredArguments keeps calls with missing identifiers off the wire.
func TestClient_RequiredArguments(t *testing.T) {
	t.Parallel()

	var (
		ctx = context.Background()
		c   = new(Client)
	)

	cases := map[string]struct {
		call func() (*structpb.Struct, error)
		want error
	}{
		"check in": {
			call: func() (*structpb.Struct, error) { return c.CheckIn(ctx, "", time.Time{}, "") },
			want: errSubjectRequired,
		},
		"status": {
			call: func() (*structpb.Struct, error) { return c.GetStatus(ctx, "") },
			want: errSubjectRequired,
		},
		"deactivate": {
			call: func() (*structpb.Struct, error) { return c.DeactivateSubject(ctx, "") },
			want: errSubjectRequired,
		},
		"add contact": {
			call: func() (*structpb.Struct, error) { return c.AddContact(ctx, "", ContactRequest{}) },
			want: errSubjectRequired,
		},
		"remove contact": {
			call: func() (*structpb.Struct, error) { return c.RemoveContact(ctx, "s-1", "") },
			want: errContactRequired,
		},
		"priority": {
			call: func() (*structpb.Struct, error) { return c.SetContactPriority(ctx, "", "c-1", 2) },
			want: errSubjectRequired,
		},
		"find": {
			call: func() (*structpb.Struct, error) { return c.FindSubject(ctx, "") },
			want: errEmailRequired,
		},
		"watching": {
			call: func() (*structpb.Struct, error) { return c.ListWatching(ctx, "") },
			want: errEmailRequired,
		},
	}

	for name, tc := range cases {
		resp, err := tc.call()
		require.ErrorIs(t, err, tc.want, name)
		require.Nil(t, resp, name)
	}
}
