package sender

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/logger"
)

var deadline = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func testRecipient(t *testing.T) liveness.Recipient {
	t.Helper()

	email, err := liveness.ParseEmail("bia@example.com")
	require.NoError(t, err)

	phone, err := liveness.ParsePhone("+55 (11) 99999-0000")
	require.NoError(t, err)

	return liveness.Recipient{Name: "Bia", Email: email, Phone: phone}
}

func testEmergency(t *testing.T) *liveness.Notification {
	t.Helper()

	n, err := liveness.NewEmergency("n-1", "s-1", "c-1", liveness.ChannelWhatsApp, deadline, deadline.Add(time.Minute))
	require.NoError(t, err)

	return n
}

// TestCompose picks the address by channel and renders the deadline.
func TestCompose(t *testing.T) {
	t.Parallel()

	to := testRecipient(t)

	msg := Compose(testEmergency(t), to)
	require.Equal(t, "11999990000", msg.To)
	require.Equal(t, "emergency", msg.Kind)
	require.Equal(t, 1, msg.Attempt)
	require.Contains(t, msg.Body, "Wed, 04 Mar 2026 09:00 UTC")

	reminder := liveness.NewReminder("r-1", "s-1", liveness.ChannelEmail, 6*time.Hour, deadline, deadline.Add(-6*time.Hour))
	msg = Compose(reminder, to)
	require.Equal(t, "bia@example.com", msg.To)
	require.Equal(t, "reminder", msg.Kind)
	require.Contains(t, msg.Body, "6 hours")
}

// TestHTTPSender_Delivers posts the message with the bearer token.
func TestHTTPSender_Delivers(t *testing.T) {
	t.Parallel()

	var got Message

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != messagesPath || r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	s := NewHTTPSender(HTTPOptions{BaseURL: srv.URL, Token: "secret", Timeout: time.Second})

	require.NoError(t, s.Send(context.Background(), testEmergency(t), testRecipient(t)))
	require.Equal(t, "n-1", got.ID)
	require.Equal(t, "whatsapp", got.Channel)
}

// TestHTTPSender_RetriesServerErrors retries 5xx answers before succeeding.
func TestHTTPSender_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	s := NewHTTPSender(HTTPOptions{BaseURL: srv.URL, Retries: 2, Timeout: time.Second})

	require.NoError(t, s.Send(context.Background(), testEmergency(t), testRecipient(t)))
	require.Equal(t, int32(3), calls.Load())
}

// TestHTTPSender_ClientErrorIsDispatchFailure surfaces the gateway message.
func TestHTTPSender_ClientErrorIsDispatchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"unknown number"}`))
	}))
	t.Cleanup(srv.Close)

	s := NewHTTPSender(HTTPOptions{BaseURL: srv.URL, Retries: 2, Timeout: time.Second})

	err := s.Send(context.Background(), testEmergency(t), testRecipient(t))
	require.ErrorIs(t, err, liveness.ErrDispatch)
	require.Equal(t, liveness.KindDispatchFailure, liveness.KindOf(err))
	require.Contains(t, err.Error(), "unknown number")
}

// TestHTTPSender_ContextTimeout gives up when the caller's deadline passes.
func TestHTTPSender_ContextTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)

		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
	})

	s := NewHTTPSender(HTTPOptions{BaseURL: srv.URL, Timeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, testEmergency(t), testRecipient(t))
	require.ErrorIs(t, err, liveness.ErrDispatch)
}

// TestLogSender_IgnoresServiceLevel logs deliveries even when the service runs at warn.
func TestLogSender_IgnoresServiceLevel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	require.NoError(t, NewLogSender().Send(ctx, testEmergency(t), testRecipient(t)))

	entries := logs.FilterMessage("Notification delivered to log").All()
	require.Len(t, entries, 1)
	require.Equal(t, "n-1", entries[0].ContextMap()["notification_id"])
}

// TestNewFromConfig selects the backend by type.
func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	s, err := NewFromConfig(config.Sender{Type: config.SenderLog})
	require.NoError(t, err)
	require.IsType(t, &LogSender{}, s)

	s, err = NewFromConfig(config.Sender{Type: config.SenderHTTP, BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	require.IsType(t, &HTTPSender{}, s)

	_, err = NewFromConfig(config.Sender{Type: "carrier-pigeon"})
	require.Error(t, err)
}
