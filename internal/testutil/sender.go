package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/oshokin/deadman/internal/domain/liveness"
)

// ErrSendFailed is returned by RecordingSender for failing recipients.
var ErrSendFailed = errors.New("send failed")

// Delivery is one call observed by RecordingSender.
type Delivery struct {
	NotificationID string
	Kind           liveness.NotificationKind
	ContactID      string
	To             liveness.Recipient
}

// RecordingSender records every call. Recipients listed with FailFor make
// the call fail; Block makes every call wait for its context.
type RecordingSender struct {
	mu         sync.Mutex
	deliveries []Delivery
	failing    map[string]bool
	block      bool
}

// NewRecordingSender creates a sender that accepts everything.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{failing: make(map[string]bool)}
}

// FailFor makes sends to the email fail until Recover is called.
func (s *RecordingSender) FailFor(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failing[email] = true
}

// Recover clears every failure.
func (s *RecordingSender) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.failing)
	s.block = false
}

// Block makes sends hang until their context is done.
func (s *RecordingSender) Block() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.block = true
}

// Send implements the sender contract.
func (s *RecordingSender) Send(ctx context.Context, n *liveness.Notification, to liveness.Recipient) error {
	s.mu.Lock()
	s.deliveries = append(s.deliveries, Delivery{
		NotificationID: n.ID(),
		Kind:           n.Kind(),
		ContactID:      n.ContactID(),
		To:             to,
	})
	fail, block := s.failing[to.Email.String()], s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()

		return ctx.Err()
	}

	if fail {
		return ErrSendFailed
	}

	return nil
}

// Deliveries returns a copy of the observed calls.
func (s *RecordingSender) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Delivery(nil), s.deliveries...)
}

// Reset forgets the observed calls.
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deliveries = nil
}
