package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/logger"
)

// delivery is a notification queued for dispatch in the current section.
type delivery struct {
	notification *liveness.Notification
	recipient    liveness.Recipient
	err          error
}

// evaluate runs the exclusive section of one subject in three steps:
// plan and persist transitions, dispatch without holding a transaction,
// then record the delivery outcomes. The subject lock is held throughout,
// so a concurrent check-in waits for the section to finish.
func (e *Engine) evaluate(ctx context.Context, subjectID string, now time.Time) (Report, error) {
	ctx = logger.WithKV(ctx, "subject_id", subjectID)

	release, err := e.locker.Acquire(ctx, subjectID)
	if err != nil {
		return Report{}, fmt.Errorf("lock subject: %w", err)
	}
	defer release()

	// Once started, the section completes even if the tick is cancelled.
	ctx = context.WithoutCancel(ctx)

	var (
		report Report
		outbox []*delivery
	)

	err = e.store.WithinTransaction(ctx, func(ctx context.Context) error {
		report = Report{}

		var planErr error

		outbox, planErr = e.plan(ctx, subjectID, now, &report)

		return planErr
	})

	switch {
	case isNotFound(err):
		return Report{}, nil
	case err != nil:
		return Report{}, err
	}

	report.Evaluated = 1

	if len(outbox) == 0 {
		return report, nil
	}

	e.dispatch(ctx, outbox, &report)

	err = e.store.WithinTransaction(ctx, func(ctx context.Context) error {
		return e.record(ctx, subjectID, outbox)
	})
	if err != nil {
		return report, fmt.Errorf("record deliveries: %w", err)
	}

	return report, nil
}

// plan refreshes the subject status and decides what to send.
func (e *Engine) plan(ctx context.Context, subjectID string, now time.Time, report *Report) ([]*delivery, error) {
	subject, err := e.store.Subjects().FindByID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load subject: %w", err)
	}

	if subject.IsInactive() {
		return nil, nil
	}

	if subject.RefreshStatus(now) {
		report.StatusChanges++

		if err = e.store.Subjects().Save(ctx, subject); err != nil {
			return nil, fmt.Errorf("save subject status: %w", err)
		}

		logger.InfoKV(ctx, "Subject status changed",
			"status", subject.Status().String(),
			"deadline", subject.NextDeadlineAt())
	}

	notifications, err := e.store.Notifications().FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}

	outbox, err := e.planExisting(ctx, subject, notifications, now, report)
	if err != nil {
		return nil, err
	}

	cycle := subject.NextDeadlineAt()

	if tier, ok := e.policy.reminderTier(cycle.Sub(now)); ok && !hasReminder(notifications, cycle, tier) {
		n := liveness.NewReminder(e.ids.New(), subjectID, e.policy.ReminderChannel, tier, cycle, now)

		if err = e.store.Notifications().Save(ctx, n); err != nil {
			return nil, fmt.Errorf("save reminder: %w", err)
		}

		report.Reminders++
		outbox = append(outbox, &delivery{notification: n, recipient: subject.Recipient()})

		logger.InfoKV(ctx, "Reminder scheduled", "tier", tier.String(), "deadline", cycle)
	}

	if !now.After(cycle.Add(e.policy.EmergencyDelay)) || hasCampaign(notifications, cycle) {
		return outbox, nil
	}

	contacts := subject.ActiveContactsByPriority()

	for _, c := range contacts {
		n, err := liveness.NewEmergency(e.ids.New(), subjectID, c.ID(), e.policy.EmergencyChannel, cycle, now)
		if err != nil {
			return nil, err
		}

		if err = e.store.Notifications().Save(ctx, n); err != nil {
			return nil, fmt.Errorf("save emergency: %w", err)
		}

		report.Emergencies++
		outbox = append(outbox, &delivery{notification: n, recipient: c.Recipient()})
	}

	logger.WarnKV(ctx, "Deadline missed, emergency campaign started",
		"deadline", cycle,
		"contacts", len(contacts))

	return outbox, nil
}

// planExisting handles notifications created by earlier ticks: pending
// ones left by an interrupted section, resends and retries. Notifications
// that can no longer be delivered are cancelled.
func (e *Engine) planExisting(
	ctx context.Context,
	subject *liveness.Subject,
	notifications []*liveness.Notification,
	now time.Time,
	report *Report,
) ([]*delivery, error) {
	var (
		outbox []*delivery
		cycle  = subject.NextDeadlineAt()
	)

	for _, n := range notifications {
		var deliver, resend bool

		switch {
		case n.Status() == liveness.StatusPending && n.IsEmergency():
			deliver = n.WithinCampaign(now)
		case n.Status() == liveness.StatusPending:
			deliver = n.CycleDeadline().Equal(cycle) && !now.After(cycle)
		case n.ShouldResend(now), n.ShouldRetry(now):
			deliver, resend = true, true
		default:
			continue
		}

		to, reachable := recipientFor(subject, n)

		if deliver && reachable {
			if resend {
				report.Resends++
			}

			outbox = append(outbox, &delivery{notification: n, recipient: to})

			continue
		}

		n.Cancel(now)

		if err := e.store.Notifications().Save(ctx, n); err != nil {
			return nil, fmt.Errorf("cancel notification %s: %w", n.ID(), err)
		}

		report.Cancelled++

		logger.InfoKV(ctx, "Notification cancelled", "notification_id", n.ID(), "kind", n.Kind().String())
	}

	return outbox, nil
}

// dispatch sends every queued notification in order, each bounded by the send timeout.
func (e *Engine) dispatch(ctx context.Context, outbox []*delivery, report *Report) {
	for _, d := range outbox {
		d.err = e.send(ctx, d)

		n := d.notification

		if d.err != nil {
			report.DispatchFailures++

			logger.WarnKV(ctx, "Notification dispatch failed",
				"notification_id", n.ID(),
				"kind", n.Kind().String(),
				"channel", n.Channel().String(),
				"error", d.err)

			continue
		}

		report.Delivered++

		logger.InfoKV(ctx, "Notification dispatched",
			"notification_id", n.ID(),
			"kind", n.Kind().String(),
			"channel", n.Channel().String(),
			"contact_id", n.ContactID())
	}
}

// send calls the sender on its own goroutine so that a sender ignoring
// its context still cannot hold the section past the timeout.
func (e *Engine) send(ctx context.Context, d *delivery) error {
	sendCtx, cancel := context.WithTimeout(ctx, e.policy.SendTimeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- e.sender.Send(sendCtx, d.notification, d.recipient)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: send timed out after %s", liveness.ErrDispatch, e.policy.SendTimeout)
		}

		return err
	case <-sendCtx.Done():
		return fmt.Errorf("%w: send timed out after %s", liveness.ErrDispatch, e.policy.SendTimeout)
	}
}

// record stores delivery outcomes and trims the touched histories.
func (e *Engine) record(ctx context.Context, subjectID string, outbox []*delivery) error {
	var (
		now       = e.clock.Now()
		contacts  []string
		reminders bool
	)

	for _, d := range outbox {
		n, err := e.reload(ctx, d.notification)
		if err != nil {
			return err
		}

		if n == nil {
			continue
		}

		if d.err == nil {
			err = n.MarkSent(now)
		} else {
			err = n.MarkError(d.err.Error(), now)
		}

		if err != nil {
			return err
		}

		if err = e.store.Notifications().Save(ctx, n); err != nil {
			return fmt.Errorf("save notification %s: %w", n.ID(), err)
		}

		if n.IsEmergency() {
			contacts = append(contacts, n.ContactID())
		} else {
			reminders = true
		}
	}

	for _, contactID := range lo.Uniq(contacts) {
		if err := e.store.Notifications().TrimHistory(ctx, contactID, liveness.HistoryLimit); err != nil {
			return err
		}
	}

	if reminders {
		keep := max(liveness.HistoryLimit, len(e.policy.ReminderTiers))

		if err := e.store.Notifications().TrimReminders(ctx, subjectID, keep); err != nil {
			return err
		}
	}

	return nil
}

// reload reads the stored copy of a dispatched notification. It returns nil
// when the notification was cancelled or deleted while it was being sent,
// which happens when a check-in commits after the lock lease expired.
func (e *Engine) reload(ctx context.Context, dispatched *liveness.Notification) (*liveness.Notification, error) {
	n, err := e.store.Notifications().FindByID(ctx, dispatched.ID())

	switch {
	case isNotFound(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("reload notification %s: %w", dispatched.ID(), err)
	case n.Status() == liveness.StatusCancelled:
		logger.InfoKV(ctx, "Notification cancelled during dispatch", "notification_id", n.ID())

		return nil, nil
	}

	return n, nil
}

// recipientFor resolves where a notification goes. Emergencies whose
// contact was removed or deactivated are unreachable.
func recipientFor(subject *liveness.Subject, n *liveness.Notification) (liveness.Recipient, bool) {
	if !n.IsEmergency() {
		return subject.Recipient(), true
	}

	contact, ok := subject.Contact(n.ContactID())
	if !ok || !contact.Active() {
		return liveness.Recipient{}, false
	}

	return contact.Recipient(), true
}

// hasReminder reports whether the tier already fired in this cycle.
func hasReminder(notifications []*liveness.Notification, cycle time.Time, tier time.Duration) bool {
	return lo.ContainsBy(notifications, func(n *liveness.Notification) bool {
		return !n.IsEmergency() &&
			n.Tier() == tier &&
			n.CycleDeadline().Equal(cycle) &&
			n.Status() != liveness.StatusCancelled
	})
}

// hasCampaign reports whether emergencies were already raised for this cycle.
func hasCampaign(notifications []*liveness.Notification, cycle time.Time) bool {
	return lo.ContainsBy(notifications, func(n *liveness.Notification) bool {
		return n.IsEmergency() && n.CycleDeadline().Equal(cycle)
	})
}
