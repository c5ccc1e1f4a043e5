package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/repository"
)

const notificationColumns = `id, subject_id, contact_id, kind, channel, status, tier, cycle_deadline,
	created_at, updated_at, next_resend_at, error_detail, attempts`

// NotificationRepository implements repository.NotificationRepository.
type NotificationRepository struct {
	store *Store
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

// Save inserts or updates a notification.
func (r *NotificationRepository) Save(ctx context.Context, n *liveness.Notification) error {
	const query = `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			next_resend_at = excluded.next_resend_at,
			error_detail = excluded.error_detail,
			attempts = excluded.attempts`

	rec := n.Record()

	_, err := r.store.conn(ctx).ExecContext(ctx, query,
		rec.ID, rec.SubjectID, toNullString(rec.ContactID), rec.Kind.String(), rec.Channel.String(),
		rec.Status.String(), int64(rec.Tier), toUnix(rec.CycleDeadline),
		toUnix(rec.CreatedAt), toUnix(rec.UpdatedAt), toNullUnix(rec.NextResendAt),
		rec.ErrorDetail, rec.Attempts)
	if err != nil {
		return fmt.Errorf("save notification %s: %w", rec.ID, err)
	}

	return nil
}

// FindByID returns the notification or repository.ErrNotFound.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*liveness.Notification, error) {
	row := r.store.conn(ctx).QueryRowContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id)

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}

	return n, err
}

// FindBySubject returns every notification raised for a subject.
func (r *NotificationRepository) FindBySubject(ctx context.Context, subjectID string) ([]*liveness.Notification, error) {
	return r.query(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE subject_id = ? ORDER BY created_at, rowid",
		subjectID)
}

// FindPendingOrSentForSubject returns the notifications that recovery must cancel.
func (r *NotificationRepository) FindPendingOrSentForSubject(
	ctx context.Context,
	subjectID string,
) ([]*liveness.Notification, error) {
	return r.query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE subject_id = ?
		  AND (status IN (?, ?) OR (status = ? AND kind = ?))
		ORDER BY created_at, rowid`,
		subjectID,
		liveness.StatusPending.String(), liveness.StatusSent.String(),
		liveness.StatusError.String(), liveness.KindEmergencyToContact.String())
}

// FindDueForResend returns sent emergencies whose resend time has come and
// failed emergencies, both limited to campaigns younger than 48 hours.
func (r *NotificationRepository) FindDueForResend(ctx context.Context, now time.Time) ([]*liveness.Notification, error) {
	return r.query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE kind = ?
		  AND created_at >= ?
		  AND ((status = ? AND next_resend_at <= ?) OR status = ?)
		ORDER BY created_at, rowid`,
		liveness.KindEmergencyToContact.String(),
		toUnix(now.Add(-liveness.CampaignWindow)),
		liveness.StatusSent.String(), toUnix(now),
		liveness.StatusError.String())
}

// TrimHistory deletes all but the keep most recent notifications of a contact.
func (r *NotificationRepository) TrimHistory(ctx context.Context, contactID string, keep int) error {
	const query = `
		DELETE FROM notifications
		WHERE contact_id = ?
		  AND id NOT IN (
			SELECT id FROM notifications WHERE contact_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		  )`

	if _, err := r.store.conn(ctx).ExecContext(ctx, query, contactID, contactID, keep); err != nil {
		return fmt.Errorf("trim notifications of contact %s: %w", contactID, err)
	}

	return nil
}

// TrimReminders deletes all but the keep most recent reminders of a subject.
func (r *NotificationRepository) TrimReminders(ctx context.Context, subjectID string, keep int) error {
	const query = `
		DELETE FROM notifications
		WHERE subject_id = ? AND kind = ?
		  AND id NOT IN (
			SELECT id FROM notifications WHERE subject_id = ? AND kind = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		  )`

	kind := liveness.KindReminderToSubject.String()

	if _, err := r.store.conn(ctx).ExecContext(ctx, query, subjectID, kind, subjectID, kind, keep); err != nil {
		return fmt.Errorf("trim reminders of subject %s: %w", subjectID, err)
	}

	return nil
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...any) ([]*liveness.Notification, error) {
	rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*liveness.Notification

	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, n)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return out, nil
}

func scanNotification(s scanner) (*liveness.Notification, error) {
	var (
		rec                   liveness.NotificationRecord
		contactID             sql.NullString
		kind, channel, status string
		tier, cycleDeadline   int64
		createdAt, updatedAt  int64
		nextResendAt          sql.NullInt64
	)

	err := s.Scan(&rec.ID, &rec.SubjectID, &contactID, &kind, &channel, &status, &tier, &cycleDeadline,
		&createdAt, &updatedAt, &nextResendAt, &rec.ErrorDetail, &rec.Attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("scan notification: %w", err)
	}

	if rec.Kind, err = liveness.ParseNotificationKind(kind); err != nil {
		return nil, err
	}

	if rec.Channel, err = liveness.ParseChannel(channel); err != nil {
		return nil, err
	}

	if rec.Status, err = liveness.ParseNotificationStatus(status); err != nil {
		return nil, err
	}

	rec.ContactID = contactID.String
	rec.Tier = time.Duration(tier)
	rec.CycleDeadline = fromUnix(cycleDeadline)
	rec.CreatedAt = fromUnix(createdAt)
	rec.UpdatedAt = fromUnix(updatedAt)
	rec.NextResendAt = fromNullUnix(nextResendAt)

	return liveness.RestoreNotification(rec), nil
}
