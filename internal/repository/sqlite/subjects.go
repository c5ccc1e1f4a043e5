package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/repository"
)

const subjectColumns = "id, name, email, phone, credential_hash, status, last_check_in_at, created_at, updated_at"

// SubjectRepository implements repository.SubjectRepository. Subjects are
// stored across the subjects, check_ins and contacts tables.
type SubjectRepository struct {
	store *Store
}

var _ repository.SubjectRepository = (*SubjectRepository)(nil)

// FindByID returns the aggregate or repository.ErrNotFound.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*liveness.Subject, error) {
	return r.findOne(ctx, "SELECT "+subjectColumns+" FROM subjects WHERE id = ?", id)
}

// FindByEmail returns the subject registered with email or repository.ErrNotFound.
func (r *SubjectRepository) FindByEmail(ctx context.Context, email liveness.Email) (*liveness.Subject, error) {
	return r.findOne(ctx, "SELECT "+subjectColumns+" FROM subjects WHERE email = ?", email.String())
}

// List returns all subjects ordered by registration time.
func (r *SubjectRepository) List(ctx context.Context) ([]*liveness.Subject, error) {
	return r.findMany(ctx, "SELECT "+subjectColumns+" FROM subjects ORDER BY created_at, id")
}

// ListOverdue returns monitored subjects whose deadline is not after before,
// earliest deadline first.
func (r *SubjectRepository) ListOverdue(ctx context.Context, before time.Time) ([]*liveness.Subject, error) {
	return r.findMany(ctx,
		"SELECT "+subjectColumns+" FROM subjects WHERE status != ? AND next_deadline_at <= ? ORDER BY next_deadline_at, id",
		liveness.StatusInactive.String(), toUnix(before))
}

// Save writes the subject row and replaces its history and roster in one transaction.
func (r *SubjectRepository) Save(ctx context.Context, subject *liveness.Subject) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		rec := subject.Record()

		if err := r.saveRow(ctx, rec); err != nil {
			return err
		}

		if err := r.saveHistory(ctx, rec); err != nil {
			return err
		}

		return r.saveContacts(ctx, subject)
	})
}

// Delete removes the subject with its history, contacts and notifications.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.store.conn(ctx).ExecContext(ctx, "DELETE FROM subjects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete subject %s: %w", id, err)
	}

	return requireAffected(res)
}

func (r *SubjectRepository) saveRow(ctx context.Context, rec liveness.SubjectRecord) error {
	const query = `
		INSERT INTO subjects (id, name, email, phone, credential_hash, status,
			last_check_in_at, next_deadline_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			credential_hash = excluded.credential_hash,
			status = excluded.status,
			last_check_in_at = excluded.last_check_in_at,
			next_deadline_at = excluded.next_deadline_at,
			updated_at = excluded.updated_at`

	_, err := r.store.conn(ctx).ExecContext(ctx, query,
		rec.ID, rec.Name, rec.Email, rec.Phone, rec.CredentialHash, rec.Status.String(),
		toUnix(rec.LastCheckInAt), toUnix(rec.LastCheckInAt.Add(liveness.CheckInValidity)),
		toUnix(rec.CreatedAt), toUnix(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save subject %s: %w", rec.ID, err)
	}

	return nil
}

func (r *SubjectRepository) saveHistory(ctx context.Context, rec liveness.SubjectRecord) error {
	conn := r.store.conn(ctx)

	if _, err := conn.ExecContext(ctx, "DELETE FROM check_ins WHERE subject_id = ?", rec.ID); err != nil {
		return fmt.Errorf("clear history of %s: %w", rec.ID, err)
	}

	for i, c := range rec.History {
		_, err := conn.ExecContext(ctx,
			"INSERT INTO check_ins (id, subject_id, at, location, position) VALUES (?, ?, ?, ?, ?)",
			c.ID(), rec.ID, toUnix(c.At()), c.Location(), i)
		if err != nil {
			return fmt.Errorf("save check-in %s: %w", c.ID(), err)
		}
	}

	return nil
}

func (r *SubjectRepository) saveContacts(ctx context.Context, subject *liveness.Subject) error {
	stored, err := r.store.contacts.FindByOwner(ctx, subject.ID())
	if err != nil {
		return err
	}

	current := subject.Contacts()
	currentIDs := lo.Map(current, func(c *liveness.Contact, _ int) string { return c.ID() })

	for _, c := range stored {
		if lo.Contains(currentIDs, c.ID()) {
			continue
		}

		if err = r.store.contacts.Delete(ctx, c.ID()); err != nil {
			return err
		}
	}

	for i, c := range current {
		if err = r.store.contacts.save(ctx, c, i); err != nil {
			return err
		}
	}

	return nil
}

func (r *SubjectRepository) findOne(ctx context.Context, query string, args ...any) (*liveness.Subject, error) {
	rec, err := scanSubject(r.store.conn(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return r.assemble(ctx, rec)
}

// findMany drains the rows before loading children: the pool has a single
// connection, so nested queries would wait for it forever.
func (r *SubjectRepository) findMany(ctx context.Context, query string, args ...any) ([]*liveness.Subject, error) {
	rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}

	var records []liveness.SubjectRecord

	for rows.Next() {
		rec, err := scanSubject(rows)
		if err != nil {
			_ = rows.Close()

			return nil, err
		}

		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		_ = rows.Close()

		return nil, fmt.Errorf("iterate subjects: %w", err)
	}

	_ = rows.Close()

	subjects := make([]*liveness.Subject, 0, len(records))

	for _, rec := range records {
		subject, err := r.assemble(ctx, rec)
		if err != nil {
			return nil, err
		}

		subjects = append(subjects, subject)
	}

	return subjects, nil
}

func (r *SubjectRepository) assemble(ctx context.Context, rec liveness.SubjectRecord) (*liveness.Subject, error) {
	history, err := r.loadHistory(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	contacts, err := r.store.contacts.FindByOwner(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	rec.History = history
	rec.Contacts = lo.Map(contacts, func(c *liveness.Contact, _ int) liveness.ContactRecord { return c.Record() })

	return liveness.RestoreSubject(rec)
}

func (r *SubjectRepository) loadHistory(ctx context.Context, subjectID string) ([]liveness.CheckIn, error) {
	rows, err := r.store.conn(ctx).QueryContext(ctx,
		"SELECT id, at, location FROM check_ins WHERE subject_id = ? ORDER BY position", subjectID)
	if err != nil {
		return nil, fmt.Errorf("query history of %s: %w", subjectID, err)
	}
	defer rows.Close()

	var history []liveness.CheckIn

	for rows.Next() {
		var (
			id, location string
			at           int64
		)

		if err = rows.Scan(&id, &at, &location); err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}

		history = append(history, liveness.RestoreCheckIn(id, subjectID, fromUnix(at), location))
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history of %s: %w", subjectID, err)
	}

	return history, nil
}

func scanSubject(s scanner) (liveness.SubjectRecord, error) {
	var (
		rec                              liveness.SubjectRecord
		status                           string
		lastCheckIn, createdAt, updateAt int64
	)

	err := s.Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Phone, &rec.CredentialHash,
		&status, &lastCheckIn, &createdAt, &updateAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}

		return rec, fmt.Errorf("scan subject: %w", err)
	}

	if rec.Status, err = liveness.ParseStatus(status); err != nil {
		return rec, err
	}

	rec.LastCheckInAt = fromUnix(lastCheckIn)
	rec.CreatedAt = fromUnix(createdAt)
	rec.UpdatedAt = fromUnix(updateAt)

	return rec, nil
}
