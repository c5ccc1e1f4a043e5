package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/repository"
)

const contactColumns = "id, subject_id, name, email, phone, priority, active, created_at"

// ContactRepository implements repository.ContactRepository.
type ContactRepository struct {
	store *Store
}

var _ repository.ContactRepository = (*ContactRepository)(nil)

// Save inserts or updates a contact. New contacts are appended to the
// end of the owner's roster.
func (r *ContactRepository) Save(ctx context.Context, contact *liveness.Contact) error {
	const query = `
		SELECT COALESCE(
			(SELECT position FROM contacts WHERE id = ?),
			(SELECT COALESCE(MAX(position), -1) + 1 FROM contacts WHERE subject_id = ?)
		)`

	var position int
	if err := r.store.conn(ctx).QueryRowContext(ctx, query, contact.ID(), contact.SubjectID()).Scan(&position); err != nil {
		return fmt.Errorf("resolve contact position: %w", err)
	}

	return r.save(ctx, contact, position)
}

func (r *ContactRepository) save(ctx context.Context, contact *liveness.Contact, position int) error {
	const query = `
		INSERT INTO contacts (id, subject_id, name, email, phone, priority, active, created_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			priority = excluded.priority,
			active = excluded.active,
			position = excluded.position`

	rec := contact.Record()

	_, err := r.store.conn(ctx).ExecContext(ctx, query,
		rec.ID, rec.SubjectID, rec.Name, rec.Email, rec.Phone,
		rec.Priority, boolToInt(rec.Active), toUnix(rec.CreatedAt), position)
	if err != nil {
		return fmt.Errorf("save contact %s: %w", rec.ID, err)
	}

	return nil
}

// FindByID returns the contact or repository.ErrNotFound.
func (r *ContactRepository) FindByID(ctx context.Context, id string) (*liveness.Contact, error) {
	row := r.store.conn(ctx).QueryRowContext(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE id = ?", id)

	contact, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}

	return contact, err
}

// FindByOwner returns the roster of a subject in insertion order.
func (r *ContactRepository) FindByOwner(ctx context.Context, subjectID string) ([]*liveness.Contact, error) {
	return r.query(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE subject_id = ? ORDER BY position", subjectID)
}

// FindByEmailGlobal returns every contact registered with email.
func (r *ContactRepository) FindByEmailGlobal(ctx context.Context, email liveness.Email) ([]*liveness.Contact, error) {
	return r.query(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE email = ? ORDER BY created_at, id", email.String())
}

// Delete removes a contact and, through the foreign key, its notifications.
func (r *ContactRepository) Delete(ctx context.Context, id string) error {
	res, err := r.store.conn(ctx).ExecContext(ctx, "DELETE FROM contacts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete contact %s: %w", id, err)
	}

	return requireAffected(res)
}

func (r *ContactRepository) query(ctx context.Context, query string, args ...any) ([]*liveness.Contact, error) {
	rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*liveness.Contact

	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}

		contacts = append(contacts, contact)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}

	return contacts, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanContact(s scanner) (*liveness.Contact, error) {
	var (
		rec       liveness.ContactRecord
		active    int
		createdAt int64
	)

	err := s.Scan(&rec.ID, &rec.SubjectID, &rec.Name, &rec.Email, &rec.Phone, &rec.Priority, &active, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("scan contact: %w", err)
	}

	rec.Active = active != 0
	rec.CreatedAt = fromUnix(createdAt)

	return liveness.RestoreContact(rec)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		return repository.ErrNotFound
	}

	return nil
}
