package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/logger"
	"github.com/oshokin/deadman/internal/repository"
	"github.com/oshokin/deadman/internal/repository/sqlite/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// txKey is the context key of the running transaction.
type txKey struct{}

// querier is implemented by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements repository.Store over a migrated SQLite database.
type Store struct {
	// db is the single-connection pool.
	db *sql.DB
	// subjects persists subject aggregates.
	subjects *SubjectRepository
	// contacts persists emergency contacts.
	contacts *ContactRepository
	// notifications persists notifications.
	notifications *NotificationRepository
}

var _ repository.Store = (*Store)(nil)

// NewStoreFromConfig opens the store selected by the database settings.
func NewStoreFromConfig(cfg config.Database) (*Store, error) {
	switch cfg.Type {
	case config.DatabaseSQLite:
		if cfg.Path == "" {
			return nil, errors.New("path required for sqlite database")
		}

		return Open(filepath.Clean(cfg.Path))
	case config.DatabaseMemory:
		return Open(MemoryPath)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// Open connects to the database at path, enables foreign keys and applies
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err = migrations.MigrateUp(db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return newStore(db), nil
}

func newStore(db *sql.DB) *Store {
	s := &Store{db: db}

	s.contacts = &ContactRepository{store: s}
	s.subjects = &SubjectRepository{store: s}
	s.notifications = &NotificationRepository{store: s}

	return s
}

// Subjects returns the subject repository.
func (s *Store) Subjects() repository.SubjectRepository { return s.subjects }

// Contacts returns the contact repository.
func (s *Store) Contacts() repository.ContactRepository { return s.contacts }

// Notifications returns the notification repository.
func (s *Store) Notifications() repository.NotificationRepository { return s.notifications }

// WithinTransaction runs fn inside a transaction. A context that already
// carries a transaction is passed through unchanged.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.ErrorKV(ctx, "Failed to roll back transaction", "error", rbErr)
		}

		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// conn returns the transaction carried by ctx, or the pool.
func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}

	return s.db
}
