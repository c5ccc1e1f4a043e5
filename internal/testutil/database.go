package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/repository/sqlite"
)

// NewStore opens a migrated in-memory store closed at test cleanup.
func NewStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.Open(sqlite.MemoryPath)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

// SubjectParams returns valid registration input with the given contact
// emails, priorities following their order.
func SubjectParams(id, email string, contacts ...string) liveness.SubjectParams {
	params := liveness.SubjectParams{
		ID:             id,
		Name:           "Subject " + id,
		Email:          email,
		Phone:          "11987654321",
		CredentialHash: "$2a$12$opaque",
	}

	for i, c := range contacts {
		params.Contacts = append(params.Contacts, liveness.ContactParams{
			ID:       fmt.Sprintf("%s-c%d", id, i+1),
			Name:     fmt.Sprintf("Contact %d", i+1),
			Email:    c,
			Phone:    fmt.Sprintf("1199999%04d", i),
			Priority: i + 1,
		})
	}

	return params
}

// SeedSubject creates a subject registered at now and saves it.
func SeedSubject(t *testing.T, store *sqlite.Store, params liveness.SubjectParams, now time.Time) *liveness.Subject {
	t.Helper()

	subject, err := liveness.NewSubject(params, now)
	require.NoError(t, err)
	require.NoError(t, store.Subjects().Save(context.Background(), subject))

	return subject
}
