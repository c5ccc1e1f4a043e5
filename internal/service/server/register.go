package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/logger"
)

// RegisterOptions holds the input of the register-subject command.
type RegisterOptions struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// DatabasePath overrides the SQLite file from the settings.
	DatabasePath string
	// Name is the subject display name.
	Name string
	// Email is the subject email.
	Email string
	// Phone is the subject phone.
	Phone string
	// CredentialHash is stored as-is.
	CredentialHash string
	// Contacts are "name,email,phone[,priority]" entries.
	Contacts []string
}

// errContactFormat is returned for malformed --contact values.
var errContactFormat = errors.New(`contact must look like "name,email,phone[,priority]"`)

// Register creates a subject with its emergency contacts.
func Register(ctx context.Context, opts *RegisterOptions) (*liveness.Subject, error) {
	ctx = logger.WithName(ctx, "deadman-register")

	contacts := make([]liveness.ContactParams, 0, len(opts.Contacts))

	for _, raw := range opts.Contacts {
		contact, err := ParseContact(raw)
		if err != nil {
			return nil, err
		}

		contacts = append(contacts, contact)
	}

	settings, err := loadSettings(opts.ConfigPath, opts.DatabasePath)
	if err != nil {
		return nil, err
	}

	svc, err := newService(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("initialise service: %w", err)
	}

	defer func() {
		_ = svc.Close()
	}()

	return svc.monitor.RegisterSubject(ctx, liveness.SubjectParams{
		Name:           opts.Name,
		Email:          opts.Email,
		Phone:          opts.Phone,
		CredentialHash: opts.CredentialHash,
		Contacts:       contacts,
	})
}

// ParseContact parses a "name,email,phone[,priority]" command-line value.
func ParseContact(raw string) (liveness.ContactParams, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < 3 || len(parts) > 4 {
		return liveness.ContactParams{}, fmt.Errorf("%w: %q", errContactFormat, raw)
	}

	contact := liveness.ContactParams{
		Name:  strings.TrimSpace(parts[0]),
		Email: strings.TrimSpace(parts[1]),
		Phone: strings.TrimSpace(parts[2]),
	}

	if len(parts) == 4 {
		priority, err := strconv.Atoi(strings.TrimSpace(parts[3]))
		if err != nil {
			return liveness.ContactParams{}, fmt.Errorf("%w: priority %q", errContactFormat, parts[3])
		}

		contact.Priority = priority
	}

	return contact, nil
}
