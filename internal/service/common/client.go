//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/deadman/internal/api/grpc/monitor"
	"github.com/oshokin/deadman/internal/config"
)

// Client calls deadman.v1.MonitorService with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the deadman server.
	conn *grpc.ClientConn

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errSubjectRequired is returned when a call is made without a subject id.
	errSubjectRequired = errors.New("subject id must be provided")
	// errContactRequired is returned when a roster call is made without a contact id.
	errContactRequired = errors.New("contact id must be provided")
	// errEmailRequired is returned when a lookup is made without an email.
	errEmailRequired = errors.New("email must be provided")
)

// Dial creates a client for the deadman server.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial deadman server: %w", err)
	}

	client := &Client{
		conn:        conn,
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// CheckIn confirms the subject is safe. A zero at lets the server use its own clock.
func (c *Client) CheckIn(ctx context.Context, subjectID string, at time.Time, location string) (*structpb.Struct, error) {
	fields := map[string]any{
		monitor.FieldSubjectID: subjectID,
		monitor.FieldLocation:  location,
	}

	if !at.IsZero() {
		fields[monitor.FieldAt] = at.UTC().Format(monitor.TimeLayout)
	}

	if subjectID == "" {
		return nil, errSubjectRequired
	}

	resp, err := c.invoke(ctx, monitor.CheckInMethod, fields)
	if err != nil {
		return nil, fmt.Errorf("check in: %w", err)
	}

	return resp, nil
}

// GetStatus retrieves the subject status.
func (c *Client) GetStatus(ctx context.Context, subjectID string) (*structpb.Struct, error) {
	return c.bySubject(ctx, "get status", monitor.GetStatusMethod, subjectID)
}

// ListHistory retrieves the retained check-ins of the subject.
func (c *Client) ListHistory(ctx context.Context, subjectID string) (*structpb.Struct, error) {
	return c.bySubject(ctx, "list history", monitor.ListHistoryMethod, subjectID)
}

// ListNotifications retrieves the notifications raised for the subject.
func (c *Client) ListNotifications(ctx context.Context, subjectID string) (*structpb.Struct, error) {
	return c.bySubject(ctx, "list notifications", monitor.ListNotificationsMethod, subjectID)
}

// FindSubject looks a subject up by email.
func (c *Client) FindSubject(ctx context.Context, email string) (*structpb.Struct, error) {
	return c.byEmail(ctx, "find subject", monitor.FindSubjectMethod, email)
}

// DeactivateSubject switches monitoring off for the subject.
func (c *Client) DeactivateSubject(ctx context.Context, subjectID string) (*structpb.Struct, error) {
	return c.bySubject(ctx, "deactivate subject", monitor.DeactivateSubjectMethod, subjectID)
}

// ReactivateSubject switches monitoring back on for the subject.
func (c *Client) ReactivateSubject(ctx context.Context, subjectID string) (*structpb.Struct, error) {
	return c.bySubject(ctx, "reactivate subject", monitor.ReactivateSubjectMethod, subjectID)
}

// DeleteSubject removes the subject.
func (c *Client) DeleteSubject(ctx context.Context, subjectID string) (*structpb.Struct, error) {
	return c.bySubject(ctx, "delete subject", monitor.DeleteSubjectMethod, subjectID)
}

// ListContacts retrieves the roster of the subject.
func (c *Client) ListContacts(ctx context.Context, subjectID string) (*structpb.Struct, error) {
	return c.bySubject(ctx, "list contacts", monitor.ListContactsMethod, subjectID)
}

// ContactRequest describes a contact to add.
type ContactRequest struct {
	Name     string
	Email    string
	Phone    string
	Priority int
}

// AddContact attaches a new emergency contact to the subject.
func (c *Client) AddContact(ctx context.Context, subjectID string, contact ContactRequest) (*structpb.Struct, error) {
	if subjectID == "" {
		return nil, errSubjectRequired
	}

	resp, err := c.invoke(ctx, monitor.AddContactMethod, map[string]any{
		monitor.FieldSubjectID: subjectID,
		monitor.FieldName:      contact.Name,
		monitor.FieldEmail:     contact.Email,
		monitor.FieldPhone:     contact.Phone,
		monitor.FieldPriority:  contact.Priority,
	})
	if err != nil {
		return nil, fmt.Errorf("add contact: %w", err)
	}

	return resp, nil
}

// RemoveContact deletes a contact of the subject.
func (c *Client) RemoveContact(ctx context.Context, subjectID, contactID string) (*structpb.Struct, error) {
	return c.byContact(ctx, "remove contact", monitor.RemoveContactMethod, subjectID, contactID, nil)
}

// DeactivateContact excludes a contact from escalation.
func (c *Client) DeactivateContact(ctx context.Context, subjectID, contactID string) (*structpb.Struct, error) {
	return c.byContact(ctx, "deactivate contact", monitor.DeactivateContactMethod, subjectID, contactID, nil)
}

// ReactivateContact includes a contact in escalation again.
func (c *Client) ReactivateContact(ctx context.Context, subjectID, contactID string) (*structpb.Struct, error) {
	return c.byContact(ctx, "reactivate contact", monitor.ReactivateContactMethod, subjectID, contactID, nil)
}

// SetContactPriority changes the campaign order of a contact.
func (c *Client) SetContactPriority(ctx context.Context, subjectID, contactID string, priority int) (*structpb.Struct, error) {
	return c.byContact(ctx, "set contact priority", monitor.SetContactPriorityMethod, subjectID, contactID,
		map[string]any{monitor.FieldPriority: priority})
}

// ListWatching retrieves the subjects a person is an emergency contact of.
func (c *Client) ListWatching(ctx context.Context, email string) (*structpb.Struct, error) {
	return c.byEmail(ctx, "list watching", monitor.ListWatchingMethod, email)
}

func (c *Client) bySubject(ctx context.Context, operation, method, subjectID string) (*structpb.Struct, error) {
	if subjectID == "" {
		return nil, errSubjectRequired
	}

	resp, err := c.invoke(ctx, method, map[string]any{monitor.FieldSubjectID: subjectID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	return resp, nil
}

func (c *Client) byEmail(ctx context.Context, operation, method, email string) (*structpb.Struct, error) {
	if email == "" {
		return nil, errEmailRequired
	}

	resp, err := c.invoke(ctx, method, map[string]any{monitor.FieldEmail: email})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	return resp, nil
}

func (c *Client) byContact(
	ctx context.Context,
	operation, method, subjectID, contactID string,
	extra map[string]any,
) (*structpb.Struct, error) {
	if subjectID == "" {
		return nil, errSubjectRequired
	}

	if contactID == "" {
		return nil, errContactRequired
	}

	fields := map[string]any{
		monitor.FieldSubjectID: subjectID,
		monitor.FieldContactID: contactID,
	}

	maps.Copy(fields, extra)

	resp, err := c.invoke(ctx, method, fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	return resp, nil
}

// invoke sends one unary call with Struct messages.
func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp := new(structpb.Struct)
	if err = c.conn.Invoke(callCtx, method, req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
