package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/deadman/internal/api/grpc/monitor"
	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/logger"
	"github.com/oshokin/deadman/internal/service/common"
)

// Options configures the check-in client.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// ServerAddress overrides server address from config when specified.
	ServerAddress string

	// SubjectID is the subject checking in.
	SubjectID string

	// At backdates the check-in; zero lets the server use its clock.
	At time.Time

	// Location is free text; empty means username@hostname.
	Location string

	// Wait keeps retrying while the server is unreachable.
	Wait bool

	// Output receives the JSON response, os.Stdout when nil.
	Output io.Writer
}

// defaultPushInterval defines retry delay when the server is unreachable.
const defaultPushInterval = 5 * time.Second

// RunCheckIn sends a check-in and prints the server reply.
// With Wait set, transport failures are retried until success or cancellation.
func RunCheckIn(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "deadman-checkin")

	client, err := dial(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	location := opts.Location
	if location == "" {
		actor, err := common.DetectActor()
		if err != nil {
			return err
		}

		location = actor.Location()
	}

	logger.InfoKV(ctx, "Sending check-in", "subject_id", opts.SubjectID, "location", location)

	// attempt tries once, returns (completed, error).
	attempt := func() (bool, error) {
		resp, err := client.CheckIn(ctx, opts.SubjectID, opts.At, location)

		switch {
		case err == nil:
			logger.InfoKV(ctx, "Check-in accepted",
				"status", resp.GetFields()[api.FieldStatus].GetStringValue(),
				"next_deadline_at", resp.GetFields()[api.FieldNextDeadlineAt].GetStringValue())

			return true, printJSON(opts.Output, resp)
		case opts.Wait && retryable(err):
			// Keep the subject's confirmation until the server is back.
			logger.WarnKV(ctx, "Server unreachable, will retry", "error", err)

			return false, nil
		default:
			return false, err
		}
	}

	if done, err := attempt(); err != nil || done {
		return err
	}

	ticker := time.NewTicker(defaultPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := attempt()
			if err != nil || done {
				return err
			}
		}
	}
}

// Call is one request against the monitor service.
type Call func(ctx context.Context, client *common.Client) (*structpb.Struct, error)

// Run connects to the server, performs the calls in order and prints every
// reply. It stops at the first failing call.
func Run(ctx context.Context, opts *Options, calls ...Call) error {
	ctx = logger.WithName(ctx, "deadman-admin")

	client, err := dial(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	for _, call := range calls {
		resp, err := call(ctx, client)
		if err != nil {
			return err
		}

		if err = printJSON(opts.Output, resp); err != nil {
			return err
		}
	}

	return nil
}

// StatusQuery selects the optional parts of a status report.
type StatusQuery struct {
	// History adds the retained check-ins.
	History bool
	// Notifications adds the raised notifications.
	Notifications bool
	// Contacts adds the roster.
	Contacts bool
}

// RunStatus prints the subject status followed by the parts the query asks for.
func RunStatus(ctx context.Context, opts *Options, query StatusQuery) error {
	subjectID := opts.SubjectID
	calls := []Call{
		func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
			return c.GetStatus(ctx, subjectID)
		},
	}

	if query.History {
		calls = append(calls, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
			return c.ListHistory(ctx, subjectID)
		})
	}

	if query.Contacts {
		calls = append(calls, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
			return c.ListContacts(ctx, subjectID)
		})
	}

	if query.Notifications {
		calls = append(calls, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
			return c.ListNotifications(ctx, subjectID)
		})
	}

	return Run(ctx, opts, calls...)
}

// dial loads the settings and connects to the configured or overridden server.
func dial(ctx context.Context, opts *Options) (*common.Client, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	logger.DebugKV(ctx, "Connecting", "server_address", serverAddress)

	return common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
}

// retryable reports whether the call failed before reaching the service logic.
func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// printJSON writes the response as indented JSON.
func printJSON(w io.Writer, resp *structpb.Struct) error {
	if w == nil {
		w = os.Stdout
	}

	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}
