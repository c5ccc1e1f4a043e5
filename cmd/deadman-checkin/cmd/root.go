package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/service/client"
	"github.com/oshokin/deadman/internal/service/common"
	"github.com/oshokin/deadman/internal/version"
)

var (
	// options collects the shared client flags.
	options client.Options
	// at is the optional RFC 3339 check-in time.
	at string
	// statusQuery selects the extra parts of the status report.
	statusQuery client.StatusQuery
	// newContact holds the flags of "contacts add".
	newContact common.ContactRequest

	// rootCmd represents the base command that checks in.
	rootCmd = &cobra.Command{
		Use:   "deadman-checkin <subject-id>",
		Short: "Confirm that the subject is safe.",
		Long: `Sends a check-in for the subject to the deadman server. The subject deadline moves
to 48 hours after the check-in and any running emergency campaign is cancelled.

The location defaults to username@hostname of the machine the command runs on.
With --wait the command keeps retrying while the server is unreachable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.SubjectID = args[0]
			options.Output = cmd.OutOrStdout()

			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}

				options.At = parsed
			}

			return client.RunCheckIn(cmd.Context(), &options)
		},
	}

	// statusCmd prints the subject status.
	statusCmd = &cobra.Command{
		Use:   "status <subject-id>",
		Short: "Print the subject status and deadline.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.SubjectID = args[0]
			options.Output = cmd.OutOrStdout()

			return client.RunStatus(cmd.Context(), &options, statusQuery)
		},
	}

	findCmd = &cobra.Command{
		Use:   "find <email>",
		Short: "Look a subject up by email.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
				return c.FindSubject(ctx, args[0])
			})
		},
	}

	deactivateCmd = &cobra.Command{
		Use:   "deactivate <subject-id>",
		Short: "Switch monitoring off and cancel pending alerts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
				return c.DeactivateSubject(ctx, args[0])
			})
		},
	}

	reactivateCmd = &cobra.Command{
		Use:   "reactivate <subject-id>",
		Short: "Switch monitoring back on with a fresh 48-hour cycle.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
				return c.ReactivateSubject(ctx, args[0])
			})
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <subject-id>",
		Short: "Remove the subject with its history, contacts and notifications.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
				return c.DeleteSubject(ctx, args[0])
			})
		},
	}

	watchingCmd = &cobra.Command{
		Use:   "watching <email>",
		Short: "List the subjects a person is an emergency contact of.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
				return c.ListWatching(ctx, args[0])
			})
		},
	}

	contactsCmd = &cobra.Command{
		Use:   "contacts <subject-id>",
		Short: "List and manage emergency contacts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
				return c.ListContacts(ctx, args[0])
			})
		},
	}

	contactsAddCmd = &cobra.Command{
		Use:   "add <subject-id>",
		Short: "Add an emergency contact.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
				return c.AddContact(ctx, args[0], newContact)
			})
		},
	}

	contactsRemoveCmd = rosterCommand("remove", "Remove an emergency contact.",
		(*common.Client).RemoveContact)

	contactsDeactivateCmd = rosterCommand("deactivate", "Exclude a contact from alerts.",
		(*common.Client).DeactivateContact)

	contactsReactivateCmd = rosterCommand("reactivate", "Include a contact in alerts again.",
		(*common.Client).ReactivateContact)

	contactsPriorityCmd = &cobra.Command{
		Use:   "priority <subject-id> <contact-id> <1-10>",
		Short: "Change the order in which a contact is alerted.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid priority %q: %w", args[2], err)
			}

			return run(cmd, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
				return c.SetContactPriority(ctx, args[0], args[1], priority)
			})
		},
	}
)

// run performs one call and prints the reply.
func run(cmd *cobra.Command, call client.Call) error {
	options.Output = cmd.OutOrStdout()

	return client.Run(cmd.Context(), &options, call)
}

// rosterCommand builds a "contacts <verb> <subject-id> <contact-id>" command.
func rosterCommand(
	verb, short string,
	call func(*common.Client, context.Context, string, string) (*structpb.Struct, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <subject-id> <contact-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, c *common.Client) (*structpb.Struct, error) {
				return call(c, ctx, args[0], args[1])
			})
		},
	}
}

// Execute runs the deadman-checkin CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&options.ServerAddress, "server", "s", "", "server address, overrides the configuration")

	rootCmd.Flags().StringVar(&at, "at", "", "check-in time in RFC 3339, defaults to now")
	rootCmd.Flags().StringVarP(&options.Location, "location", "l", "", "free-text location")
	rootCmd.Flags().BoolVarP(&options.Wait, "wait", "w", false, "retry until the server is reachable")

	statusCmd.Flags().BoolVar(&statusQuery.History, "history", false, "also print the check-in history")
	statusCmd.Flags().BoolVar(&statusQuery.Contacts, "contacts", false, "also print the emergency contacts")
	statusCmd.Flags().BoolVar(&statusQuery.Notifications, "notifications", false, "also print the notifications")

	contactsAddCmd.Flags().StringVar(&newContact.Name, "name", "", "contact name")
	contactsAddCmd.Flags().StringVar(&newContact.Email, "email", "", "contact email")
	contactsAddCmd.Flags().StringVar(&newContact.Phone, "phone", "", "contact WhatsApp number, 11 digits")
	contactsAddCmd.Flags().IntVar(&newContact.Priority, "priority", 1, "alert order, 1 is alerted first")

	for _, name := range []string{"name", "email", "phone"} {
		_ = contactsAddCmd.MarkFlagRequired(name)
	}

	contactsCmd.AddCommand(contactsAddCmd, contactsRemoveCmd, contactsDeactivateCmd,
		contactsReactivateCmd, contactsPriorityCmd)

	rootCmd.AddCommand(statusCmd, findCmd, deactivateCmd, reactivateCmd, deleteCmd, watchingCmd, contactsCmd)
}
