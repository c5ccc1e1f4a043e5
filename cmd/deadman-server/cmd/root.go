package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/service/server"
	"github.com/oshokin/deadman/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// databasePath overrides the SQLite file from the configuration.
	databasePath string
	// tickSubject limits the tick command to one subject.
	tickSubject string
	// registration collects the register command flags.
	registration server.RegisterOptions

	// rootCmd represents the base command for running the deadman server.
	rootCmd = &cobra.Command{
		Use:   "deadman-server [listen-address]",
		Short: "Run the deadman monitor: gRPC check-in API and escalation loop.",
		Long: `Starts the gRPC monitor API that receives check-ins together with the escalation
loop that reminds subjects before their deadline and alerts emergency contacts after it.

Only the port from server_addr in the configuration is used for listening (e.g., :7007).
Listen address can be provided as argument to override config (e.g., :9090, 0.0.0.0:7007).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return server.Run(ctx, &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				DatabasePath:  databasePath,
			})
		},
	}

	// tickCmd runs one escalation pass and exits.
	tickCmd = &cobra.Command{
		Use:   "tick",
		Short: "Evaluate every subject once and exit.",
		Long:  "Runs a single escalation pass, for deployments that schedule the engine with cron instead of a long-running server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			report, err := server.RunTick(ctx, &server.TickOptions{
				ConfigPath:   configPath,
				DatabasePath: databasePath,
				SubjectID:    tickSubject,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", report)

			return err
		},
	}

	// registerCmd creates a subject with its emergency contacts.
	registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Register a subject with its emergency contacts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registration.ConfigPath = configPath
			registration.DatabasePath = databasePath

			subject, err := server.Register(cmd.Context(), &registration)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "subject %s registered, first deadline %s\n",
				subject.ID(), subject.NextDeadlineAt().Format("2006-01-02 15:04 MST"))

			return err
		},
	}
)

// Execute runs the deadman-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&databasePath, "database", "d", "", "path to the SQLite database, overrides the configuration")

	tickCmd.Flags().StringVar(&tickSubject, "subject", "", "evaluate only this subject")

	registerCmd.Flags().StringVar(&registration.Name, "name", "", "subject name")
	registerCmd.Flags().StringVar(&registration.Email, "email", "", "subject email")
	registerCmd.Flags().StringVar(&registration.Phone, "phone", "", "subject phone, 11 digits")
	registerCmd.Flags().StringVar(&registration.CredentialHash, "credential-hash", "", "opaque credential hash to store")
	registerCmd.Flags().
		StringArrayVar(&registration.Contacts, "contact", nil, `emergency contact "name,email,phone[,priority]", repeatable`)

	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("contact")

	rootCmd.AddCommand(tickCmd, registerCmd)
}
