package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/deadman/internal/api/grpc/monitor"
	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/logger"
	"github.com/oshokin/deadman/internal/version"
)

// Options controls the deadman-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// DatabasePath overrides the SQLite file from the settings.
	DatabasePath string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the gRPC server next to the escalation loop and blocks until
// the context is canceled or one of them fails.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "deadman-server")

	settings, err := loadSettings(opts.ConfigPath, opts.DatabasePath)
	if err != nil {
		return err
	}

	// Determine listen address: CLI argument overrides config port extraction.
	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	svc, err := newService(ctx, settings)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			logger.ErrorKV(ctx, "Failed to close service", "error", closeErr)
		}
	}()

	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterMonitorServiceServer(grpcServer, api.NewServer(svc.monitor))

	logger.InfoKV(ctx, "Deadman server listening", append([]any{
		"listen_address", listenAddress,
		"database", settings.Database.Path,
		"tick_interval", settings.Escalation.TickInterval.String(),
	}, version.KV()...)...)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return svc.engine.Run(groupCtx, settings.Escalation.TickInterval)
	})

	// Stop serving once the process is asked to stop or the loop fails.
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()

		return nil
	})

	group.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// loadSettings reads the settings file, applies the database override and
// configures the global logger.
func loadSettings(configPath, databasePath string) (*config.Config, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if databasePath != "" {
		settings.Database.Type = config.DatabaseSQLite
		settings.Database.Path = databasePath
	}

	if err = logger.Setup(settings.LogLevel, settings.LogFormat); err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	return settings, nil
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	// Port-only listen address binds on all interfaces.
	return ":" + port, nil
}
