package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/lock"
	"github.com/oshokin/deadman/internal/logger"
	"github.com/oshokin/deadman/internal/repository/sqlite"
	"github.com/oshokin/deadman/internal/sender"
	"github.com/oshokin/deadman/internal/service/escalation"
	"github.com/oshokin/deadman/internal/service/monitor"
)

// service bundles the components built from one configuration.
// It is unexported to keep the commands decoupled from the wiring.
type service struct {
	// store persists subjects, contacts and notifications.
	store *sqlite.Store
	// locker serializes work on one subject.
	locker lock.Locker
	// monitor serves check-ins and queries.
	monitor *monitor.Service
	// engine runs the escalation policy.
	engine *escalation.Engine
}

// newService opens the store and builds the lock, sender, monitor and engine.
func newService(ctx context.Context, cfg *config.Config) (*service, error) {
	policy, err := escalation.PolicyFromConfig(cfg.Escalation)
	if err != nil {
		return nil, fmt.Errorf("escalation policy: %w", err)
	}

	delivery, err := sender.NewFromConfig(cfg.Sender)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	store, err := sqlite.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	locker, err := lock.NewFromConfig(ctx, cfg.Lock)
	if err != nil {
		_ = store.Close()

		return nil, fmt.Errorf("lock: %w", err)
	}

	var (
		clock liveness.Clock       = liveness.RealClock{}
		ids   liveness.IDGenerator = liveness.UUIDGenerator{}
	)

	s := &service{
		store:   store,
		locker:  locker,
		monitor: monitor.NewService(store, locker, clock, ids),
		engine:  escalation.NewEngine(store, delivery, locker, clock, ids, policy),
	}

	logger.InfoKV(ctx, "Service initialised",
		"database", cfg.Database.Type,
		"lock", cfg.Lock.Type,
		"sender", cfg.Sender.Type)

	return s, nil
}

// Close releases the store and, for Redis, the lock client.
func (s *service) Close() error {
	var errs []error

	if closer, ok := s.locker.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}

	errs = append(errs, s.store.Close())

	return errors.Join(errs...)
}
