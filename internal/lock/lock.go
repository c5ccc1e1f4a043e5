package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/deadman/internal/config"
)

// Locker hands out exclusive sections keyed by string.
type Locker interface {
	// Acquire blocks until key is held or ctx is done. The returned release
	// function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// errUnknownLockType is returned for unsupported lock settings.
var errUnknownLockType = errors.New("unknown lock type")

// NewFromConfig builds the locker selected by the lock settings.
// A Redis locker must be closed by the caller.
func NewFromConfig(ctx context.Context, cfg config.Lock) (Locker, error) {
	switch cfg.Type {
	case config.LockMemory, "":
		return NewKeyedMutex(), nil
	case config.LockRedis:
		return DialRedis(ctx, RedisOptions{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownLockType, cfg.Type)
	}
}
