package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/oshokin/deadman/internal/logger"
)

const (
	// DefaultKeyPrefix namespaces lock keys in a shared Redis.
	DefaultKeyPrefix = "deadman:lock:"
	// DefaultRetryInterval is the pause between two SET NX attempts.
	DefaultRetryInterval = 50 * time.Millisecond
	// DefaultTTL is the lease duration used when none is configured.
	DefaultTTL = 30 * time.Second
	// releaseTimeout bounds the release call, which runs on a fresh context.
	releaseTimeout = 5 * time.Second
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisOptions configures a RedisLocker.
type RedisOptions struct {
	// Address is the host:port of the Redis server.
	Address string
	// Password authenticates the connection.
	Password string
	// DB is the logical database.
	DB int
	// TTL is the lease duration. The holder extends it every TTL/3 until
	// release, so it only lapses when the holder stops renewing.
	TTL time.Duration
	// RetryInterval is the polling period while the key is taken.
	RetryInterval time.Duration
	// KeyPrefix namespaces the keys.
	KeyPrefix string
}

// RedisLocker is a Locker shared by every process using the same Redis.
type RedisLocker struct {
	client *redis.Client
	opts   RedisOptions
}

// DialRedis connects to Redis and verifies the connection with PING.
func DialRedis(ctx context.Context, opts RedisOptions) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis %s: %w", opts.Address, err)
	}

	return NewRedisLocker(client, opts), nil
}

// NewRedisLocker wraps an existing client. Zero options take defaults.
func NewRedisLocker(client *redis.Client, opts RedisOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}

	return &RedisLocker{
		client: client,
		opts:   opts,
	}
}

// Acquire implements Locker by polling SET NX PX until it succeeds.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	var (
		redisKey = l.opts.KeyPrefix + key
		token    = uuid.NewString()
	)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			return nil, fmt.Errorf("acquire %s: %w", redisKey, err)
		}

		if ok {
			renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
			renewed := make(chan struct{})

			go l.renew(renewCtx, redisKey, token, renewed)

			return l.releaser(ctx, redisKey, token, stop, renewed), nil
		}

		timer := time.NewTimer(l.opts.RetryInterval)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Close closes the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// renew extends the lease until ctx is cancelled or the lease is lost.
func (l *RedisLocker) renew(ctx context.Context, redisKey, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(max(l.opts.TTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		kept, err := renewScript.Run(ctx, l.client, []string{redisKey}, token, l.opts.TTL.Milliseconds()).Int()

		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			logger.WarnKV(ctx, "Failed to renew lock", "key", redisKey, "error", err)
		case kept == 0:
			logger.WarnKV(ctx, "Lock lease lost", "key", redisKey)

			return
		}
	}
}

func (l *RedisLocker) releaser(ctx context.Context, redisKey, token string, stop func(), renewed <-chan struct{}) func() {
	return func() {
		stop()
		<-renewed

		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			logger.ErrorKV(ctx, "Failed to release lock", "key", redisKey, "error", err)
		}
	}
}
