package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/ballot/id"
)

// ErrLeaseLost is logged when a lease expired before it was released,
// meaning another holder may have run concurrently.
var ErrLeaseLost = errors.New("lock: lease expired before release")

// releaseScript deletes the key only if it still holds our lease token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX leases. A lease expires after TTL
// even if its holder dies, so TTL must exceed the longest vote commit
// (including the token transfer).
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

var _ Locker = (*Redis)(nil)

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix (default "ballot:lock:").
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithTTL sets the lease lifetime (default 30s).
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithRetryInterval sets how often a blocked Lock polls (default 25ms).
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.retry = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) { r.logger = logger }
}

// NewRedis creates a Redis-backed Locker.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "ballot:lock:",
		ttl:    30 * time.Second,
		retry:  25 * time.Millisecond,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock implements Locker. It polls until the lease is free or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	full := r.prefix + key
	lease := id.NewLeaseID().String()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, full, lease, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", full, err)
		}
		if ok {
			return r.unlocker(full, lease), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) unlocker(key, lease string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { r.release(key, lease) })
	}
}

func (r *Redis) release(key, lease string) {
	// Release even if the caller's context is already canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, r.client, []string{key}, lease).Int64()
	switch {
	case err != nil:
		r.logger.Error("lock: release failed", "key", key, "error", err)
	case n == 0:
		r.logger.Warn("lock: release skipped", "key", key, "error", ErrLeaseLost)
	}
}
