// Package lease provides the build lease that keeps two processes from
// indexing the same learning item at once.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/abhisek/vidtutor/internal/logger"
)

// releaseScript deletes the key only if this holder still owns it.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// extendScript pushes the expiry out only if this holder still owns it.
const extendScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// Config controls lease timing.
type Config struct {
	// TTL is how long a lease survives without renewal. Held leases are
	// renewed every TTL/3.
	TTL time.Duration

	// RetryInterval is the wait between acquisition attempts.
	RetryInterval time.Duration
}

// DefaultConfig returns the recommended lease timing.
func DefaultConfig() Config {
	return Config{
		TTL:           time.Minute,
		RetryInterval: 500 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.TTL < 3*time.Millisecond {
		return fmt.Errorf("lease ttl too short: %s", c.TTL)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("lease retry interval must be positive, got %s", c.RetryInterval)
	}
	return nil
}

// Open connects to the redis server at url.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// RedisLocker holds leases as redis keys set with SET NX PX and a random
// owner token.
type RedisLocker struct {
	client redis.Cmdable
	config Config
	logger *slog.Logger
}

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client redis.Cmdable, cfg Config, log *slog.Logger) *RedisLocker {
	return &RedisLocker{client: client, config: cfg, logger: logger.OrDefault(log)}
}

// Lock blocks until key is held or ctx is done. While held, the lease is
// renewed in the background; the returned func stops renewal and releases
// it.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.config.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.config.RetryInterval):
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.renew(key, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.client.Eval(rctx, releaseScript, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger.Warn("release lease failed", "key", key, "error", err)
			}
		})
	}, nil
}

func (l *RedisLocker) renew(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.config.TTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.config.TTL/3)
			n, err := l.client.Eval(ctx, extendScript, []string{key}, token, l.config.TTL.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				l.logger.Warn("renew lease failed", "key", key, "error", err)
			case n == 0:
				l.logger.Warn("lease lost", "key", key)
				return
			}
		}
	}
}

// NopLocker grants every lease immediately. It is used when no redis
// server is configured; in-process deduplication still applies.
type NopLocker struct{}

func (NopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}
