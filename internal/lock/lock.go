// Package lock keeps overlapping triggers and replicas from running the pipeline at the
// same time.
//
// Redis is used when an address is configured: the lease is a SET NX PX key holding a
// random token, renewed while held and deleted only by its owner. Without Redis a
// process-local lock serializes runs inside one process.
package lock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tiercycle/tiercycle/pkg/errors"
)

const (
	defaultKey = "tiercycle:run-lock"
	defaultTTL = 5 * time.Minute
)

// Config selects the lock implementation.
type Config struct {
	// RedisAddr enables the distributed lock. Empty means process-local.
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Key           string        `yaml:"key"`
	TTL           time.Duration `yaml:"ttl"`
}

// Locker hands out at most one lease at a time.
type Locker interface {
	// TryAcquire returns a lease, or an error with code LOCK_HELD when another holder
	// owns it. It does not wait.
	TryAcquire(ctx context.Context) (*Lease, error)
	Close() error
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	Token string

	once    sync.Once
	release func(context.Context) error
	err     error
}

// Release gives the lock back.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() { l.err = l.release(ctx) })
	return l.err
}

// New returns a Redis lock when cfg.RedisAddr is set and a local one otherwise.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Locker, error) {
	if cfg.RedisAddr == "" {
		return NewLocal(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewError(errors.ErrCodeConfigLoad, "connect redis at "+cfg.RedisAddr).
			WithComponent("lock").
			WithCause(err)
	}
	return NewRedis(client, cfg.Key, cfg.TTL, logger), nil
}

// Local is a process-local Locker.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryAcquire(context.Context) (*Lease, error) {
	if !l.mu.TryLock() {
		return nil, errors.NewError(errors.ErrCodeLockHeld, "run lock held in this process").WithComponent("lock")
	}
	return &Lease{
		Token: "local",
		release: func(context.Context) error {
			l.mu.Unlock()
			return nil
		},
	}, nil
}

func (l *Local) Close() error { return nil }

// compare-and-delete and compare-and-extend keyed on the holder's token
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a Locker backed by a single Redis key.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis uses client for the lease stored at key. The lease expires after ttl unless
// renewed; renewal runs every ttl/3 while the lease is held.
func NewRedis(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *Redis {
	if key == "" {
		key = defaultKey
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With("component", "redis-lock", "key", key),
	}
}

func (r *Redis) TryAcquire(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, errors.Transient("acquire run lock", err).WithComponent("lock")
	}
	if !ok {
		return nil, errors.NewError(errors.ErrCodeLockHeld, "run lock "+r.key+" held by another runner").
			WithComponent("lock")
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.renew(token, stop, done)

	return &Lease{
		Token: token,
		release: func(ctx context.Context) error {
			close(stop)
			<-done
			if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
				return errors.Transient("release run lock", err).WithComponent("lock")
			}
			return nil
		},
	}, nil
}

func (r *Redis) renew(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		n, err := renewScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			r.logger.Warn("renewing run lock failed", "error", err)
		case n == 0:
			r.logger.Error("run lock lost before release")
			return
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var (
	_ Locker = (*Local)(nil)
	_ Locker = (*Redis)(nil)
)
