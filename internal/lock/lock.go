package lock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"medallion/pkg/errors"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL bounds how long a crashed run can hold the lock
const DefaultTTL = time.Hour

// Locker guarantees a single writer per key
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// Acquire takes the lock or fails with ErrCodeRunInProgress. The returned
// function releases it.
func Acquire(ctx context.Context, l Locker, key string, ttl time.Duration) (func(context.Context) error, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.ErrCodeRunInProgress, "another run holds the pipeline lock").
			WithContext("lock", key).
			WithSuggestions("Wait for the running pipeline to finish", "Check lock.ttl if a previous run crashed")
	}
	return func(ctx context.Context) error { return l.Unlock(ctx, key) }, nil
}

// LocalLocker serializes runs inside one process
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), clock: time.Now}
}

// TryLock takes key unless an unexpired holder exists
func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

// Unlock releases key
func (l *LocalLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// Close is a no-op
func (l *LocalLocker) Close() error {
	return nil
}

// Releases the key only if this instance still owns it
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisLocker shares the run lock between hosts with SET NX
type RedisLocker struct {
	client *redis.Client
	owner  string
	prefix string
}

// RedisOptions configures the Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisLocker connects to Redis and verifies the connection
func NewRedisLocker(ctx context.Context, opts RedisOptions) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.ConnectionError("Failed to connect to Redis", err).
			WithContext("addr", opts.Addr)
	}

	hostname, _ := os.Hostname()
	return &RedisLocker{
		client: client,
		owner:  fmt.Sprintf("%s:%d", hostname, os.Getpid()),
		prefix: "medallion:lock:",
	}, nil
}

// TryLock takes key if nobody holds it
func (r *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, r.owner, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeConnectionFailed, "failed to acquire lock").
			WithContext("lock", key)
	}
	return ok, nil
}

// Unlock releases key if this process holds it
func (r *RedisLocker) Unlock(ctx context.Context, key string) error {
	if err := r.client.Eval(ctx, unlockScript, []string{r.prefix + key}, r.owner).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionFailed, "failed to release lock").
			WithContext("lock", key)
	}
	return nil
}

// Close closes the Redis client
func (r *RedisLocker) Close() error {
	return r.client.Close()
}
