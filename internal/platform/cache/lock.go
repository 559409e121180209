package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/britonmearsty/secureuploadhub-sub006/pkg/tool"
)

// ErrLockTimeout is returned when a lock could not be obtained before the
// caller's deadline.
var ErrLockTimeout = errors.New("lock: acquisition timed out")

// Locker provides mutual exclusion across service instances. Acquire blocks
// until the lock is held or ctx is done; the returned release is idempotent.
// ttl bounds how long a crashed holder can keep the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// WithLock runs fn while holding key, giving up after timeout.
func WithLock(ctx context.Context, l Locker, key string, timeout, ttl time.Duration, fn func(ctx context.Context) error) error {
	acqCtx, cancel := context.WithTimeout(ctx, timeout)
	release, err := l.Acquire(acqCtx, key, ttl)
	cancel()
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func lockErr(ctx context.Context, key string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
	return fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
}

// --- MemoryLocker ---

type lockEntry struct {
	mu      sync.Mutex
	waiters chan struct{}
	held    bool
	token   string
}

// MemoryLocker implements Locker within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*lockEntry)}
}

func (l *MemoryLocker) entry(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{waiters: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	return e
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	e := l.entry(key)
	for {
		e.mu.Lock()
		if !e.held {
			token := tool.GenerateUUIDV7()
			e.held = true
			e.token = token
			e.mu.Unlock()

			var once sync.Once
			release := func() {
				once.Do(func() {
					e.mu.Lock()
					// an expired holder must not free a newer holder's lock
					if e.token == token {
						e.held = false
						e.token = ""
					}
					e.mu.Unlock()
					select {
					case e.waiters <- struct{}{}:
					default:
					}
				})
			}
			if ttl > 0 {
				time.AfterFunc(ttl, release)
			}
			return release, nil
		}
		e.mu.Unlock()

		select {
		case <-e.waiters:
		case <-ctx.Done():
			return nil, lockErr(ctx, key)
		}
	}
}

// --- RedisLocker ---

// releaseScript deletes the key only when it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisLocker implements Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client       RedisClient
	prefix       string
	pollInterval time.Duration
}

func NewRedisLocker(client RedisClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, pollInterval: 25 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	fullKey := l.prefix + key
	token := tool.GenerateUUIDV7()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, lockErr(ctx, key)
			}
			return nil, fmt.Errorf("acquire lock for %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// caller's ctx may already be cancelled
					_ = l.client.Eval(context.Background(), releaseScript, []string{fullKey}, token).Err()
				})
			}, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, lockErr(ctx, key)
		}
	}
}
