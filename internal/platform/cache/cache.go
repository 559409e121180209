// Package cache holds the key-value store and the distributed lock used for
// cross-request coordination.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
)

// ErrMiss is returned by KV.Get when the key does not exist or has expired.
var ErrMiss = errors.New("cache: miss")

// KV is a string key-value store with per-key expiry.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisClient is the subset of go-redis used here.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type RedisKV struct {
	client RedisClient
	prefix string
}

func NewRedisKV(client RedisClient, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (r *RedisKV) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func newRedisClient(lc fx.Lifecycle, cfg *cfgpkg.Config, log *zap.SugaredLogger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Errorw("redis ping failed", "addr", cfg.Redis.Addr, "err", err)
				return err
			}
			log.Infow("connected to redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("closing redis client")
			return client.Close()
		},
	})
	return client
}

func newKV(cfg *cfgpkg.Config, client *redis.Client, log *zap.SugaredLogger) KV {
	if client == nil {
		log.Warnw("redis not configured, using in-process cache")
		return NewMemoryKV(time.Now)
	}
	return NewRedisKV(client, cfg.Redis.Prefix)
}

func newLocker(cfg *cfgpkg.Config, client *redis.Client, log *zap.SugaredLogger) Locker {
	if client == nil {
		log.Warnw("redis not configured, using in-process subscription locks")
		return NewMemoryLocker()
	}
	return NewRedisLocker(client, cfg.Redis.Prefix)
}

var Module = fx.Options(
	fx.Provide(newRedisClient),
	fx.Provide(newKV),
	fx.Provide(newLocker),
)
