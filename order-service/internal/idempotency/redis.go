package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisGuard struct {
	client     *redis.Client
	prefix     string
	pendingTTL time.Duration
	ttl        time.Duration
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisGuard stores keys as "<service>:idempotency:<key>". Reservations
// expire after pendingTTL, completed keys after ttl.
func NewRedisGuard(client *redis.Client, serviceName string, pendingTTL, ttl time.Duration) Guard {
	return &redisGuard{
		client:     client,
		prefix:     fmt.Sprintf("%s:idempotency:", serviceName),
		pendingTTL: pendingTTL,
		ttl:        ttl,
	}
}

func (g *redisGuard) Begin(ctx context.Context, key, fingerprint string) (string, error) {
	k := g.prefix + key
	pending := record{state: statePending, fingerprint: fingerprint}.encode()

	// One retry covers a key that expired between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		reserved, err := g.client.SetNX(ctx, k, pending, g.pendingTTL).Result()
		if err != nil {
			return "", fmt.Errorf("idempotency: failed to reserve key: %w", err)
		}
		if reserved {
			return "", nil
		}

		value, err := g.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("idempotency: failed to read key: %w", err)
		}
		return resolve(decode(value), fingerprint)
	}
	return "", ErrInProgress
}

func (g *redisGuard) Complete(ctx context.Context, key, fingerprint, result string) error {
	done := record{state: stateDone, fingerprint: fingerprint, result: result}.encode()
	if err := g.client.Set(ctx, g.prefix+key, done, g.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to store result: %w", err)
	}
	return nil
}

func (g *redisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to release key: %w", err)
	}
	return nil
}
