package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReplayProtector claims delivery attempt keys with SETNX so two workers
// racing on the same delivery cannot both fire the endpoint. A protector
// without a client admits everything, which keeps single-process setups and
// tests working without Redis.
type RedisReplayProtector struct {
	Client *redis.Client
}

func (p RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if p.Client == nil {
		return true, nil
	}
	return p.Client.SetNX(ctx, key, "claimed", ttl).Result()
}

func (p RedisReplayProtector) Release(ctx context.Context, key string) error {
	if p.Client == nil {
		return nil
	}
	return p.Client.Del(ctx, key).Err()
}
