package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenStore guarda sessões de gateway no Redis com TTL. O TTL do Redis
// é a única fonte de expiração: sessão presente é sessão válida.
type RedisTokenStore struct {
	Client *redis.Client
}

func NewRedisTokenStore(c *redis.Client) *RedisTokenStore { return &RedisTokenStore{Client: c} }

func (r *RedisTokenStore) Get(ctx context.Context, key string) (Session, bool, error) {
	raw, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *RedisTokenStore) Set(ctx context.Context, key string, s Session, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, b, ttl).Err()
}

func (r *RedisTokenStore) Del(ctx context.Context, key string) error {
	return r.Client.Del(ctx, key).Err()
}
