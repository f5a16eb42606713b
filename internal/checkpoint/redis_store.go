package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"binlog-router/internal/model"
)

// RedisStore persists checkpoints into Redis with TTL to avoid stale entries.
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

func (s *RedisStore) Save(ctx context.Context, pos model.Position) error {
	if pos.IsZero() {
		return fmt.Errorf("empty binlog position")
	}
	if err := s.client.Set(ctx, s.key, pos.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (model.Position, error) {
	cursor, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Position{}, nil
		}
		return model.Position{}, fmt.Errorf("redis get checkpoint: %w", err)
	}
	pos, err := model.ParsePosition(cursor)
	if err != nil {
		return model.Position{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return pos, nil
}
