package learner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisHashKey is the hash holding all learned threats, field = threat key.
const redisHashKey = "cogniguard:learned_threats"

// RedisStore persists learned threats in a Redis hash, shared across
// gateway instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context) ([]*LearnedThreat, error) {
	entries, err := s.client.HGetAll(ctx, redisHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load threats from redis: %w", err)
	}

	threats := make([]*LearnedThreat, 0, len(entries))
	for key, raw := range entries {
		var t LearnedThreat
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("corrupt threat entry %s: %w", key, err)
		}
		threats = append(threats, &t)
	}
	return threats, nil
}

func (s *RedisStore) Put(ctx context.Context, threat *LearnedThreat) error {
	if threat == nil || threat.Key == "" {
		return fmt.Errorf("threat key is required")
	}
	data, err := json.Marshal(threat)
	if err != nil {
		return fmt.Errorf("failed to marshal threat: %w", err)
	}
	if err := s.client.HSet(ctx, redisHashKey, threat.Key, data).Err(); err != nil {
		return fmt.Errorf("failed to store threat: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, redisHashKey, key).Err(); err != nil {
		return fmt.Errorf("failed to delete threat: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
