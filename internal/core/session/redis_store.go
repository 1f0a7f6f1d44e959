package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"github.com/ClareAI/astra-call-relay/pkg/redis"
	"go.uber.org/zap"
)

const (
	RedisKeyPrefix    = "astra:call-relay"
	DefaultSessionTTL = 24 * time.Hour
)

// RedisStore persists records as JSON under prefix:key with a TTL
type RedisStore struct {
	redisSvc redis.RedisServiceInterface
	prefix   string
	ttl      time.Duration
}

func NewRedisStore(redisSvc redis.RedisServiceInterface, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{
		redisSvc: redisSvc,
		prefix:   RedisKeyPrefix,
		ttl:      ttl,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func (s *RedisStore) Put(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redisSvc.SetValue(ctx, s.redisKey(key), string(data), s.ttl); err != nil {
		return fmt.Errorf("store session %s: %w", key, err)
	}
	logger.Debug(ctx, "Session stored in Redis", zap.String("key", key), zap.String("thread_id", rec.Thread))
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	val, err := s.redisSvc.GetValue(ctx, s.redisKey(key))
	if err != nil {
		if redis.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load session %s: %w", key, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, fmt.Errorf("decode session %s: %w", key, err)
	}
	return rec, nil
}
