package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session keys in a shared Redis.
const DefaultRedisPrefix = "sess"

// RedisStore is the primary [Store] backend. Records expire through Redis
// key TTLs; the envelope expiry is checked again on read.
//
//	Performance: 1 Redis command per operation.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a [RedisStore] on an existing client. The caller owns
// the client and closes it at shutdown. An empty prefix uses [DefaultRedisPrefix].
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{redis: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(storeKey string) string {
	return s.prefix + ":" + storeKey
}

// Save writes attrs under key with SET NX PX.
func (s *RedisStore) Save(ctx context.Context, key string, attrs Attributes, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	data, err := Encode(newRecord(key, attrs, s.now(), ttl))
	if err != nil {
		return err
	}

	created, err := s.redis.SetNX(ctx, s.key(key), data, ttl).Result()
	if err != nil {
		return backendError(err)
	}
	if !created {
		return ErrKeyExists
	}
	return nil
}

// Load fetches the record under key.
func (s *RedisStore) Load(ctx context.Context, key string) (Attributes, bool, error) {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, backendError(err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	if rec.Expired(s.now()) {
		return nil, false, nil
	}
	return rec.Attributes, true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return backendError(err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), backendError(err)
	}
	return time.Since(start), nil
}
