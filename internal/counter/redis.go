package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteScript deletes KEYS[1] only when its progress equals
// ARGV[1]. Progress is the integer value for string keys and the cardinality
// for set keys.
var compareAndDeleteScript = redis.NewScript(`
local kind = redis.call('TYPE', KEYS[1])['ok']
local current
if kind == 'none' then
	return 0
elseif kind == 'set' then
	current = redis.call('SCARD', KEYS[1])
else
	current = tonumber(redis.call('GET', KEYS[1]))
end
if current == tonumber(ARGV[1]) then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)

const scanBatchSize = 100

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis INCR %s failed: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis DEL %s failed: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string) (int64, bool, error) {
	if IsMembersKey(key) {
		n, err := s.client.SCard(ctx, key).Result()
		if err != nil {
			return 0, false, fmt.Errorf("redis SCARD %s failed: %w", key, err)
		}
		return n, n > 0, nil
	}

	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis GET %s failed: %w", key, err)
	}
	return n, true, nil
}

func (s *RedisStore) AddMember(ctx context.Context, key, member string) (int64, bool, error) {
	var added *redis.IntCmd
	var card *redis.IntCmd

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, key, member)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("redis SADD/SCARD %s failed: %w", key, err)
	}

	return card.Val(), added.Val() == 1, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, expected int64) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-delete %s failed: %w", key, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis SCAN %s failed: %w", pattern, err)
	}
	return keys, nil
}
