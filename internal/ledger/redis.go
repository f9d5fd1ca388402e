package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisGrace keeps an expired record around long enough for Confirm to
// report ErrExpired instead of ErrNoPendingAction.
const redisGrace = time.Hour

// redisTakeScript deletes the record only when the stored nonce matches.
// KEYS[1] = record key
// ARGV[1] = nonce
var redisTakeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "nonce") == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore shares pending actions between replicas.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to a single Redis node.
func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreWithClient(rdb, "security-agent:pending:")
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(session string) string {
	return s.prefix + session
}

func (s *RedisStore) Get(ctx context.Context, session string) (PendingAction, bool, error) {
	raw, err := s.client.HGet(ctx, s.key(session), "payload").Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingAction{}, false, nil
	}
	if err != nil {
		return PendingAction{}, false, fmt.Errorf("redis ledger get: %w", err)
	}
	var a PendingAction
	if err := json.Unmarshal(raw, &a); err != nil {
		return PendingAction{}, false, fmt.Errorf("redis ledger decode: %w", err)
	}
	return a, true, nil
}

func (s *RedisStore) Put(ctx context.Context, action PendingAction) error {
	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("redis ledger encode: %w", err)
	}
	ttl := action.ExpiresAt.Sub(s.now()) + redisGrace
	key := s.key(action.Session)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "payload", payload, "nonce", action.Nonce)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis ledger put: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, session string) error {
	if err := s.client.Del(ctx, s.key(session)).Err(); err != nil {
		return fmt.Errorf("redis ledger delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, session, nonce string) (bool, error) {
	n, err := redisTakeScript.Run(ctx, s.client, []string{s.key(session)}, nonce).Int64()
	if err != nil {
		return false, fmt.Errorf("redis ledger take: %w", err)
	}
	return n == 1, nil
}
