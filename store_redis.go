package magiclink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisPrefix = "magiclink-code::"
)

// RedisStore is a CodeStore that keeps codes in Redis. Redis key expiry
// collects stale entries; GETDEL (Redis 6.2+) makes consumption atomic.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore creates and returns a new RedisStore.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

func redisKey(code string) string {
	return redisPrefix + code
}

type redisEntry struct {
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Put stores a code for a user.
func (s *RedisStore) Put(ctx context.Context, code, username string, ttl time.Duration) error {
	v, err := json.Marshal(redisEntry{
		Username:  username,
		ExpiresAt: expiresAt(s.now(), ttl),
	})
	if err != nil {
		return err
	}
	// Redis rejects non-positive expirations; the entry still carries its
	// own expiry so an already-expired code is never accepted.
	exp := ttl
	if exp < time.Second {
		exp = time.Second
	}
	return s.client.Set(ctx, redisKey(code), v, exp).Err()
}

// GetAndDelete atomically fetches and removes a code.
func (s *RedisStore) GetAndDelete(ctx context.Context, code string) (*CodeEntry, error) {
	r, err := s.client.GetDel(ctx, redisKey(code)).Result()
	if err == redis.Nil {
		return nil, ErrCodeNotFound
	} else if err != nil {
		return nil, err
	}
	var e redisEntry
	if err := json.Unmarshal([]byte(r), &e); err != nil {
		return nil, err
	}
	return &CodeEntry{
		Code:      code,
		Username:  e.Username,
		ExpiresAt: e.ExpiresAt,
	}, nil
}
