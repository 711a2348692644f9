package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// FlowBackend holds flows server-side under opaque handles. Take must
// remove the flow in the same step that returns it, so a handle can only
// ever be redeemed once.
type FlowBackend interface {
	Put(ctx context.Context, handle string, f *Flow, ttl time.Duration) error
	Take(ctx context.Context, handle string) (*Flow, error)
	Delete(ctx context.Context, handle string) error
}

type memFlow struct {
	data      []byte
	expiresAt time.Time
}

// MemFlowBackend keeps flows in memory. It is only suitable for a single
// process.
type MemFlowBackend struct {
	mut   sync.Mutex
	flows map[string]memFlow
	now   func() time.Time
}

func NewMemFlowBackend() *MemFlowBackend {
	return &MemFlowBackend{
		flows: make(map[string]memFlow),
		now:   time.Now,
	}
}

func (b *MemFlowBackend) Put(ctx context.Context, handle string, f *Flow, ttl time.Duration) error {
	v, err := json.Marshal(f)
	if err != nil {
		return err
	}
	b.mut.Lock()
	defer b.mut.Unlock()
	now := b.now()
	// Expired flows are dropped on write; there is no background cleaner.
	for h, mf := range b.flows {
		if !now.Before(mf.expiresAt) {
			delete(b.flows, h)
		}
	}
	b.flows[handle] = memFlow{data: v, expiresAt: now.Add(ttl)}
	return nil
}

func (b *MemFlowBackend) Take(ctx context.Context, handle string) (*Flow, error) {
	b.mut.Lock()
	mf, ok := b.flows[handle]
	delete(b.flows, handle)
	b.mut.Unlock()
	if !ok || !b.now().Before(mf.expiresAt) {
		return nil, ErrNoFlow
	}
	var f Flow
	if err := json.Unmarshal(mf.data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (b *MemFlowBackend) Delete(ctx context.Context, handle string) error {
	b.mut.Lock()
	defer b.mut.Unlock()
	delete(b.flows, handle)
	return nil
}

// Len returns the number of flows held, expired or not.
func (b *MemFlowBackend) Len() int {
	b.mut.Lock()
	defer b.mut.Unlock()
	return len(b.flows)
}

const redisFlowPrefix = "magiclink-flow::"

// RedisFlowBackend keeps flows in Redis as JSON. Take uses GETDEL
// (Redis 6.2+).
type RedisFlowBackend struct {
	client redis.UniversalClient
}

func NewRedisFlowBackend(client redis.UniversalClient) *RedisFlowBackend {
	return &RedisFlowBackend{client: client}
}

func (b *RedisFlowBackend) Put(ctx context.Context, handle string, f *Flow, ttl time.Duration) error {
	v, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return b.client.Set(ctx, redisFlowPrefix+handle, v, ttl).Err()
}

func (b *RedisFlowBackend) Take(ctx context.Context, handle string) (*Flow, error) {
	r, err := b.client.GetDel(ctx, redisFlowPrefix+handle).Result()
	if err == redis.Nil {
		return nil, ErrNoFlow
	} else if err != nil {
		return nil, err
	}
	var f Flow
	if err := json.Unmarshal([]byte(r), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (b *RedisFlowBackend) Delete(ctx context.Context, handle string) error {
	return b.client.Del(ctx, redisFlowPrefix+handle).Err()
}
