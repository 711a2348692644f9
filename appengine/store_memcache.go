package appengine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cardinal-app/magiclink"
	"google.golang.org/appengine/memcache"
)

// MemcacheStore keeps codes in App Engine memcache, which expires them.
type MemcacheStore struct {
	KeyPrefix string
}

func (s MemcacheStore) Put(ctx context.Context, code, username string, ttl time.Duration) error {
	v, err := json.Marshal(magiclink.CodeEntry{
		Code:      code,
		Username:  username,
		ExpiresAt: time.Now().Unix() + int64(ttl/time.Second),
	})
	if err != nil {
		return err
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return memcache.Set(ctx, &memcache.Item{
		Key:        s.KeyPrefix + code,
		Value:      v,
		Expiration: ttl,
	})
}

// GetAndDelete reads then deletes the item. Only the caller whose delete
// succeeds gets the entry, so concurrent consumers cannot both win.
func (s MemcacheStore) GetAndDelete(ctx context.Context, code string) (*magiclink.CodeEntry, error) {
	key := s.KeyPrefix + code
	item, err := memcache.Get(ctx, key)
	if err == memcache.ErrCacheMiss {
		return nil, magiclink.ErrCodeNotFound
	} else if err != nil {
		return nil, err
	}
	if err := memcache.Delete(ctx, key); err == memcache.ErrCacheMiss {
		return nil, magiclink.ErrCodeNotFound
	} else if err != nil {
		return nil, err
	}

	var e magiclink.CodeEntry
	if err := json.Unmarshal(item.Value, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
