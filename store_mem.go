package magiclink

import (
	"context"
	"sync"
	"time"
)

// MemStore is a CodeStore that keeps codes in memory, removing them
// periodically once they expire. It is only suitable for a single process.
type MemStore struct {
	mut         sync.Mutex
	data        map[string]CodeEntry
	now         func() time.Time
	cleaner     *time.Ticker
	quitCleaner chan struct{}
	releaseOnce sync.Once
}

// NewMemStore creates and returns a new MemStore.
func NewMemStore() *MemStore {
	return newMemStore(time.Now, time.Second)
}

func newMemStore(now func() time.Time, every time.Duration) *MemStore {
	ct := time.NewTicker(every)
	ms := &MemStore{
		data:        make(map[string]CodeEntry),
		now:         now,
		quitCleaner: make(chan struct{}),
		cleaner:     ct,
	}
	// Run cleaner periodically
	go func(quit chan struct{}) {
		for {
			select {
			case <-ct.C:
				ms.Clean()
			case <-quit:
				ct.Stop()
				return
			}
		}
	}(ms.quitCleaner)
	return ms
}

func (s *MemStore) Put(ctx context.Context, code, username string, ttl time.Duration) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.data[code] = CodeEntry{
		Code:      code,
		Username:  username,
		ExpiresAt: expiresAt(s.now(), ttl),
	}
	return nil
}

func (s *MemStore) GetAndDelete(ctx context.Context, code string) (*CodeEntry, error) {
	s.mut.Lock()
	defer s.mut.Unlock()
	e, ok := s.data[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	delete(s.data, code)
	return &e, nil
}

// Len returns the number of entries currently held, expired or not.
func (s *MemStore) Len() int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return len(s.data)
}

// Clean removes expired entries from the store.
func (s *MemStore) Clean() {
	s.mut.Lock()
	defer s.mut.Unlock()
	now := s.now()
	for code, e := range s.data {
		if !e.ValidAt(now) {
			delete(s.data, code)
		}
	}
}

// Release stops the cleaner. The store must not be used afterwards.
func (s *MemStore) Release() {
	s.releaseOnce.Do(func() {
		close(s.quitCleaner)
	})
}
