package magiclink

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCodeNotFound = errors.New("the code does not exist")
)

// CodeEntry is a single-use code bound to a user. ExpiresAt is in epoch
// seconds.
type CodeEntry struct {
	Code      string `json:"code" dynamodbav:"code"`
	Username  string `json:"username" dynamodbav:"username"`
	ExpiresAt int64  `json:"expiresAt" dynamodbav:"expiresAt"`
}

// ValidAt reports whether the entry is still usable at t.
func (e CodeEntry) ValidAt(t time.Time) bool {
	return t.Unix() < e.ExpiresAt
}

// CodeStore is a storage mechanism for single-use codes.
//
// Stores do not filter by expiry on read; callers must check ExpiresAt.
// Expired entries may be collected by the backend at any time.
type CodeStore interface {
	// Put stores code for username, expiring ttl from now. An existing
	// entry under the same code is overwritten.
	Put(ctx context.Context, code, username string, ttl time.Duration) error
	// GetAndDelete atomically removes and returns the entry for code, or
	// returns ErrCodeNotFound. A code is never returned twice.
	GetAndDelete(ctx context.Context, code string) (*CodeEntry, error)
}

// expiresAt computes the epoch-second expiry for a ttl starting at now.
func expiresAt(now time.Time, ttl time.Duration) int64 {
	return now.Unix() + int64(ttl/time.Second)
}
