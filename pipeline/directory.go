package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrUserNotFound = errors.New("user not found")

// User is a directory entry. Attributes use the identity provider's
// attribute names, such as "email" and "custom:tenantId".
type User struct {
	Username   string
	Attributes map[string]string
}

// Directory looks up users by username.
type Directory interface {
	Lookup(ctx context.Context, username string) (*User, error)
}

// MemDirectory is an in-memory Directory. Usernames are case-insensitive.
type MemDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemDirectory(users ...User) *MemDirectory {
	d := &MemDirectory{users: make(map[string]User)}
	for _, u := range users {
		d.Add(u)
	}
	return d
}

// Add inserts or replaces a user.
func (d *MemDirectory) Add(u User) {
	attrs := make(map[string]string, len(u.Attributes))
	for k, v := range u.Attributes {
		attrs[k] = v
	}
	u.Attributes = attrs
	d.mu.Lock()
	d.users[strings.ToLower(u.Username)] = u
	d.mu.Unlock()
}

func (d *MemDirectory) Lookup(ctx context.Context, username string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[strings.ToLower(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	attrs := make(map[string]string, len(u.Attributes))
	for k, v := range u.Attributes {
		attrs[k] = v
	}
	u.Attributes = attrs
	return &u, nil
}
