package indexer

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned by key engines when a uid does not exist.
// Engines map their provider's not-found shape onto it so callers never
// inspect provider errors.
var ErrKeyNotFound = errors.New("key not found")

// KeyConfig describes a key to create.
type KeyConfig struct {
	Name        string
	Description string
	Actions     []string
	Indexes     []string
	ExpiresAt   *time.Time // nil means the key never expires
}

// Key is one key row as the engine reports it.
type Key struct {
	UID         string
	Key         string
	Name        string
	Description string
	Actions     []string
	Indexes     []string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// Expired reports whether the key's expiry has passed.
func (k Key) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// KeyEngine is the search engine's key administration API. All operations
// are idempotent from the caller's point of view: a transport failure leaves
// no partial local state and the caller retries with the same arguments.
type KeyEngine interface {
	CreateKey(ctx context.Context, cfg KeyConfig) (*Key, error)
	GetKey(ctx context.Context, uid string) (*Key, error)
	DeleteKey(ctx context.Context, uid string) (bool, error)
	ListKeys(ctx context.Context) ([]Key, error)
}
