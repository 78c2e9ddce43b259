// ABOUTME: In-memory TTL cache backed by BadgerDB
// ABOUTME: Hands out per-user views so cached values never cross user boundaries
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

// Store is a process-local cache. Entries expire on their own TTL.
type Store struct {
	db *badger.DB
}

// Open creates an in-memory store.
func Open() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value and whether it was present and unexpired.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// Set stores value for ttl. A non-positive ttl stores without expiry.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// ForUser returns a view whose keys are namespaced by userID.
func (s *Store) ForUser(userID uuid.UUID) *UserCache {
	return &UserCache{store: s, prefix: "user/" + userID.String() + "/"}
}

// UserCache is a user-scoped view over a Store.
type UserCache struct {
	store  *Store
	prefix string
}

// GetJSON decodes a cached value into dst and reports whether it was found.
func (u *UserCache) GetJSON(key string, dst any) (bool, error) {
	raw, ok, err := u.store.Get(u.prefix + key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

func (u *UserCache) SetJSON(key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s for cache: %w", key, err)
	}
	return u.store.Set(u.prefix+key, raw, ttl)
}

func (u *UserCache) Delete(key string) error {
	return u.store.Delete(u.prefix + key)
}

type contextKey struct{}

// NewContext returns ctx carrying the user-scoped cache.
func NewContext(ctx context.Context, u *UserCache) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the cache attached by NewContext, if any.
func FromContext(ctx context.Context) (*UserCache, bool) {
	u, ok := ctx.Value(contextKey{}).(*UserCache)
	return u, ok && u != nil
}
