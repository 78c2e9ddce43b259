// ABOUTME: Tests for the badger-backed TTL cache
// ABOUTME: Covers user isolation, expiry, deletion and context plumbing
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status struct {
	Connected bool   `json:"connected"`
	Calendar  string `json:"calendar"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUserCacheIsolation(t *testing.T) {
	store := openTestStore(t)
	alice := store.ForUser(uuid.New())
	bob := store.ForUser(uuid.New())

	require.NoError(t, alice.SetJSON("status", status{Connected: true, Calendar: "primary"}, time.Minute))

	var got status
	found, err := alice.GetJSON("status", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "primary", got.Calendar)

	found, err = bob.GetJSON("status", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUserCacheDelete(t *testing.T) {
	store := openTestStore(t)
	u := store.ForUser(uuid.New())

	require.NoError(t, u.SetJSON("status", status{Connected: true}, time.Minute))
	require.NoError(t, u.Delete("status"))

	var got status
	found, err := u.GetJSON("status", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEntriesExpire(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for TTL expiry")
	}
	store := openTestStore(t)

	require.NoError(t, store.Set("k", []byte("v"), time.Second))
	_, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(2100 * time.Millisecond)
	_, ok, err = store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContextRoundTrip(t *testing.T) {
	store := openTestStore(t)
	u := store.ForUser(uuid.New())

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := NewContext(context.Background(), u)
	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, u, got)
}
