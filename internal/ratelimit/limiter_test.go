package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_WithinLimit(t *testing.T) {
	l := New(NewMemoryStore(), "test")
	p := Policy{Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(context.Background(), "login", "1.2.3.4", p)
		require.NoError(t, err)
		assert.True(t, ok, "call %d should be allowed", i+1)
	}

	ok, err := l.Allow(context.Background(), "login", "1.2.3.4", p)
	require.NoError(t, err)
	assert.False(t, ok, "call beyond the limit must be denied")
}

func TestAllow_WindowReset(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	l := New(store, "test")
	p := Policy{Limit: 1, Window: time.Minute}

	ok, err := l.Allow(context.Background(), "login", "1.2.3.4", p)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(context.Background(), "login", "1.2.3.4", p)
	require.NoError(t, err)
	assert.False(t, ok)

	current = current.Add(time.Minute + time.Second)

	ok, err = l.Allow(context.Background(), "login", "1.2.3.4", p)
	require.NoError(t, err)
	assert.True(t, ok, "a fresh window starts after the old one elapses")
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(NewMemoryStore(), "test")
	p := Policy{Limit: 1, Window: time.Minute}

	ok, err := l.Allow(context.Background(), "login", "1.2.3.4", p)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(context.Background(), "login", "5.6.7.8", p)
	require.NoError(t, err)
	assert.True(t, ok, "a different scope has its own counter")

	ok, err = l.Allow(context.Background(), "register", "1.2.3.4", p)
	require.NoError(t, err)
	assert.True(t, ok, "a different action has its own counter")
}

func TestAllow_EmptyKey(t *testing.T) {
	l := New(NewMemoryStore(), "test")

	_, err := l.Allow(context.Background(), "", "1.2.3.4", LoginPerIP)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = l.Allow(context.Background(), "login", "", LoginPerIP)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("store unreachable")
}

func TestAllow_StoreFailurePropagates(t *testing.T) {
	l := New(failingStore{}, "test")

	ok, err := l.Allow(context.Background(), "login", "1.2.3.4", LoginPerIP)
	assert.Error(t, err)
	assert.False(t, ok, "a store failure must never read as an allow")
}
