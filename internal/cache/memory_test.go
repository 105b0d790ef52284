package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewMemory(16)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestMemoryMiss(t *testing.T) {
	t.Parallel()

	store, err := NewMemory(16)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "absent")
	require.ErrorIs(t, err, ErrMiss)
}

func TestMemoryExpiry(t *testing.T) {
	t.Parallel()

	store, err := NewMemory(16)
	require.NoError(t, err)

	now := time.Now()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))

	// Still fresh.
	_, err = store.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)
}

func TestMemoryBound(t *testing.T) {
	t.Parallel()

	store, err := NewMemory(2)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	// Oldest entry evicted by the LRU bound.
	_, err = store.Get(ctx, "a")
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected eviction of oldest key, got err=%v", err)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "bot/1.2.3.4/ua", Key("bot", "1.2.3.4", "ua"))
}
