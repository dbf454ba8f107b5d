package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T, ttl time.Duration) ResponseCache {
	t.Helper()
	c := NewMemory(ttl, time.Hour, nil)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestMemoryRoundtrip(t *testing.T) {
	c := newTestMemory(t, time.Minute)
	ctx := context.Background()

	payload := json.RawMessage(`{"success":true,"data":[{"teacher":"Andi"}]}`)
	require.NoError(t, c.Store(ctx, "presensi:data:year=all:page=1:size=20", Entry{Payload: payload}))

	entry, ok, err := c.Lookup(ctx, "presensi:data:year=all:page=1:size=20")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, string(payload), string(entry.Payload))
	require.False(t, entry.StoredAt.IsZero())
	require.True(t, entry.ExpiresAt.After(entry.StoredAt))
}

func TestMemoryMissOnUnknownKey(t *testing.T) {
	c := newTestMemory(t, time.Minute)

	_, ok, err := c.Lookup(context.Background(), "presensi:data:absent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryExpiredEntryIsAMiss(t *testing.T) {
	c := newTestMemory(t, time.Minute)
	ctx := context.Background()

	stored := time.Now().UTC().Add(-2 * time.Minute)
	require.NoError(t, c.Store(ctx, "k", Entry{
		Payload:   json.RawMessage(`{}`),
		StoredAt:  stored,
		ExpiresAt: stored.Add(time.Minute),
	}))

	_, ok, err := c.Lookup(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	// Lazy eviction removed the entry entirely.
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Total)
}

func TestMemoryClearCounts(t *testing.T) {
	c := newTestMemory(t, time.Minute)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, c.Store(ctx, KeyPrefix+key, Entry{Payload: json.RawMessage(`{}`)}))
	}

	removed, err := c.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	removed, err = c.Clear(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestMemoryClearPattern(t *testing.T) {
	c := newTestMemory(t, time.Minute)
	ctx := context.Background()

	keys := []string{
		KeyPrefix + "year=2024:page=1:size=20",
		KeyPrefix + "year=2024:page=2:size=20",
		KeyPrefix + "year=2025:page=1:size=20",
	}
	for _, key := range keys {
		require.NoError(t, c.Store(ctx, key, Entry{Payload: json.RawMessage(`{}`)}))
	}

	removed, err := c.ClearPattern(ctx, "year=2024")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, ok, err := c.Lookup(ctx, keys[2])
	require.NoError(t, err)
	require.True(t, ok)

	// An empty pattern clears nothing rather than everything.
	removed, err = c.ClearPattern(ctx, "")
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestMemoryStats(t *testing.T) {
	c := newTestMemory(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "live", Entry{Payload: json.RawMessage(`{"x":1}`)}))
	stale := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, c.Store(ctx, "stale", Entry{
		Payload:   json.RawMessage(`{}`),
		StoredAt:  stale,
		ExpiresAt: stale.Add(time.Minute),
	}))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, "memory", stats.Backend)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Active)
	require.Equal(t, 1, stats.Expired)
	require.Positive(t, stats.ApproxBytes)
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	c := NewMemory(time.Minute, time.Millisecond, nil)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
}
