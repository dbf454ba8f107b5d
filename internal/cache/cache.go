// Package cache provides the response cache: computed API payloads keyed by
// a request fingerprint with a bounded time-to-live. Backends must tolerate
// concurrent per-key reads and writes; no cross-key transactions exist, and
// two concurrent misses for the same key may both compute and store
// (last-writer-wins, payloads for a key are equivalent).
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one cached payload. The payload is stored without any
// served-from-cache marker so the marker can be attached fresh on every
// retrieval.
type Entry struct {
	Payload   json.RawMessage `json:"payload"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Expired reports whether the entry is past its expiry instant.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Stats is the observability snapshot returned by a backend.
type Stats struct {
	Backend     string `json:"backend"`
	Total       int    `json:"totalEntries"`
	Active      int    `json:"activeEntries"`
	Expired     int    `json:"expiredEntries"`
	ApproxBytes int64  `json:"approxBytes"`
}

// ResponseCache is the contract every backend implements. A read of an
// expired entry behaves identically to a miss and removes the stale entry
// as a side effect.
type ResponseCache interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	// Clear removes all entries and reports how many were removed.
	Clear(ctx context.Context) (int, error)
	// ClearPattern removes entries whose key contains the substring, for
	// targeted invalidation such as all entries of one year.
	ClearPattern(ctx context.Context, substr string) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error
}
