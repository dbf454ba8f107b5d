package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL bounds staleness of cached payloads.
	DefaultTTL = 5 * time.Minute
	// DefaultSweepInterval paces the proactive eviction pass so memory does
	// not grow unbounded between reads.
	DefaultSweepInterval = 10 * time.Minute
)

type memoryCache struct {
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry

	stopSweep context.CancelFunc
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewMemory builds the in-process backend: a mutex-guarded map with lazy
// eviction on read plus a periodic sweeper owned by the cache itself and
// stopped by Close.
func NewMemory(ttl, sweepInterval time.Duration, logger *slog.Logger) ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	sweepCtx, cancel := context.WithCancel(context.Background())
	c := &memoryCache{
		ttl:       ttl,
		logger:    logger.With(slog.String("agent", "memory_cache")),
		entries:   make(map[string]Entry),
		stopSweep: cancel,
		sweepDone: make(chan struct{}),
	}
	go c.sweep(sweepCtx, sweepInterval)
	return c
}

func (c *memoryCache) Lookup(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired(time.Now()) {
		delete(c.entries, key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *memoryCache) Store(_ context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.StoredAt) {
		entry.ExpiresAt = entry.StoredAt.Add(c.ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *memoryCache) Clear(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := len(c.entries)
	c.entries = make(map[string]Entry)
	return removed, nil
}

func (c *memoryCache) ClearPattern(_ context.Context, substr string) (int, error) {
	if substr == "" {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if strings.Contains(key, substr) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (c *memoryCache) Stats(_ context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	stats := Stats{Backend: "memory", Total: len(c.entries)}
	for key, entry := range c.entries {
		if entry.Expired(now) {
			stats.Expired++
		} else {
			stats.Active++
		}
		stats.ApproxBytes += int64(len(key) + len(entry.Payload))
	}
	return stats, nil
}

func (c *memoryCache) Close(_ context.Context) error {
	c.closeOnce.Do(func() {
		c.stopSweep()
		<-c.sweepDone
	})
	return nil
}

// sweep proactively evicts expired entries between reads. It never holds
// the lock across ticks, so request serving is not blocked.
func (c *memoryCache) sweep(ctx context.Context, interval time.Duration) {
	defer close(c.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			removed := 0
			for key, entry := range c.entries {
				if entry.Expired(now) {
					delete(c.entries, key)
					removed++
				}
			}
			c.mu.Unlock()
			if removed > 0 {
				c.logger.Debug("swept expired cache entries", slog.Int("removed", removed))
			}
		}
	}
}
