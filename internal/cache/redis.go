package cache

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// RedisTLSConfig controls transport security for the redis backend.
type RedisTLSConfig struct {
	Enabled bool
	CAFile  string
}

// RedisConfig carries the redis backend coordinates.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TTL      time.Duration
	TLS      RedisTLSConfig
}

type redisCache struct {
	client valkey.Client
	ttl    time.Duration
}

// NewRedis connects and pings the backend so a dead redis is reported at
// startup instead of degrading every request.
func NewRedis(cfg RedisConfig) (ResponseCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("cache: redis address required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("cache: read redis ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("cache: redis ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("cache: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}

	return &redisCache{client: client, ttl: cfg.TTL}, nil
}

func (c *redisCache) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache: redis get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis get bytes: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis unmarshal: %w", err)
	}
	// Redis enforces expiry itself, but clock skew between writer and
	// reader can surface an entry marginally past its instant.
	if entry.Expired(time.Now()) {
		_ = c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *redisCache) Store(ctx context.Context, key string, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.StoredAt) {
		entry.ExpiresAt = entry.StoredAt.Add(c.ttl)
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: redis marshal: %w", err)
	}
	cmd := c.client.B().Set().Key(key).Value(string(payload)).Px(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (c *redisCache) Clear(ctx context.Context) (int, error) {
	return c.deleteMatching(ctx, KeyPrefix+"*")
}

func (c *redisCache) ClearPattern(ctx context.Context, substr string) (int, error) {
	if substr == "" {
		return 0, nil
	}
	return c.deleteMatching(ctx, KeyPrefix+"*"+substr+"*")
}

// deleteMatching walks the keyspace with SCAN and deletes matches in
// batches; KEYS would block the backend on large databases.
func (c *redisCache) deleteMatching(ctx context.Context, pattern string) (int, error) {
	removed := 0
	var cursor uint64
	for {
		resp := c.client.Do(ctx, c.client.B().Scan().Cursor(cursor).Match(pattern).Count(200).Build())
		scan, err := resp.AsScanEntry()
		if err != nil {
			return removed, fmt.Errorf("cache: redis scan: %w", err)
		}
		if len(scan.Elements) > 0 {
			delCmd := c.client.B().Del().Key(scan.Elements...).Build()
			deleted, err := c.client.Do(ctx, delCmd).ToInt64()
			if err != nil {
				return removed, fmt.Errorf("cache: redis del: %w", err)
			}
			removed += int(deleted)
		}
		cursor = scan.Cursor
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (c *redisCache) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "redis"}
	var cursor uint64
	for {
		resp := c.client.Do(ctx, c.client.B().Scan().Cursor(cursor).Match(KeyPrefix+"*").Count(200).Build())
		scan, err := resp.AsScanEntry()
		if err != nil {
			return Stats{}, fmt.Errorf("cache: redis scan: %w", err)
		}
		// Redis evicts on expiry, so every surviving key is active.
		stats.Total += len(scan.Elements)
		stats.Active += len(scan.Elements)
		for _, key := range scan.Elements {
			stats.ApproxBytes += int64(len(key))
		}
		cursor = scan.Cursor
		if cursor == 0 {
			return stats, nil
		}
	}
}

func (c *redisCache) Close(context.Context) error {
	c.client.Close()
	return nil
}
