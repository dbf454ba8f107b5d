package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dnaufal/presensi/internal/sheet"
)

// Config holds every option the process needs, validated at startup.
// Nothing reads the environment lazily; a missing required field fails
// construction instead of the first request.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Cache  CacheConfig  `koanf:"cache"`
	Sheet  SheetConfig  `koanf:"sheet"`
}

// ServerConfig collects the HTTP bootstrap knobs.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
	CORS    CORSConfig    `koanf:"cors"`
	// RequestTimeoutSeconds caps how long any single request may run,
	// remote calls included.
	RequestTimeoutSeconds int `koanf:"requestTimeoutSeconds"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowedOrigins"`
}

// CacheConfig selects and tunes the response cache backend.
type CacheConfig struct {
	Backend string `koanf:"backend"`
	// TTLMillis is the entry time-to-live in milliseconds.
	TTLMillis            int              `koanf:"ttlMillis"`
	SweepIntervalSeconds int              `koanf:"sweepIntervalSeconds"`
	Redis                RedisCacheConfig `koanf:"redis"`
}

// RedisCacheConfig carries redis backend coordinates.
type RedisCacheConfig struct {
	Address  string              `koanf:"address"`
	Username string              `koanf:"username"`
	Password string              `koanf:"password"`
	DB       int                 `koanf:"db"`
	TLS      RedisTLSCacheConfig `koanf:"tls"`
}

// RedisTLSCacheConfig controls transport security for redis.
type RedisTLSCacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// SheetConfig addresses the remote tabular source.
type SheetConfig struct {
	DocumentID string `koanf:"documentId"`
	APIKey     string `koanf:"apiKey"`
	// BaseURL overrides the values API endpoint, mainly for tests.
	BaseURL string `koanf:"baseUrl"`
	// DefaultRange is used when no year filter is present,
	// e.g. "Presensi!A:F".
	DefaultRange string `koanf:"defaultRange"`
	// RangeTemplate renders the year-qualified range,
	// e.g. "Presensi {{ .Year }}!A:F".
	RangeTemplate string `koanf:"rangeTemplate"`
	BatchSize     int    `koanf:"batchSize"`
	// RowFilter is an optional CEL expression; records it rejects are
	// dropped right after normalization.
	RowFilter              string        `koanf:"rowFilter"`
	MetadataTimeoutSeconds int           `koanf:"metadataTimeoutSeconds"`
	BatchTimeoutSeconds    int           `koanf:"batchTimeoutSeconds"`
	Columns                sheet.Columns `koanf:"columns"`
}

// DefaultConfig returns the documented defaults. DocumentID and APIKey have
// none; they must come from the file or the environment.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen:                ListenConfig{Address: "0.0.0.0", Port: 8080},
			Logging:               LoggingConfig{Level: "info", Format: "json", CorrelationHeader: "X-Request-ID"},
			RequestTimeoutSeconds: 60,
		},
		Cache: CacheConfig{
			Backend:              "memory",
			TTLMillis:            int((5 * time.Minute).Milliseconds()),
			SweepIntervalSeconds: int((10 * time.Minute).Seconds()),
		},
		Sheet: SheetConfig{
			DefaultRange:           "Presensi!A:F",
			RangeTemplate:          "Presensi {{ .Year }}!A:F",
			BatchSize:              5000,
			MetadataTimeoutSeconds: 15,
			BatchTimeoutSeconds:    40,
			Columns:                sheet.DefaultColumns(),
		},
	}
}

// Validate enforces the fail-fast contract for required fields and sanity
// bounds on the tunables.
func (c Config) Validate() error {
	if c.Server.Listen.Port < 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.Server.Listen.Port)
	}
	if strings.TrimSpace(c.Sheet.DocumentID) == "" {
		return errors.New("config: sheet.documentId is required")
	}
	if strings.TrimSpace(c.Sheet.APIKey) == "" {
		return errors.New("config: sheet.apiKey is required")
	}
	if strings.TrimSpace(c.Sheet.DefaultRange) == "" {
		return errors.New("config: sheet.defaultRange is required")
	}
	if c.Cache.TTLMillis <= 0 {
		return fmt.Errorf("config: cache.ttlMillis must be positive, got %d", c.Cache.TTLMillis)
	}
	if c.Sheet.BatchSize <= 0 {
		return fmt.Errorf("config: sheet.batchSize must be positive, got %d", c.Sheet.BatchSize)
	}
	switch strings.ToLower(strings.TrimSpace(c.Cache.Backend)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Address) == "" {
			return errors.New("config: cache.redis.address required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unsupported cache backend %q", c.Cache.Backend)
	}
	return nil
}

// TTL converts the millisecond knob into a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMillis) * time.Millisecond
}

// SweepInterval converts the sweep knob into a duration.
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// MetadataTimeout converts the metadata timeout knob into a duration.
func (c SheetConfig) MetadataTimeout() time.Duration {
	return time.Duration(c.MetadataTimeoutSeconds) * time.Second
}

// BatchTimeout converts the batch timeout knob into a duration.
func (c SheetConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSeconds) * time.Second
}

// RequestTimeout converts the request deadline knob into a duration.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
