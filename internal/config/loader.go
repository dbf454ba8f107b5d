package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	ktoml "github.com/knadh/koanf/parsers/toml"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting
// env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract
// before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence
// rules and validates it before handing it out.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.requesttimeoutseconds":     "server.requestTimeoutSeconds",
			"server.logging.correlationheader": "server.logging.correlationHeader",
			"server.cors.allowedorigins":       "server.cors.allowedOrigins",
			"cache.ttlmillis":                  "cache.ttlMillis",
			"cache.sweepintervalseconds":       "cache.sweepIntervalSeconds",
			"cache.redis.tls.cafile":           "cache.redis.tls.caFile",
			"sheet.documentid":                 "sheet.documentId",
			"sheet.apikey":                     "sheet.apiKey",
			"sheet.baseurl":                    "sheet.baseUrl",
			"sheet.defaultrange":               "sheet.defaultRange",
			"sheet.rangetemplate":              "sheet.rangeTemplate",
			"sheet.batchsize":                  "sheet.batchSize",
			"sheet.rowfilter":                  "sheet.rowFilter",
			"sheet.metadatatimeoutseconds":     "sheet.metadataTimeoutSeconds",
			"sheet.batchtimeoutseconds":        "sheet.batchTimeoutSeconds",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path
			// (SHEET__DOCUMENT_ID -> sheet.documentid).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ReplaceAll(key, "_", "")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			return lower
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parserFor picks the file parser by extension; yaml is the default for
// unknown extensions.
func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", "":
		return kyaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return ktoml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension for %s", path)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":             cfg.Server.Logging.Level,
				"format":            cfg.Server.Logging.Format,
				"correlationHeader": cfg.Server.Logging.CorrelationHeader,
			},
			"cors": map[string]any{
				"allowedOrigins": cfg.Server.CORS.AllowedOrigins,
			},
			"requestTimeoutSeconds": cfg.Server.RequestTimeoutSeconds,
		},
		"cache": map[string]any{
			"backend":              cfg.Cache.Backend,
			"ttlMillis":            cfg.Cache.TTLMillis,
			"sweepIntervalSeconds": cfg.Cache.SweepIntervalSeconds,
			"redis": map[string]any{
				"address":  cfg.Cache.Redis.Address,
				"username": cfg.Cache.Redis.Username,
				"password": cfg.Cache.Redis.Password,
				"db":       cfg.Cache.Redis.DB,
				"tls": map[string]any{
					"enabled": cfg.Cache.Redis.TLS.Enabled,
					"caFile":  cfg.Cache.Redis.TLS.CAFile,
				},
			},
		},
		"sheet": map[string]any{
			"documentId":             cfg.Sheet.DocumentID,
			"apiKey":                 cfg.Sheet.APIKey,
			"baseUrl":                cfg.Sheet.BaseURL,
			"defaultRange":           cfg.Sheet.DefaultRange,
			"rangeTemplate":          cfg.Sheet.RangeTemplate,
			"batchSize":              cfg.Sheet.BatchSize,
			"rowFilter":              cfg.Sheet.RowFilter,
			"metadataTimeoutSeconds": cfg.Sheet.MetadataTimeoutSeconds,
			"batchTimeoutSeconds":    cfg.Sheet.BatchTimeoutSeconds,
			"columns": map[string]any{
				"timestamp": cfg.Sheet.Columns.Timestamp,
				"teacher":   cfg.Sheet.Columns.Teacher,
				"student":   cfg.Sheet.Columns.Student,
				"date":      cfg.Sheet.Columns.Date,
				"time":      cfg.Sheet.Columns.Time,
				"duration":  cfg.Sheet.Columns.Duration,
			},
		},
	}
}
