package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dnaufal/presensi/internal/cache"
	"github.com/dnaufal/presensi/internal/config"
	"github.com/dnaufal/presensi/internal/logging"
	"github.com/dnaufal/presensi/internal/metrics"
	"github.com/dnaufal/presensi/internal/rowexpr"
	"github.com/dnaufal/presensi/internal/server"
	"github.com/dnaufal/presensi/internal/service"
	"github.com/dnaufal/presensi/internal/sheet"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "PRESENSI", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)

	responseCache := buildResponseCache(logger.With(slog.String("agent", "cache_factory")), cfg.Cache)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := responseCache.Close(closeCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	fetcher, err := buildFetcher(cfg, logger, recorder)
	if err != nil {
		logger.Error("unable to construct fetcher", slog.Any("error", err))
		os.Exit(1)
	}

	svc := service.New(service.Options{
		Config:  cfg,
		Fetcher: fetcher,
		Cache:   responseCache,
		Logger:  logger,
		Metrics: recorder,
	})

	if *configFile != "" {
		watcher, err := loader.Watch(ctx, func(next config.Config) {
			nextFetcher, err := buildFetcher(next, logger, recorder)
			if err != nil {
				logger.Error("reloaded configuration rejected", slog.Any("error", err))
				return
			}
			svc.Swap(ctx, next, nextFetcher)
		}, func(err error) {
			if err != nil {
				logger.Error("config watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	apiHandler := server.NewAPIHandler(svc, server.RouterOptions{
		Metrics:        recorder,
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout(),
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/", apiHandler)

	handler := server.WithCorrelationID(cfg.Server.Logging.CorrelationHeader,
		server.WithCORS(cfg.Server.CORS.AllowedOrigins, mux))

	srv, err := server.New(cfg, logger, handler)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildFetcher assembles the sheet client and fetch planner from one config
// snapshot. It runs both at startup and on config reload, so every error is
// reported rather than deferred to first use.
func buildFetcher(cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder) (*sheet.Fetcher, error) {
	client, err := sheet.NewClient(sheet.ClientConfig{
		DocumentID:      cfg.Sheet.DocumentID,
		APIKey:          cfg.Sheet.APIKey,
		BaseURL:         cfg.Sheet.BaseURL,
		MetadataTimeout: cfg.Sheet.MetadataTimeout(),
		BatchTimeout:    cfg.Sheet.BatchTimeout(),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	fetcherCfg := sheet.FetcherConfig{
		DefaultRange: cfg.Sheet.DefaultRange,
		BatchSize:    cfg.Sheet.BatchSize,
		Columns:      cfg.Sheet.Columns,
		Metrics:      recorder,
		Logger:       logger,
	}

	if tmplSource := strings.TrimSpace(cfg.Sheet.RangeTemplate); tmplSource != "" {
		tmpl, err := sheet.NewRangeTemplate(tmplSource)
		if err != nil {
			return nil, err
		}
		fetcherCfg.RangeTemplate = tmpl
	}

	if exprSource := strings.TrimSpace(cfg.Sheet.RowFilter); exprSource != "" {
		env, err := rowexpr.NewEnvironment()
		if err != nil {
			return nil, err
		}
		program, err := env.Compile(exprSource)
		if err != nil {
			return nil, err
		}
		fetcherCfg.RecordFilter = program.Keep
	}

	return sheet.NewFetcher(client, fetcherCfg), nil
}

// buildResponseCache picks the configured backend, falling back to memory
// when redis is unreachable so a cache outage degrades latency rather than
// availability.
func buildResponseCache(logger *slog.Logger, cfg config.CacheConfig) cache.ResponseCache {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory response cache", slog.Duration("ttl", cfg.TTL()))
		return cache.NewMemory(cfg.TTL(), cfg.SweepInterval(), logger)
	case "redis":
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.TTL(),
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Error("redis cache initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory cache")
			return cache.NewMemory(cfg.TTL(), cfg.SweepInterval(), logger)
		}
		logger.Info("using redis response cache", slog.String("address", cfg.Redis.Address))
		return redisCache
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return cache.NewMemory(cfg.TTL(), cfg.SweepInterval(), logger)
	}
}
