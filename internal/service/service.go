// Package service orchestrates the fetch/cache/filter pipeline behind the
// HTTP surface: fingerprint the request, consult the response cache, fetch
// and filter on a miss, and store the computed payload for the next caller.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dnaufal/presensi/internal/cache"
	"github.com/dnaufal/presensi/internal/config"
	"github.com/dnaufal/presensi/internal/filter"
	"github.com/dnaufal/presensi/internal/metrics"
	"github.com/dnaufal/presensi/internal/sheet"
)

// Fetcher is the slice of the remote fetcher the orchestrator needs.
type Fetcher interface {
	Fetch(ctx context.Context, req sheet.FetchRequest) (sheet.FetchResult, error)
	LastRowCount() int
}

// Query is a normalized data request.
type Query struct {
	Year     string
	Page     int
	PageSize int
	Criteria filter.Criteria
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Config  config.Config
	Fetcher Fetcher
	Cache   cache.ResponseCache
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Service composes cache, fetcher, and filter engine per request. The only
// shared mutable state is the cache backend and the swappable config
// snapshot; everything else is per-request.
type Service struct {
	mu      sync.RWMutex
	cfg     config.Config
	fetcher Fetcher

	cache   cache.ResponseCache
	logger  *slog.Logger
	metrics *metrics.Recorder
	started time.Time
}

// New builds the orchestrator.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     opts.Config,
		fetcher: opts.Fetcher,
		cache:   opts.Cache,
		logger:  logger.With(slog.String("agent", "orchestrator")),
		metrics: opts.Metrics,
		started: time.Now(),
	}
}

// Swap installs a new config snapshot and fetcher, then clears the response
// cache so stale payloads computed under the old configuration cannot be
// served.
func (s *Service) Swap(ctx context.Context, cfg config.Config, fetcher Fetcher) {
	s.mu.Lock()
	s.cfg = cfg
	s.fetcher = fetcher
	s.mu.Unlock()

	removed, err := s.cache.Clear(ctx)
	if err != nil {
		s.logger.Warn("cache clear after reconfigure failed", slog.Any("error", err))
		return
	}
	s.logger.Info("configuration swapped", slog.Int("cache_entries_cleared", removed))
}

func (s *Service) snapshot() (config.Config, Fetcher) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.fetcher
}

// GetData serves one paginated, filtered view of the sheet, from cache when
// a fresh enough payload exists.
func (s *Service) GetData(ctx context.Context, q Query) (DataEnvelope, error) {
	q = normalizeQuery(q)
	key := cache.Key(q.Year, q.Page, q.PageSize, q.Criteria)

	if env, ok := s.lookup(ctx, key); ok {
		return env, nil
	}

	_, fetcher := s.snapshot()
	// Search criteria filter before pagination, so the page/size estimate
	// cannot bound the rows needed; those requests read the full range.
	req := sheet.FetchRequest{
		Year:     q.Year,
		Page:     q.Page,
		PageSize: q.PageSize,
		All:      !q.Criteria.IsZero(),
	}
	result, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return DataEnvelope{}, fmt.Errorf("service: fetch: %w", err)
	}

	records := filter.ByYear(result.Records, q.Year)
	before := len(records)
	switch {
	case q.Criteria.IsZero():
	case q.Criteria.CriteriaCount() == 1 && strings.TrimSpace(q.Criteria.Search) != "":
		records = filter.Search(records, q.Criteria.Search)
	default:
		records = filter.Advanced(records, q.Criteria)
	}
	after := len(records)

	page, pagination := filter.Paginate(records, q.Page, q.PageSize)

	env := DataEnvelope{
		Success:    true,
		Data:       page,
		Pagination: pagination,
		Filters: FilterEcho{
			Year:     q.Year,
			Search:   q.Criteria.Search,
			Teacher:  q.Criteria.Teacher,
			Student:  q.Criteria.Student,
			DateFrom: q.Criteria.DateFrom,
			DateTo:   q.Criteria.DateTo,
		},
		Fetch: FetchInfo{
			DurationMillis: result.Duration.Milliseconds(),
			TotalRows:      result.TotalRows,
			BeforeFilter:   before,
			AfterFilter:    after,
		},
		Timestamp: nowStamp(),
	}

	s.store(ctx, key, env)
	return env, nil
}

// SearchData is the simple free-text variant: the term rides through the
// same pipeline as a single-criterion query.
func (s *Service) SearchData(ctx context.Context, term string, page, pageSize int) (DataEnvelope, error) {
	return s.GetData(ctx, Query{
		Page:     page,
		PageSize: pageSize,
		Criteria: filter.Criteria{Search: term},
	})
}

// Refresh clears the cache, optionally scoped to keys containing pattern.
// It deliberately does not re-fetch; the next request repopulates on miss.
func (s *Service) Refresh(ctx context.Context, pattern string) RefreshEnvelope {
	started := time.Now()
	var (
		removed int
		err     error
	)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		removed, err = s.cache.Clear(ctx)
	} else {
		removed, err = s.cache.ClearPattern(ctx, pattern)
	}
	s.metrics.ObserveCacheClear(err, time.Since(started))
	if err != nil {
		// A dead cache backend means there is nothing stale to serve
		// anyway; report the refresh as done.
		s.logger.Warn("cache clear failed", slog.Any("error", err))
	}
	message := "cache cleared"
	if pattern != "" {
		message = "cache entries matching pattern cleared"
	}
	return RefreshEnvelope{
		Success:        true,
		Message:        message,
		EntriesCleared: removed,
		Pattern:        pattern,
		Timestamp:      nowStamp(),
	}
}

// Status reports the fetcher configuration (secrets redacted) and cache
// statistics.
func (s *Service) Status(ctx context.Context) StatusEnvelope {
	cfg, fetcher := s.snapshot()

	stats, err := s.cache.Stats(ctx)
	if err != nil {
		s.logger.Warn("cache stats failed", slog.Any("error", err))
		stats = cache.Stats{Backend: "unavailable"}
	}

	return StatusEnvelope{
		Success:       true,
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Sheet: SheetStatus{
			DocumentID:    sheet.Redact(cfg.Sheet.DocumentID),
			APIKey:        sheet.Redact(cfg.Sheet.APIKey),
			DefaultRange:  cfg.Sheet.DefaultRange,
			RangeTemplate: cfg.Sheet.RangeTemplate,
			BatchSize:     cfg.Sheet.BatchSize,
			LastRowCount:  fetcher.LastRowCount(),
			RowFilter:     cfg.Sheet.RowFilter,
		},
		Cache:     stats,
		Timestamp: nowStamp(),
	}
}

// ClearCache removes every cached payload unconditionally.
func (s *Service) ClearCache(ctx context.Context) RefreshEnvelope {
	return s.Refresh(ctx, "")
}

// lookup consults the cache, absorbing backend errors as misses so a dead
// cache degrades to a slower, still-correct fetch path.
func (s *Service) lookup(ctx context.Context, key string) (DataEnvelope, bool) {
	started := time.Now()
	entry, ok, err := s.cache.Lookup(ctx, key)
	if err != nil {
		s.metrics.ObserveCacheLookup(metrics.CacheLookupError, time.Since(started))
		s.logger.Warn("cache lookup failed, treating as miss", slog.Any("error", err))
		return DataEnvelope{}, false
	}
	if !ok {
		s.metrics.ObserveCacheLookup(metrics.CacheLookupMiss, time.Since(started))
		return DataEnvelope{}, false
	}
	var env DataEnvelope
	if err := json.Unmarshal(entry.Payload, &env); err != nil {
		s.metrics.ObserveCacheLookup(metrics.CacheLookupError, time.Since(started))
		s.logger.Warn("cached payload unreadable, treating as miss", slog.Any("error", err))
		return DataEnvelope{}, false
	}
	s.metrics.ObserveCacheLookup(metrics.CacheLookupHit, time.Since(started))
	env.FromCache = true
	return env, true
}

// store persists the computed envelope best-effort; the marker field is
// zero so the payload stays marker-free at rest.
func (s *Service) store(ctx context.Context, key string, env DataEnvelope) {
	started := time.Now()
	payload, err := json.Marshal(env)
	if err != nil {
		s.metrics.ObserveCacheStore(err, time.Since(started))
		s.logger.Warn("payload marshal failed, skipping cache store", slog.Any("error", err))
		return
	}
	cfg, _ := s.snapshot()
	now := time.Now().UTC()
	err = s.cache.Store(ctx, key, cache.Entry{
		Payload:   payload,
		StoredAt:  now,
		ExpiresAt: now.Add(cfg.Cache.TTL()),
	})
	s.metrics.ObserveCacheStore(err, time.Since(started))
	if err != nil {
		s.logger.Warn("cache store failed", slog.Any("error", err))
	}
}

func normalizeQuery(q Query) Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	q.Year = strings.TrimSpace(q.Year)
	q.Criteria = q.Criteria.Normalized()
	return q
}
