package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/dnaufal/presensi/internal/filter"
	"github.com/dnaufal/presensi/internal/metrics"
	"github.com/dnaufal/presensi/internal/service"
)

const maxPageSize = 100

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// API defines the surface the router needs from the orchestrator, so the
// routing facade owns URL dispatch and parameter validation without the
// orchestrator embedding any HTTP logic.
type API interface {
	GetData(ctx context.Context, q service.Query) (service.DataEnvelope, error)
	SearchData(ctx context.Context, term string, page, pageSize int) (service.DataEnvelope, error)
	Refresh(ctx context.Context, pattern string) service.RefreshEnvelope
	Status(ctx context.Context) service.StatusEnvelope
	ClearCache(ctx context.Context) service.RefreshEnvelope
}

// RouterOptions carries the edge policy knobs.
type RouterOptions struct {
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	// RequestTimeout bounds each request end to end, remote calls included.
	RequestTimeout time.Duration
}

type router struct {
	api     API
	metrics *metrics.Recorder
	logger  *slog.Logger
	timeout time.Duration
}

// NewAPIHandler wires the HTTP routes to the orchestrator.
func NewAPIHandler(api API, opts RouterOptions) http.Handler {
	if api == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := &router{
		api:     api,
		metrics: opts.Metrics,
		logger:  logger.With(slog.String("agent", "router")),
		timeout: opts.RequestTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/data", rt.handleData)
	mux.HandleFunc("GET /api/search", rt.handleSearch)
	mux.HandleFunc("GET /api/refresh", rt.handleRefresh)
	mux.HandleFunc("GET /api/status", rt.handleStatus)
	mux.HandleFunc("POST /api/cache/clear", rt.handleCacheClear)
	mux.HandleFunc("GET /healthz", rt.handleHealth)
	return mux
}

func (rt *router) handleData(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	query := r.URL.Query()

	year := strings.TrimSpace(query.Get("year"))
	if year != "" && !yearPattern.MatchString(year) {
		rt.writeValidationError(w, "data", started, fmt.Sprintf("year %q must be a 4-digit year", year))
		return
	}
	page, pageSize, err := parsePaging(query.Get("page"), query.Get("pageSize"))
	if err != nil {
		rt.writeValidationError(w, "data", started, err.Error())
		return
	}

	ctx, cancel := rt.requestContext(r)
	defer cancel()

	env, err := rt.api.GetData(ctx, service.Query{
		Year:     year,
		Page:     page,
		PageSize: pageSize,
		Criteria: filter.Criteria{
			Search:   query.Get("search"),
			Teacher:  query.Get("teacher"),
			Student:  query.Get("student"),
			DateFrom: query.Get("dateFrom"),
			DateTo:   query.Get("dateTo"),
		},
	})
	if err != nil {
		rt.writeFailure(w, "data", started, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, env)
	rt.metrics.ObserveRequest("data", http.StatusOK, env.FromCache, time.Since(started))
}

func (rt *router) handleSearch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	query := r.URL.Query()

	term := strings.TrimSpace(query.Get("q"))
	if term == "" {
		term = strings.TrimSpace(query.Get("term"))
	}
	if term == "" {
		rt.writeValidationError(w, "search", started, "search term required (q)")
		return
	}
	page, pageSize, err := parsePaging(query.Get("page"), query.Get("pageSize"))
	if err != nil {
		rt.writeValidationError(w, "search", started, err.Error())
		return
	}

	ctx, cancel := rt.requestContext(r)
	defer cancel()

	env, err := rt.api.SearchData(ctx, term, page, pageSize)
	if err != nil {
		rt.writeFailure(w, "search", started, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, env)
	rt.metrics.ObserveRequest("search", http.StatusOK, env.FromCache, time.Since(started))
}

func (rt *router) handleRefresh(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	env := rt.api.Refresh(ctx, r.URL.Query().Get("pattern"))
	rt.writeJSON(w, http.StatusOK, env)
	rt.metrics.ObserveRequest("refresh", http.StatusOK, false, time.Since(started))
}

func (rt *router) handleStatus(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	env := rt.api.Status(ctx)
	rt.writeJSON(w, http.StatusOK, env)
	rt.metrics.ObserveRequest("status", http.StatusOK, false, time.Since(started))
}

func (rt *router) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	env := rt.api.ClearCache(ctx)
	rt.writeJSON(w, http.StatusOK, env)
	rt.metrics.ObserveRequest("cache_clear", http.StatusOK, false, time.Since(started))
}

func (rt *router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	rt.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestContext attaches the per-request deadline so outstanding remote
// calls are aborted instead of outliving the response.
func (rt *router) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if rt.timeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), rt.timeout)
}

func (rt *router) writeFailure(w http.ResponseWriter, endpoint string, started time.Time, err error) {
	status := service.HTTPStatus(err)
	rt.logger.Error("request failed",
		slog.String("endpoint", endpoint),
		slog.Int("status", status),
		slog.Any("error", err))
	rt.writeJSON(w, status, service.NewErrorEnvelope(service.PublicMessage(err)))
	rt.metrics.ObserveRequest(endpoint, status, false, time.Since(started))
}

func (rt *router) writeValidationError(w http.ResponseWriter, endpoint string, started time.Time, message string) {
	rt.writeJSON(w, http.StatusBadRequest, service.NewErrorEnvelope(message))
	rt.metrics.ObserveRequest(endpoint, http.StatusBadRequest, false, time.Since(started))
}

func (rt *router) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		rt.logger.Error("response encode failed", slog.Any("error", err))
	}
}

// parsePaging validates the 1-based page and bounded page size, applying
// the documented defaults when absent.
func parsePaging(pageStr, sizeStr string) (int, int, error) {
	page := 1
	if pageStr = strings.TrimSpace(pageStr); pageStr != "" {
		parsed, err := strconv.Atoi(pageStr)
		if err != nil || parsed < 1 {
			return 0, 0, fmt.Errorf("page %q must be a positive integer", pageStr)
		}
		page = parsed
	}
	size := 20
	if sizeStr = strings.TrimSpace(sizeStr); sizeStr != "" {
		parsed, err := strconv.Atoi(sizeStr)
		if err != nil || parsed < 1 || parsed > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize %q must be between 1 and %d", sizeStr, maxPageSize)
		}
		size = parsed
	}
	return page, size, nil
}
