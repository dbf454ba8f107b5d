package sheet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dnaufal/presensi/internal/metrics"
)

const (
	defaultBatchSize = 5000
	// minRowBuffer absorbs rows that normalization will later drop. The
	// buffer is at least half the requested window, never below this floor.
	minRowBuffer = 200
)

// FetchRequest describes how much of the sheet one request plausibly needs.
type FetchRequest struct {
	// Year selects the year-qualified range; empty falls back to the
	// configured default range.
	Year string
	// Page and PageSize drive the rows-needed estimate.
	Page     int
	PageSize int
	// All forces a full-range fetch regardless of page and size.
	All bool
}

// FetchResult is the outcome of one completed fetch cycle: the normalized
// record set sorted newest-first plus the cycle's observability data.
type FetchResult struct {
	Records []Record
	// TotalRows is the sheet's row count at fetch time, header included.
	TotalRows int
	// RawRows counts data rows retrieved before normalization dropped any.
	RawRows int
	// Ranges lists the row ranges requested in the batch call.
	Ranges   []string
	Duration time.Duration
}

// FetcherConfig wires the fetch planner to its collaborators.
type FetcherConfig struct {
	DefaultRange  string
	RangeTemplate *RangeTemplate
	BatchSize     int
	Columns       Columns
	// RecordFilter optionally drops records after normalization; nil keeps
	// everything.
	RecordFilter func(Record) bool
	Metrics      *metrics.Recorder
	Logger       *slog.Logger
}

// Fetcher plans and executes bulk reads against the remote sheet. Data is
// always read from the bottom upward because new submissions append at the
// end; only as many batches are planned as the request plausibly needs.
type Fetcher struct {
	client *Client
	cfg    FetcherConfig

	mu           sync.Mutex
	lastRowCount int
}

// NewFetcher builds a fetcher over an already-validated client.
func NewFetcher(client *Client, cfg FetcherConfig) *Fetcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Columns == (Columns{}) {
		cfg.Columns = DefaultColumns()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger.With(slog.String("agent", "sheet_fetcher"))
	return &Fetcher{client: client, cfg: cfg}
}

// RowsNeeded estimates how many data rows a page request must pull from the
// tail of the sheet, inflated so rows dropped during normalization do not
// leave the page short. Over-fetching slightly is cheaper than a second
// round trip.
func RowsNeeded(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	needed := page * pageSize
	buffer := needed / 2
	if buffer < minRowBuffer {
		buffer = minRowBuffer
	}
	return needed + buffer
}

// Fetch runs one full cycle: header row, row count, batch plan, one
// multi-range read, then merge, normalize, and sort. A sheet without a
// header yields an empty result rather than an error.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	started := time.Now()

	spec, err := f.resolveRange(req.Year)
	if err != nil {
		f.cfg.Metrics.ObserveFetch(metrics.FetchError, 0, time.Since(started))
		return FetchResult{}, err
	}

	headers, ok, err := f.client.HeaderRow(ctx, spec.rowRange(1, 1))
	if err != nil {
		f.cfg.Metrics.ObserveFetch(metrics.FetchError, 0, time.Since(started))
		return FetchResult{}, err
	}
	if !ok {
		f.cfg.Logger.Info("sheet has no header row, treating as empty", slog.String("sheet", spec.Sheet))
		f.cfg.Metrics.ObserveFetch(metrics.FetchEmpty, 0, time.Since(started))
		return FetchResult{Duration: time.Since(started)}, nil
	}

	rowCount, err := f.rowCount(ctx, spec.Sheet)
	if err != nil {
		f.cfg.Metrics.ObserveFetch(metrics.FetchError, 0, time.Since(started))
		return FetchResult{}, err
	}
	if rowCount <= 1 {
		f.cfg.Metrics.ObserveFetch(metrics.FetchEmpty, 0, time.Since(started))
		return FetchResult{TotalRows: rowCount, Duration: time.Since(started)}, nil
	}

	needed := rowCount - 1
	if !req.All {
		needed = RowsNeeded(req.Page, req.PageSize)
	}
	plan := planBatches(rowCount, needed, f.cfg.BatchSize)
	ranges := make([]string, len(plan))
	for i, b := range plan {
		ranges[i] = spec.rowRange(b.start, b.end)
	}

	grids, err := f.client.BatchGet(ctx, ranges)
	if err != nil {
		f.cfg.Metrics.ObserveFetch(metrics.FetchError, 0, time.Since(started))
		return FetchResult{}, err
	}

	rows := mergeBottomFirst(plan, grids)
	records := NormalizeRows(headers, rows, f.cfg.Columns)
	if f.cfg.RecordFilter != nil {
		kept := records[:0]
		for _, r := range records {
			if f.cfg.RecordFilter(r) {
				kept = append(kept, r)
			}
		}
		records = kept
	}
	records = SortNewestFirst(records)

	result := FetchResult{
		Records:   records,
		TotalRows: rowCount,
		RawRows:   len(rows),
		Ranges:    ranges,
		Duration:  time.Since(started),
	}
	f.cfg.Logger.Debug("fetch cycle complete",
		slog.String("sheet", spec.Sheet),
		slog.Int("raw_rows", result.RawRows),
		slog.Int("records", len(records)),
		slog.Int("batches", len(ranges)),
		slog.Duration("took", result.Duration))
	f.cfg.Metrics.ObserveFetch(metrics.FetchOK, result.RawRows, result.Duration)
	return result, nil
}

// resolveRange picks the year-qualified range when a year is present,
// otherwise the configured default range.
func (f *Fetcher) resolveRange(year string) (rangeSpec, error) {
	raw := f.cfg.DefaultRange
	if year != "" && f.cfg.RangeTemplate != nil {
		rendered, err := f.cfg.RangeTemplate.Render(year)
		if err != nil {
			return rangeSpec{}, err
		}
		raw = rendered
	}
	return parseRange(raw)
}

// rowCount queries sheet metadata, remembering the answer so a failed
// metadata call can fall back to the last known count instead of aborting
// the whole cycle.
func (f *Fetcher) rowCount(ctx context.Context, sheetName string) (int, error) {
	count, err := f.client.RowCount(ctx, sheetName)
	if err != nil {
		f.mu.Lock()
		remembered := f.lastRowCount
		f.mu.Unlock()
		if remembered > 0 && !IsClientFault(err) {
			f.cfg.Logger.Warn("row count lookup failed, using remembered count",
				slog.Int("rows", remembered), slog.Any("error", err))
			return remembered, nil
		}
		return 0, err
	}
	f.mu.Lock()
	f.lastRowCount = count
	f.mu.Unlock()
	return count, nil
}

type batch struct {
	start, end int
}

// planBatches walks from the bottom of the sheet upward in fixed-size
// chunks until the estimated need is covered or the header row is reached.
// Row 1 is the header and is never part of a data batch.
func planBatches(rowCount, needed, batchSize int) []batch {
	var plan []batch
	planned := 0
	end := rowCount
	for end >= 2 && planned < needed {
		start := end - batchSize + 1
		if start < 2 {
			start = 2
		}
		plan = append(plan, batch{start: start, end: end})
		planned += end - start + 1
		end = start - 1
	}
	return plan
}

// mergeBottomFirst flattens the returned grids into one bottom-of-sheet
// first row sequence. Each grid arrives top-down and must be reversed,
// because the batch was planned to be read from the bottom up.
func mergeBottomFirst(plan []batch, grids [][][]string) []Row {
	var rows []Row
	for i, grid := range grids {
		if i >= len(plan) {
			break
		}
		for j := len(grid) - 1; j >= 0; j-- {
			rows = append(rows, Row{Cells: grid[j], Number: plan[i].start + j})
		}
	}
	return rows
}

// LastRowCount exposes the remembered row count for status reporting.
func (f *Fetcher) LastRowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRowCount
}
