package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// httpDoer is the transport seam the client talks through so tests can
// substitute a scripted responder.
type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// ClientConfig carries the remote-source coordinates. DocumentID and APIKey
// are mandatory; everything else has working defaults.
type ClientConfig struct {
	DocumentID      string
	APIKey          string
	BaseURL         string
	MetadataTimeout time.Duration
	BatchTimeout    time.Duration
	Retry           RetryPolicy
	HTTPClient      httpDoer
	Logger          *slog.Logger
}

// Client reads a spreadsheet document through the values REST surface:
// a metadata call for per-sheet row counts, a header-row call, and one
// multi-range batch call per fetch cycle. Authentication is a static API
// key passed as a query parameter.
type Client struct {
	cfg    ClientConfig
	client httpDoer
	logger *slog.Logger
}

// NewClient validates the coordinates up front so a misconfigured process
// fails at construction instead of on first use.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.DocumentID) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 15 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 40 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: httpClient,
		logger: logger.With(slog.String("agent", "sheet_client")),
	}, nil
}

// DocumentID exposes the configured document for status reporting; callers
// are expected to truncate it themselves via Redact.
func (c *Client) DocumentID() string { return c.cfg.DocumentID }

// Redact truncates a secret-bearing identifier for logs and status output.
func Redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "…"
}

type sheetProperties struct {
	Title          string `json:"title"`
	GridProperties struct {
		RowCount    int `json:"rowCount"`
		ColumnCount int `json:"columnCount"`
	} `json:"gridProperties"`
}

type metadataResponse struct {
	Sheets []struct {
		Properties sheetProperties `json:"properties"`
	} `json:"sheets"`
}

type valueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

type batchGetResponse struct {
	ValueRanges []valueRange `json:"valueRanges"`
}

// RowCount returns the total row count of the named sheet from the document
// metadata. The metadata is intentionally re-fetched every cycle; staleness
// would otherwise leak into the batch plan.
func (c *Client) RowCount(ctx context.Context, sheetName string) (int, error) {
	endpoint := fmt.Sprintf("%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.DocumentID))
	query := url.Values{
		"fields": {"sheets.properties"},
		"key":    {c.cfg.APIKey},
	}

	var meta metadataResponse
	err := c.call(ctx, "metadata", endpoint, query, c.cfg.MetadataTimeout, &meta)
	if err != nil {
		return 0, err
	}
	for _, s := range meta.Sheets {
		if s.Properties.Title == sheetName {
			return s.Properties.GridProperties.RowCount, nil
		}
	}
	return 0, &RemoteError{Status: 404, Op: "metadata", Reason: fmt.Sprintf("sheet %q not present in document", sheetName)}
}

// HeaderRow fetches the first row of the given range. An absent header is
// reported as ok=false rather than an error: an empty sheet is a valid
// state, not a failure.
func (c *Client) HeaderRow(ctx context.Context, headerRange string) ([]string, bool, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.DocumentID), url.PathEscape(headerRange))
	query := url.Values{"key": {c.cfg.APIKey}}

	var vr valueRange
	if err := c.call(ctx, "header", endpoint, query, c.cfg.MetadataTimeout, &vr); err != nil {
		return nil, false, err
	}
	if len(vr.Values) == 0 || len(vr.Values[0]) == 0 {
		return nil, false, nil
	}
	return vr.Values[0], true, nil
}

// BatchGet issues one multi-range values call and returns the grids in the
// order the ranges were requested. One round trip regardless of how many
// batches the fetch plan produced.
func (c *Client) BatchGet(ctx context.Context, ranges []string) ([][][]string, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	endpoint := fmt.Sprintf("%s/%s/values:batchGet", c.cfg.BaseURL, url.PathEscape(c.cfg.DocumentID))
	query := url.Values{"key": {c.cfg.APIKey}}
	for _, r := range ranges {
		query.Add("ranges", r)
	}

	var resp batchGetResponse
	if err := c.call(ctx, "batch", endpoint, query, c.cfg.BatchTimeout, &resp); err != nil {
		return nil, err
	}
	grids := make([][][]string, len(resp.ValueRanges))
	for i, vr := range resp.ValueRanges {
		grids[i] = vr.Values
	}
	return grids, nil
}

// call performs one GET with retry/backoff applied around the whole
// request/decode cycle. Transient failures (429, 5xx, transport errors)
// are retried; other client faults propagate immediately.
func (c *Client) call(ctx context.Context, op, endpoint string, query url.Values, timeout time.Duration, out any) error {
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
		if err != nil {
			return fmt.Errorf("sheet: build %s request: %w", op, err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return &RemoteError{Op: op, Reason: "request failed", Err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			// Drain so the connection can be reused across retries.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return &RemoteError{Status: resp.StatusCode, Op: op, Reason: remoteReason(resp.StatusCode)}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("sheet: decode %s response: %w", op, err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// The retry loop only surfaces a retryable error once every attempt is
	// spent, so anything still transient here is an exhaustion.
	if IsRetryable(err) {
		c.logger.Warn("remote call exhausted retries",
			slog.String("op", op),
			slog.Int("attempts", c.cfg.Retry.MaxAttempts),
			slog.String("key", Redact(c.cfg.APIKey)))
		return &ExhaustedError{Attempts: c.cfg.Retry.MaxAttempts, Err: err}
	}
	return err
}
