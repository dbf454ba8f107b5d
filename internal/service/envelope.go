package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dnaufal/presensi/internal/cache"
	"github.com/dnaufal/presensi/internal/filter"
	"github.com/dnaufal/presensi/internal/sheet"
)

// FilterEcho restates the filters a response was computed under so clients
// can render them without re-parsing their own request.
type FilterEcho struct {
	Year     string `json:"year,omitempty"`
	Search   string `json:"search,omitempty"`
	Teacher  string `json:"teacher,omitempty"`
	Student  string `json:"student,omitempty"`
	DateFrom string `json:"dateFrom,omitempty"`
	DateTo   string `json:"dateTo,omitempty"`
}

// FetchInfo reports how the underlying fetch cycle went.
type FetchInfo struct {
	DurationMillis int64 `json:"durationMs"`
	TotalRows      int   `json:"totalRows"`
	BeforeFilter   int   `json:"recordsBeforeFilter"`
	AfterFilter    int   `json:"recordsAfterFilter"`
}

// DataEnvelope is the payload for data and search responses. FromCache is
// never persisted as true: the cache stores the envelope without the
// marker and the marker is attached fresh on every cached serve.
type DataEnvelope struct {
	Success    bool              `json:"success"`
	Data       []sheet.Record    `json:"data"`
	Pagination filter.Pagination `json:"pagination"`
	Filters    FilterEcho        `json:"filters"`
	Fetch      FetchInfo         `json:"fetch"`
	FromCache  bool              `json:"fromCache"`
	Timestamp  string            `json:"timestamp"`
}

// RefreshEnvelope confirms a cache clear. The next normal request
// repopulates on miss; refresh never re-fetches eagerly.
type RefreshEnvelope struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	EntriesCleared int    `json:"entriesCleared"`
	Pattern        string `json:"pattern,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// SheetStatus is the fetcher configuration snapshot with secret-bearing
// identifiers truncated.
type SheetStatus struct {
	DocumentID    string `json:"documentId"`
	APIKey        string `json:"apiKey"`
	DefaultRange  string `json:"defaultRange"`
	RangeTemplate string `json:"rangeTemplate,omitempty"`
	BatchSize     int    `json:"batchSize"`
	LastRowCount  int    `json:"lastRowCount,omitempty"`
	RowFilter     string `json:"rowFilter,omitempty"`
}

// StatusEnvelope is the health/config/cache snapshot.
type StatusEnvelope struct {
	Success       bool        `json:"success"`
	Status        string      `json:"status"`
	UptimeSeconds int64       `json:"uptimeSeconds"`
	Sheet         SheetStatus `json:"sheet"`
	Cache         cache.Stats `json:"cache"`
	Timestamp     string      `json:"timestamp"`
}

// ErrorEnvelope is the stable external failure shape. No stack detail
// leaks through it.
type ErrorEnvelope struct {
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewErrorEnvelope stamps a failure message.
func NewErrorEnvelope(message string) ErrorEnvelope {
	return ErrorEnvelope{Error: true, Message: message, Timestamp: nowStamp()}
}

// HTTPStatus maps a pipeline failure to the external status code:
// misconfiguration reads as service-unavailable, remote client faults as
// bad-gateway, exhausted retries and deadlines as gateway-timeout.
func HTTPStatus(err error) int {
	switch {
	case sheet.IsNotConfigured(err):
		return http.StatusServiceUnavailable
	case sheet.IsExhausted(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case sheet.IsClientFault(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage renders the operator-safe description of a failure.
func PublicMessage(err error) string {
	switch {
	case sheet.IsNotConfigured(err):
		return "data source is not configured"
	case sheet.IsExhausted(err):
		return "data source did not respond in time"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case sheet.IsClientFault(err):
		var remote *sheet.RemoteError
		if errors.As(err, &remote) {
			return "data source rejected the request: " + remote.Reason
		}
		return "data source rejected the request"
	default:
		return "internal error"
	}
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
