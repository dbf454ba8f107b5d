package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"

	"github.com/dnaufal/presensi/internal/cache"
	"github.com/dnaufal/presensi/internal/filter"
	"github.com/dnaufal/presensi/internal/service"
	"github.com/dnaufal/presensi/internal/sheet"
)

// fakeAPI records the orchestrator calls the router makes and answers with
// canned envelopes.
type fakeAPI struct {
	lastQuery  service.Query
	lastTerm   string
	lastPage   int
	lastSize   int
	lastClear  string
	dataErr    error
	dataCalls  int
	clearCalls int
}

func (f *fakeAPI) GetData(_ context.Context, q service.Query) (service.DataEnvelope, error) {
	f.dataCalls++
	f.lastQuery = q
	if f.dataErr != nil {
		return service.DataEnvelope{}, f.dataErr
	}
	return service.DataEnvelope{
		Success: true,
		Data: []sheet.Record{
			{Timestamp: "08/01/2025 10:00:00", Teacher: "Eka", Student: "Fajar", Date: "08/01/2025", Time: "10:00", RowIndex: 4},
		},
		Pagination: filter.Pagination{Page: q.Page, PageSize: q.PageSize, TotalItems: 1, TotalPages: 1},
		Timestamp:  "2025-01-08T10:00:00Z",
	}, nil
}

func (f *fakeAPI) SearchData(ctx context.Context, term string, page, pageSize int) (service.DataEnvelope, error) {
	f.lastTerm, f.lastPage, f.lastSize = term, page, pageSize
	return f.GetData(ctx, service.Query{Page: page, PageSize: pageSize, Criteria: filter.Criteria{Search: term}})
}

func (f *fakeAPI) Refresh(_ context.Context, pattern string) service.RefreshEnvelope {
	f.lastClear = pattern
	return service.RefreshEnvelope{Success: true, Message: "cache cleared", EntriesCleared: 2, Pattern: pattern, Timestamp: "2025-01-08T10:00:00Z"}
}

func (f *fakeAPI) Status(context.Context) service.StatusEnvelope {
	return service.StatusEnvelope{
		Success: true,
		Status:  "ok",
		Sheet:   service.SheetStatus{DocumentID: "doc-…", APIKey: "key-…", DefaultRange: "Presensi!A:F", BatchSize: 5000},
		Cache:   cache.Stats{Backend: "memory", Total: 3, Active: 3},
	}
}

func (f *fakeAPI) ClearCache(context.Context) service.RefreshEnvelope {
	f.clearCalls++
	return service.RefreshEnvelope{Success: true, Message: "cache cleared", EntriesCleared: 5, Timestamp: "2025-01-08T10:00:00Z"}
}

func newRouterExpect(t *testing.T, api *fakeAPI) *httpexpect.Expect {
	t.Helper()
	handler := NewAPIHandler(api, RouterOptions{RequestTimeout: 5 * time.Second})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  srv.URL,
		Reporter: httpexpect.NewRequireReporter(t),
	})
}

func TestDataEndpoint(t *testing.T) {
	api := &fakeAPI{}
	e := newRouterExpect(t, api)

	body := e.GET("/api/data").
		WithQuery("year", "2024").
		WithQuery("page", "2").
		WithQuery("pageSize", "50").
		WithQuery("teacher", "andi").
		Expect().
		Status(http.StatusOK).
		HasContentType("application/json").
		JSON().Object()

	body.HasValue("success", true)
	body.Value("data").Array().Length().IsEqual(1)

	require.Equal(t, "2024", api.lastQuery.Year)
	require.Equal(t, 2, api.lastQuery.Page)
	require.Equal(t, 50, api.lastQuery.PageSize)
	require.Equal(t, "andi", api.lastQuery.Criteria.Teacher)
}

func TestDataEndpointDefaultsPaging(t *testing.T) {
	api := &fakeAPI{}
	e := newRouterExpect(t, api)

	e.GET("/api/data").Expect().Status(http.StatusOK)
	require.Equal(t, 1, api.lastQuery.Page)
	require.Equal(t, 20, api.lastQuery.PageSize)
}

func TestDataEndpointRejectsBadParameters(t *testing.T) {
	api := &fakeAPI{}
	e := newRouterExpect(t, api)

	for _, q := range []map[string]string{
		{"year": "24"},
		{"year": "abcd"},
		{"page": "0"},
		{"page": "x"},
		{"pageSize": "0"},
		{"pageSize": "101"},
	} {
		req := e.GET("/api/data")
		for k, v := range q {
			req = req.WithQuery(k, v)
		}
		body := req.Expect().Status(http.StatusBadRequest).JSON().Object()
		body.HasValue("error", true)
		body.Value("message").String().NotEmpty()
	}
	require.Zero(t, api.dataCalls)
}

func TestDataEndpointMapsPipelineFailures(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{sheet.ErrNotConfigured, http.StatusServiceUnavailable},
		{&sheet.RemoteError{Status: 403, Reason: "permission denied"}, http.StatusBadGateway},
		{&sheet.ExhaustedError{Attempts: 3, Err: &sheet.RemoteError{Status: 503}}, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		api := &fakeAPI{dataErr: tc.err}
		e := newRouterExpect(t, api)

		body := e.GET("/api/data").Expect().Status(tc.status).JSON().Object()
		body.HasValue("error", true)
	}
}

func TestSearchEndpoint(t *testing.T) {
	api := &fakeAPI{}
	e := newRouterExpect(t, api)

	e.GET("/api/search").WithQuery("q", "budi").Expect().Status(http.StatusOK)
	require.Equal(t, "budi", api.lastTerm)

	// The legacy parameter name still works.
	e.GET("/api/search").WithQuery("term", "siti").Expect().Status(http.StatusOK)
	require.Equal(t, "siti", api.lastTerm)

	e.GET("/api/search").Expect().Status(http.StatusBadRequest)
}

func TestRefreshEndpoint(t *testing.T) {
	api := &fakeAPI{}
	e := newRouterExpect(t, api)

	body := e.GET("/api/refresh").WithQuery("pattern", "year=2024").
		Expect().Status(http.StatusOK).JSON().Object()
	body.HasValue("success", true)
	body.HasValue("entriesCleared", 2)
	require.Equal(t, "year=2024", api.lastClear)
}

func TestStatusEndpoint(t *testing.T) {
	e := newRouterExpect(t, &fakeAPI{})

	body := e.GET("/api/status").Expect().Status(http.StatusOK).JSON().Object()
	body.HasValue("status", "ok")
	body.Path("$.sheet.documentId").String().IsEqual("doc-…")
	body.Path("$.cache.backend").String().IsEqual("memory")
}

func TestCacheClearEndpointRequiresPost(t *testing.T) {
	api := &fakeAPI{}
	e := newRouterExpect(t, api)

	e.POST("/api/cache/clear").Expect().Status(http.StatusOK).
		JSON().Object().HasValue("entriesCleared", 5)
	require.Equal(t, 1, api.clearCalls)

	e.GET("/api/cache/clear").Expect().Status(http.StatusMethodNotAllowed)
}

func TestHealthEndpoint(t *testing.T) {
	e := newRouterExpect(t, &fakeAPI{})
	e.GET("/healthz").Expect().Status(http.StatusOK).
		JSON().Object().HasValue("status", "ok")
}
