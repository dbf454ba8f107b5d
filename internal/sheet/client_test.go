package sheet

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedDoer replays canned responses and records every request it saw.
type scriptedDoer struct {
	handler  func(req *http.Request, call int) (*http.Response, error)
	requests []*http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	call := len(d.requests)
	d.requests = append(d.requests, req)
	return d.handler(req, call)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/json"}},
	}
}

func newTestClient(t *testing.T, doer *scriptedDoer) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		DocumentID: "doc-1234567890",
		APIKey:     "key-abcdef",
		HTTPClient: doer,
		Retry:      quickRetry(3),
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresCoordinates(t *testing.T) {
	_, err := NewClient(ClientConfig{APIKey: "key"})
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(ClientConfig{DocumentID: "doc"})
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(ClientConfig{DocumentID: "  ", APIKey: "key"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestRowCountReadsSheetMetadata(t *testing.T) {
	doer := &scriptedDoer{handler: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(200, `{"sheets":[
			{"properties":{"title":"Lain","gridProperties":{"rowCount":99,"columnCount":3}}},
			{"properties":{"title":"Presensi","gridProperties":{"rowCount":412,"columnCount":6}}}
		]}`), nil
	}}
	client := newTestClient(t, doer)

	count, err := client.RowCount(context.Background(), "Presensi")
	require.NoError(t, err)
	require.Equal(t, 412, count)
	require.Len(t, doer.requests, 1)

	query := doer.requests[0].URL.Query()
	require.Equal(t, "sheets.properties", query.Get("fields"))
	require.Equal(t, "key-abcdef", query.Get("key"))
}

func TestRowCountUnknownSheetIsClientFault(t *testing.T) {
	doer := &scriptedDoer{handler: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(200, `{"sheets":[]}`), nil
	}}
	client := newTestClient(t, doer)

	_, err := client.RowCount(context.Background(), "Presensi")
	require.Error(t, err)
	require.True(t, IsClientFault(err))
	// Absent sheets are not transient, so no retries happen.
	require.Len(t, doer.requests, 1)
}

func TestHeaderRowAbsentIsNotAnError(t *testing.T) {
	doer := &scriptedDoer{handler: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(200, `{"range":"Presensi!A1:F1"}`), nil
	}}
	client := newTestClient(t, doer)

	headers, ok, err := client.HeaderRow(context.Background(), "Presensi!A1:F1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, headers)
}

func TestBatchGetSendsRangesInOrder(t *testing.T) {
	doer := &scriptedDoer{handler: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(200, `{"valueRanges":[
			{"range":"Presensi!A5002:F10001","values":[["a"],["b"]]},
			{"range":"Presensi!A2:F5001","values":[["c"]]}
		]}`), nil
	}}
	client := newTestClient(t, doer)

	grids, err := client.BatchGet(context.Background(), []string{"Presensi!A5002:F10001", "Presensi!A2:F5001"})
	require.NoError(t, err)
	require.Len(t, grids, 2)
	require.Equal(t, [][]string{{"a"}, {"b"}}, grids[0])
	require.Equal(t, [][]string{{"c"}}, grids[1])

	query := doer.requests[0].URL.Query()
	require.Equal(t, []string{"Presensi!A5002:F10001", "Presensi!A2:F5001"}, query["ranges"])
}

func TestCallRetriesServerErrors(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ *http.Request, call int) (*http.Response, error) {
		if call < 2 {
			return jsonResponse(500, `{}`), nil
		}
		return jsonResponse(200, `{"range":"Presensi!A1:F1","values":[["Timestamp"]]}`), nil
	}}
	client := newTestClient(t, doer)

	headers, ok, err := client.HeaderRow(context.Background(), "Presensi!A1:F1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"Timestamp"}, headers)
	require.Len(t, doer.requests, 3)
}

func TestCallDoesNotRetryPermissionDenied(t *testing.T) {
	doer := &scriptedDoer{handler: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(403, `{}`), nil
	}}
	client := newTestClient(t, doer)

	_, _, err := client.HeaderRow(context.Background(), "Presensi!A1:F1")
	require.Error(t, err)
	require.True(t, IsClientFault(err))
	require.False(t, IsExhausted(err))
	require.Len(t, doer.requests, 1)
}

func TestCallWrapsPersistentFailureAsExhausted(t *testing.T) {
	doer := &scriptedDoer{handler: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(503, `{}`), nil
	}}
	client := newTestClient(t, doer)

	_, _, err := client.HeaderRow(context.Background(), "Presensi!A1:F1")
	require.Error(t, err)
	require.True(t, IsExhausted(err))
	require.Len(t, doer.requests, 3)
}

func TestRedactTruncatesIdentifiers(t *testing.T) {
	require.Equal(t, "doc-…", Redact("doc-1234567890"))
	require.Equal(t, "****", Redact("abc"))
	require.Equal(t, "****", Redact(""))
}
