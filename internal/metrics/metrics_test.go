package metrics

import (
	"errors"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveRequest(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveRequest("data", 200, true, 250*time.Millisecond)

	families := gather(t, rec, "presensi_api_requests_total", "presensi_api_request_duration_seconds")

	counter := findMetric(t, families["presensi_api_requests_total"], map[string]string{
		"endpoint":    "data",
		"status_code": "200",
		"from_cache":  "true",
	})
	if counter.GetCounter() == nil {
		t.Fatalf("expected counter metric for api requests")
	}
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}

	histMetric := findMetric(t, families["presensi_api_request_duration_seconds"], map[string]string{
		"endpoint": "data",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for api latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.25
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveCacheOperations(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCacheLookup(CacheLookupHit, 10*time.Millisecond)
	rec.ObserveCacheStore(nil, 5*time.Millisecond)
	rec.ObserveCacheClear(errors.New("backend down"), time.Millisecond)

	families := gather(t, rec, "presensi_cache_operations_total")

	lookupMetric := findMetric(t, families["presensi_cache_operations_total"], map[string]string{
		"operation": string(CacheOperationLookup),
		"result":    string(CacheLookupHit),
	})
	if got := lookupMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected lookup counter 1, got %v", got)
	}

	storeMetric := findMetric(t, families["presensi_cache_operations_total"], map[string]string{
		"operation": string(CacheOperationStore),
		"result":    "stored",
	})
	if got := storeMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected store counter 1, got %v", got)
	}

	clearMetric := findMetric(t, families["presensi_cache_operations_total"], map[string]string{
		"operation": string(CacheOperationClear),
		"result":    "error",
	})
	if got := clearMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected clear counter 1, got %v", got)
	}
}

func TestRecorderObserveFetch(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveFetch(FetchOK, 480, 2*time.Second)
	rec.ObserveFetch(FetchError, 0, time.Second)

	families := gather(t, rec, "presensi_sheet_fetch_cycles_total", "presensi_sheet_fetch_rows_total")

	okMetric := findMetric(t, families["presensi_sheet_fetch_cycles_total"], map[string]string{
		"outcome": string(FetchOK),
	})
	if got := okMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected ok cycle counter 1, got %v", got)
	}

	rows := families["presensi_sheet_fetch_rows_total"]
	if len(rows) != 1 {
		t.Fatalf("expected one row counter, got %d", len(rows))
	}
	if got := rows[0].GetCounter().GetValue(); got != 480 {
		t.Fatalf("expected 480 rows recorded, got %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveRequest("data", 200, false, time.Millisecond)
	rec.ObserveCacheLookup(CacheLookupMiss, time.Millisecond)
	rec.ObserveCacheStore(nil, time.Millisecond)
	rec.ObserveCacheClear(nil, time.Millisecond)
	rec.ObserveFetch(FetchOK, 1, time.Millisecond)

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 503 {
		t.Fatalf("expected 503 from nil recorder handler, got %d", rr.Code)
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
