package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if NewCollector(prometheus.NewRegistry()) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordHTTPRequest_CountsByMethodAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("GET", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("GET", 200, 20*time.Millisecond)
	c.RecordHTTPRequest("PATCH", 500, time.Second)

	if v := findMetric(t, reg, "bookmarkman_http_requests_total", map[string]string{"method": "GET", "status": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("GET 200 = %v, want 2", v)
	}
	if v := findMetric(t, reg, "bookmarkman_http_requests_total", map[string]string{"method": "PATCH", "status": "500"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("PATCH 500 = %v, want 1", v)
	}
	if n := findMetric(t, reg, "bookmarkman_http_request_duration_seconds", nil).GetHistogram().GetSampleCount(); n != 3 {
		t.Errorf("sample count = %d, want 3", n)
	}
}

func TestRecordReorder_CountsResultAndRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReorder("success", 3, 1)
	c.RecordReorder("failure", 0, 2)

	if v := findMetric(t, reg, "bookmarkman_reorder_total", map[string]string{"result": "success"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("success = %v, want 1", v)
	}
	if v := findMetric(t, reg, "bookmarkman_reorder_rows_total", map[string]string{"matched": "true"}).GetCounter().GetValue(); v != 3 {
		t.Errorf("matched rows = %v, want 3", v)
	}
	if v := findMetric(t, reg, "bookmarkman_reorder_rows_total", map[string]string{"matched": "false"}).GetCounter().GetValue(); v != 3 {
		t.Errorf("unmatched rows = %v, want 3", v)
	}
}

func TestRecordPreview_AndCacheHits(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPreview("success")
	c.RecordPreview("failure")
	c.RecordPreview("failure")
	c.RecordPreviewCacheHit()
	c.RecordSessionsCleaned(4)

	if v := findMetric(t, reg, "bookmarkman_preview_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("failure = %v, want 2", v)
	}
	if v := findMetric(t, reg, "bookmarkman_preview_cache_hits_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("cache hits = %v, want 1", v)
	}
	if v := findMetric(t, reg, "bookmarkman_sessions_cleaned_total", nil).GetCounter().GetValue(); v != 4 {
		t.Errorf("sessions cleaned = %v, want 4", v)
	}
}

func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	var _ MetricsCollector = NewCollector(prometheus.NewRegistry())
}

// TestMultipleCollectors_IndependentRegistries は別レジストリなら重複登録にならないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	NewCollector(prometheus.NewRegistry())
	NewCollector(prometheus.NewRegistry())
}

func TestSetupMetricsRoute_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordReorder("success", 1, 0)

	w := httptest.NewRecorder()
	SetupMetricsRoute(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `bookmarkman_reorder_total{result="success"} 1`) {
		t.Errorf("metrics output should contain reorder counter:\n%s", body)
	}
}
