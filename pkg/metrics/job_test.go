package metrics

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewJobMetrics(reg)
	job := "unmapped-sweep"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "backoffice_job_runs_total", map[string]string{"job": job, "result": "success"}); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "backoffice_job_runs_total", map[string]string{"job": job, "result": "failure"}); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "backoffice_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestResolutionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewResolutionMetrics(reg)
	m.ObserveOutcome("mapped", "alias")
	m.ObserveOutcome("mapped", "alias")
	m.ObserveOutcome("suggested", "")
	m.IncAliasConflict()
	m.ObserveAliasLookup(true)
	m.ObserveBatch(true)
	m.ObserveTopScore(0.9)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "backoffice_line_resolutions_total", map[string]string{"status": "mapped", "provenance": "alias"}); err != nil || got != 2 {
		t.Fatalf("expected 2 alias mappings, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "backoffice_line_resolutions_total", map[string]string{"status": "suggested", "provenance": "unknown"}); err != nil || got != 1 {
		t.Fatalf("expected empty provenance to be labeled unknown, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "backoffice_alias_conflicts_total", nil); err != nil || got != 1 {
		t.Fatalf("expected 1 conflict, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "backoffice_bulk_batches_total", map[string]string{"result": "failure"}); err != nil || got != 1 {
		t.Fatalf("expected 1 failed batch, got %f err=%v", got, err)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	var m *ResolutionMetrics
	m.ObserveOutcome("mapped", "auto")
	NewResolutionMetrics(nil).IncAliasConflict()
	NewJobMetrics(nil).IncSuccess("x")
	NewHTTPMetrics(nil).Observe(http.MethodGet, "/x", 200, time.Millisecond)
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe(http.MethodPost, "/api/v1/invoice-lines/{lineId}/confirm", http.StatusOK, 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	labels := map[string]string{"method": "POST", "route": "/api/v1/invoice-lines/{lineId}/confirm", "status": "200"}
	if got, err := fetchCounterValue(mfs, "backoffice_http_requests_total", labels); err != nil || got != 1 {
		t.Fatalf("expected 1 request, got %f err=%v", got, err)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), map[string]string{label: value}) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	for name, value := range want {
		found := false
		for _, pair := range pairs {
			if pair.GetName() == name && pair.GetValue() == value {
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
