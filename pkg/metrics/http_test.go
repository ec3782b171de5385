package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsLabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("POST", "/api/v1/requests/{requestId}/approve", 422, 20*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)
	m.IncPanic()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchValue(mfs, "brindes_http_responses_total", map[string]string{
		"route":  "/api/v1/requests/{requestId}/approve",
		"status": "422",
	})
	if err != nil || got != 1 {
		t.Fatalf("expected one approve response, got %f (%v)", got, err)
	}
	if got, err := fetchValue(mfs, "brindes_http_responses_total", map[string]string{"route": "unmatched"}); err != nil || got != 1 {
		t.Fatalf("expected unmatched route bucket, got %f (%v)", got, err)
	}
	if got, err := fetchValue(mfs, "brindes_http_panics_total", nil); err != nil || got != 1 {
		t.Fatalf("expected one panic, got %f (%v)", got, err)
	}
}

func TestInventoryMetricsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetrics(reg)
	m.SetBelowMinimum(4)
	m.SetBelowMinimum(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchValue(mfs, "brindes_inventory_items_below_minimum", nil); err != nil || got != 2 {
		t.Fatalf("expected latest value 2, got %f (%v)", got, err)
	}
}
