package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nspilman/sms-venue-pipeline/pkg/telemetry"
)

func TestPrometheusMeter_IncCounterExposesViaHandler(t *testing.T) {
	m := NewPrometheusMeter()
	ctx := context.Background()

	if err := m.IncCounter(ctx, "sms_test_counter_total", 3, telemetry.Labels{"source_id": "wix-1"}); err != nil {
		t.Fatalf("IncCounter: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "sms_test_counter_total") {
		t.Fatalf("expected exposition to contain counter name, got:\n%s", body)
	}
	if !strings.Contains(body, `source_id="wix-1"`) {
		t.Fatalf("expected exposition to contain label, got:\n%s", body)
	}
}

func TestPrometheusMeter_SetGaugeOverwrites(t *testing.T) {
	m := NewPrometheusMeter()
	ctx := context.Background()

	if err := m.SetGauge(ctx, "sms_test_gauge", 1, nil); err != nil {
		t.Fatalf("SetGauge: %v", err)
	}
	if err := m.SetGauge(ctx, "sms_test_gauge", 5, nil); err != nil {
		t.Fatalf("SetGauge: %v", err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/admin/metrics", nil))
	if !strings.Contains(rec.Body.String(), "sms_test_gauge 5") {
		t.Fatalf("expected gauge to reflect latest Set, got:\n%s", rec.Body.String())
	}
}

func TestPrometheusMeter_ObserveHistogramRegistersBuckets(t *testing.T) {
	m := NewPrometheusMeter()
	ctx := context.Background()
	buckets := telemetry.DefaultHistogramBuckets()

	if err := m.ObserveHistogram(ctx, "sms_test_duration_seconds", 0.25, buckets, nil); err != nil {
		t.Fatalf("ObserveHistogram: %v", err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/admin/metrics", nil))
	if !strings.Contains(rec.Body.String(), "sms_test_duration_seconds_bucket") {
		t.Fatalf("expected histogram buckets in exposition, got:\n%s", rec.Body.String())
	}
}

func TestSanitizeName_ReplacesColons(t *testing.T) {
	if got := sanitizeName("sms:gateway:accepted"); got != "sms_gateway_accepted" {
		t.Fatalf("sanitizeName() = %q, want sms_gateway_accepted", got)
	}
}

func TestPrometheusMeter_ImplementsMeter(t *testing.T) {
	var _ telemetry.Meter = NewPrometheusMeter()
}

func TestCheckKind_RejectsConventionMismatch(t *testing.T) {
	m := NewPrometheusMeter()
	ctx := context.Background()

	if err := m.IncCounter(ctx, "sms_fetch_duration_seconds", 1, nil); err == nil {
		t.Fatal("expected counter call on histogram-named metric to fail")
	}
	if err := m.SetGauge(ctx, "sms_envelopes_accepted_total", 1, nil); err == nil {
		t.Fatal("expected gauge call on counter-named metric to fail")
	}
	if err := m.ObserveHistogram(ctx, "sms_ingest_log_current_file_bytes", 10, telemetry.DefaultHistogramBuckets(), nil); err == nil {
		t.Fatal("expected histogram call on gauge-named metric to fail")
	}
	// Names outside the convention are left alone.
	if err := m.SetGauge(ctx, "sms_test_gauge", 1, nil); err != nil {
		t.Fatalf("unconventional name should pass through: %v", err)
	}
}
