package telemetry

import "testing"

func TestKindFromName(t *testing.T) {
	cases := []struct {
		name string
		want MetricKind
	}{
		{"sms_gateway_envelopes_accepted_total", KindCounter},
		{"sms_sources_request_duration_seconds", KindHistogram},
		{"sms_ingest_log_current_file_bytes", KindGauge},
		{"sms_pool_active_workers", KindGauge},
		{"sms_conflate_match_confidence", KindHistogram},
		{"sms_quality_record_score", KindHistogram},
		{"sms_parse_payload_size", KindHistogram},
		{"sms_something_else", KindUnknown},
		{"", KindUnknown},
	}
	for _, c := range cases {
		if got := KindFromName(c.name); got != c.want {
			t.Errorf("KindFromName(%q) = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestNormalizeLabels_BoundsAndCharset(t *testing.T) {
	out, err := NormalizeLabels(Labels{" Source_ID ": " wix-1 ", "": "dropped"})
	if err != nil {
		t.Fatalf("NormalizeLabels: %v", err)
	}
	if out["source_id"] != "wix-1" {
		t.Fatalf("expected normalized key/value, got %v", out)
	}
	if _, err := NormalizeLabels(Labels{"bad key": "x"}); err == nil {
		t.Fatal("expected charset rejection for key with space")
	}
}

func TestValidateBuckets(t *testing.T) {
	if err := ValidateBuckets(DefaultHistogramBuckets()); err != nil {
		t.Fatalf("default buckets: %v", err)
	}
	if err := ValidateBuckets(ScoreHistogramBuckets()); err != nil {
		t.Fatalf("score buckets: %v", err)
	}
	if err := ValidateBuckets([]float64{0.1, 0.1}); err == nil {
		t.Fatal("expected non-increasing rejection")
	}
	if err := ValidateBuckets(nil); err == nil {
		t.Fatal("expected empty rejection")
	}
}

func TestValidateMetricName(t *testing.T) {
	if err := ValidateMetricName("sms_gateway_envelopes_accepted_total"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	for _, bad := range []string{"", "1starts_with_digit", "Has_Upper", "has space"} {
		if err := ValidateMetricName(bad); err == nil {
			t.Errorf("ValidateMetricName(%q) accepted", bad)
		}
	}
}

func TestEmitHelpers_NilMeterSafe(t *testing.T) {
	if err := IncCounter(nil, nil, "sms_x_total", 1, nil); err != nil {
		t.Fatalf("IncCounter nil meter: %v", err)
	}
	if err := ObserveHistogram(nil, nil, "sms_x_seconds", 0.1, DefaultHistogramBuckets(), nil); err != nil {
		t.Fatalf("ObserveHistogram nil meter: %v", err)
	}
}
