package idempotency

import (
	"strings"
	"testing"
)

func TestBuildKey_Deterministic(t *testing.T) {
	a, err := BuildKey("blue_moon", "ingest", "https://example.com/events", "etag-1", "", "deadbeef")
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}
	b, err := BuildKey("blue_moon", "ingest", "https://example.com/events", "etag-1", "", "deadbeef")
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}
	if a != b {
		t.Fatalf("same inputs produced different keys: %q vs %q", a, b)
	}
	c, _ := BuildKey("blue_moon", "ingest", "https://example.com/events", "etag-2", "", "deadbeef")
	if a == c {
		t.Fatal("etag change did not change key")
	}
}

func TestBuildKey_SourceNormalized(t *testing.T) {
	key, err := BuildKey("  Blue Moon!  ", "ingest", "x")
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}
	parts, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if parts.Source != "bluemoon" {
		t.Fatalf("source = %q, want bluemoon", parts.Source)
	}
	if parts.Scope != "ingest" || parts.Version != KeyVersion {
		t.Fatalf("unexpected parts: %+v", parts)
	}
}

func TestBuildKey_EmptySourceDefaults(t *testing.T) {
	key, err := BuildKey("", "ingest", "x")
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}
	parts, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if parts.Source != "unknown" {
		t.Fatalf("source = %q, want unknown", parts.Source)
	}
}

func TestParseKey_Rejects(t *testing.T) {
	good, _ := BuildKey("s", "ingest", "x")
	bad := []string{
		"",
		"v0" + good[2:],
		strings.Replace(good, ":ingest:", ":BAD SCOPE:", 1),
		good[:len(good)-1],
	}
	for _, k := range bad {
		if _, err := ParseKey(k); err == nil {
			t.Errorf("ParseKey(%q) accepted", k)
		}
	}
	if err := ValidateKey(good); err != nil {
		t.Fatalf("ValidateKey(good): %v", err)
	}
}

func TestBuildKeyFromMap_KeyOrderIrrelevant(t *testing.T) {
	a, err := BuildKeyFromMap("s", "ingest", map[string]any{"url": "u", "etag": "e"})
	if err != nil {
		t.Fatalf("BuildKeyFromMap: %v", err)
	}
	b, _ := BuildKeyFromMap("s", "ingest", map[string]any{"etag": "e", "url": "u"})
	if a != b {
		t.Fatalf("map order changed key: %q vs %q", a, b)
	}
}
