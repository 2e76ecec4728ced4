package ingestmeta

import (
	"context"
	"testing"
	"time"
)

func TestMemStoreRecordAcceptanceDedupes(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := Acceptance{SourceID: "kexp", IdempotencyKey: "v1:kexp:abc", EnvelopeID: "env-1", PayloadRef: "cas:sha256:aa", AcceptedAt: at}
	got, existed, err := m.RecordAcceptance(ctx, a)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if existed {
		t.Fatalf("expected first RecordAcceptance to be new")
	}
	if got.EnvelopeID != "env-1" {
		t.Fatalf("got %+v", got)
	}

	dup := Acceptance{SourceID: "kexp", IdempotencyKey: "v1:kexp:abc", EnvelopeID: "env-2", PayloadRef: "cas:sha256:bb", AcceptedAt: at.Add(time.Hour)}
	got2, existed2, err := m.RecordAcceptance(ctx, dup)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if !existed2 {
		t.Fatalf("expected second RecordAcceptance for the same key to report existed=true")
	}
	if got2.EnvelopeID != "env-1" {
		t.Fatalf("expected dedupe to return the original envelope id, got %s", got2.EnvelopeID)
	}
}

func TestMemStoreLastFetchRoundTrip(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	if _, ok, err := m.LastFetch(ctx, "kexp"); err != nil || ok {
		t.Fatalf("expected no last fetch recorded yet: ok=%v err=%v", ok, err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := m.RecordFetch(ctx, "kexp", at); err != nil {
		t.Fatalf("RecordFetch: %v", err)
	}
	got, ok, err := m.LastFetch(ctx, "kexp")
	if err != nil || !ok {
		t.Fatalf("LastFetch: ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Fatalf("got %v, want %v", got, at)
	}
}

func TestMemStoreOffsetRejectsRegression(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	if err := m.CommitOffset(ctx, "parse-consumer", 10); err != nil {
		t.Fatalf("commit 10: %v", err)
	}
	if err := m.CommitOffset(ctx, "parse-consumer", 20); err != nil {
		t.Fatalf("commit 20: %v", err)
	}
	if err := m.CommitOffset(ctx, "parse-consumer", 5); err == nil {
		t.Fatalf("expected offset regression to be rejected")
	}

	off, ok, err := m.Offset(ctx, "parse-consumer")
	if err != nil || !ok || off != 20 {
		t.Fatalf("got off=%d ok=%v err=%v, want 20/true/nil", off, ok, err)
	}
}
