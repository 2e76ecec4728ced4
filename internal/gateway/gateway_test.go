package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nspilman/sms-venue-pipeline/internal/cas"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestlog"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestmeta"
	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

func newTestGateway(t *testing.T) (*Gateway, *ingestlog.Reader, string) {
	t.Helper()
	store, err := cas.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	logDir := t.TempDir()
	w, err := ingestlog.NewWriter(logDir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	meta := ingestmeta.NewMemStore()
	gw := New(store, w, meta)
	reader := ingestlog.NewReader(logDir, meta)
	return gw, reader, logDir
}

func baseEnvelope() model.Envelope {
	return model.Envelope{
		EnvelopeVersion: 1,
		SourceID:        "kexp",
		IdempotencyKey:  "v1:kexp:scope:abc123",
		PayloadMeta:     model.PayloadMeta{MimeType: "application/json", SizeBytes: 5},
		Request:         model.RequestMeta{URL: "https://example.org/events", Method: "GET"},
	}
}

func TestAcceptFirstCallWritesCASAndLog(t *testing.T) {
	gw, reader, _ := newTestGateway(t)
	ctx := context.Background()

	res, err := gw.Accept(ctx, baseEnvelope(), []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if res.Duplicate || res.DedupeOf != "" {
		t.Fatalf("expected first accept to be non-duplicate, got %+v", res)
	}
	if res.EnvelopeID == "" || res.PayloadRef == "" {
		t.Fatalf("expected populated envelope id and payload ref, got %+v", res)
	}

	line, found, err := reader.FindEnvelopeByID(ctx, res.EnvelopeID)
	if err != nil || !found {
		t.Fatalf("expected envelope to be found in log: found=%v err=%v", found, err)
	}
	var se model.StampedEnvelope
	if err := json.Unmarshal(line, &se); err != nil {
		t.Fatalf("unmarshal stamped envelope: %v", err)
	}
	if se.PayloadRef != res.PayloadRef {
		t.Fatalf("log payload_ref %s != accept result %s", se.PayloadRef, res.PayloadRef)
	}
}

func TestAcceptSecondCallEmitsDedupe(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()
	env := baseEnvelope()

	first, err := gw.Accept(ctx, env, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}

	second, err := gw.Accept(ctx, env, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected second accept to be a duplicate")
	}
	if second.DedupeOf != first.EnvelopeID {
		t.Fatalf("dedupe_of = %s, want %s", second.DedupeOf, first.EnvelopeID)
	}
	if second.PayloadRef != "" {
		t.Fatalf("expected empty payload_ref on dedupe envelope, got %s", second.PayloadRef)
	}
	if second.EnvelopeID == first.EnvelopeID {
		t.Fatalf("expected a fresh envelope id for the dedupe envelope")
	}
}

func TestAcceptIdenticalBytesDoNotDuplicateCASBlob(t *testing.T) {
	store, err := cas.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	logDir := t.TempDir()
	w, err := ingestlog.NewWriter(logDir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	meta := ingestmeta.NewMemStore()
	gw := New(store, w, meta)
	ctx := context.Background()

	payload := []byte(`{"a":1}`)
	env1 := baseEnvelope()
	env1.IdempotencyKey = "v1:kexp:scope:key-one"
	env2 := baseEnvelope()
	env2.IdempotencyKey = "v1:kexp:scope:key-two"

	r1, err := gw.Accept(ctx, env1, payload)
	if err != nil {
		t.Fatalf("accept1: %v", err)
	}
	r2, err := gw.Accept(ctx, env2, payload)
	if err != nil {
		t.Fatalf("accept2: %v", err)
	}
	if r1.PayloadRef != r2.PayloadRef {
		t.Fatalf("identical bytes under different idempotency keys should share one CAS ref: %s vs %s", r1.PayloadRef, r2.PayloadRef)
	}
}
