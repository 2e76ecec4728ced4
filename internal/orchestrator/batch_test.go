package orchestrator

import (
	"context"
	"testing"

	"github.com/nspilman/sms-venue-pipeline/internal/cas"
	"github.com/nspilman/sms-venue-pipeline/internal/catalog"
	"github.com/nspilman/sms-venue-pipeline/internal/conflate"
	"github.com/nspilman/sms-venue-pipeline/internal/enrich"
	"github.com/nspilman/sms-venue-pipeline/internal/gateway"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestlog"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestmeta"
	"github.com/nspilman/sms-venue-pipeline/internal/model"
	"github.com/nspilman/sms-venue-pipeline/internal/normalizer"
	"github.com/nspilman/sms-venue-pipeline/internal/parser"
	"github.com/nspilman/sms-venue-pipeline/internal/qualitygate"
	"github.com/nspilman/sms-venue-pipeline/internal/sourceregistry"
	"github.com/nspilman/sms-venue-pipeline/internal/storage"
)

// batchFixture appends the given (sourceID, idempotencyKey, payload)
// envelopes through a real Gateway and returns BatchDeps reading them back,
// plus the warn messages the batch emits.
type batchFixture struct {
	deps  BatchDeps
	warns []string
}

func newBatchFixture(t *testing.T, envelopes []struct {
	sourceID string
	idk      string
	payload  string
}) *batchFixture {
	t.Helper()

	reg := sourceregistry.NewRegistry()
	if err := reg.Register(sourceregistry.SourceSpec{
		SourceID: "kexp",
		Enabled:  true,
		Endpoints: []sourceregistry.Endpoint{{URL: "https://example.com/events", Method: "GET"}},
		Content: sourceregistry.Content{
			AllowedMimeTypes:    []string{"application/json"},
			MaxPayloadSizeBytes: 1 << 20,
		},
		ParsePlanRef: "parse_plan:json_calendar_v1",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

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
	gw := gateway.New(store, w, meta)

	for _, e := range envelopes {
		env := model.Envelope{SourceID: e.sourceID, IdempotencyKey: e.idk}
		if _, err := gw.Accept(context.Background(), env, []byte(e.payload)); err != nil {
			t.Fatalf("Accept(%s): %v", e.idk, err)
		}
	}

	norms := normalizer.NewRegistry()
	if err := norms.Register("kexp", func() normalizer.Normalizer {
		return normalizer.NewGenericCalendarNormalizer("kexp", "generic_calendar_v1")
	}); err != nil {
		t.Fatalf("Register normalizer: %v", err)
	}

	f := &batchFixture{}
	f.deps = BatchDeps{
		Sources:     reg,
		Parsers:     parser.NewFactory(),
		Normalizers: norms,
		Quality:     qualitygate.New(qualitygate.Options{}),
		Enricher:    enrich.New(enrich.Options{}),
		Conflator:   conflate.New(conflate.Options{}),
		Catalog:     catalog.New(catalog.DefaultRegistry(), storage.NewMemStore(nil), nil, nil),
		CAS:         store,
		Log:         ingestlog.NewReader(logDir, meta),
		Output:      NewSideOutputWriter(t.TempDir(), nil),
		Warn: func(msg string, fields map[string]any) {
			f.warns = append(f.warns, msg)
		},
	}
	return f
}

func TestRunBatch_HappyPathCatalogsRecords(t *testing.T) {
	f := newBatchFixture(t, []struct {
		sourceID string
		idk      string
		payload  string
	}{
		{"kexp", "idk-1", `{"events":[{"title":"Open Mic","event_day":"2025-08-15","venue_name":"Blue Moon Tavern"}]}`},
	})

	result, err := RunBatch(context.Background(), f.deps, "test-consumer", 10)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if result.Seen != 1 {
		t.Fatalf("seen = %d, want 1", result.Seen)
	}
	if result.RecordErrors != 0 {
		t.Fatalf("record errors = %d (%v), want 0", result.RecordErrors, result.Errors)
	}
	if result.WrittenRecords == 0 {
		t.Fatal("expected cataloged process records")
	}

	// Everything was acked; a second run over the same consumer sees nothing.
	again, err := RunBatch(context.Background(), f.deps, "test-consumer", 10)
	if err != nil {
		t.Fatalf("RunBatch again: %v", err)
	}
	if again.Seen != 0 {
		t.Fatalf("re-run seen = %d, want 0", again.Seen)
	}
}

func TestRunBatch_PerRecordErrorsDoNotAbort(t *testing.T) {
	f := newBatchFixture(t, []struct {
		sourceID string
		idk      string
		payload  string
	}{
		{"kexp", "idk-bad", `this is not json`},
		{"ghost", "idk-ghost", `{"events":[]}`},
		{"kexp", "idk-good", `{"events":[{"title":"Open Mic","event_day":"2025-08-15","venue_name":"Blue Moon Tavern"}]}`},
	})

	result, err := RunBatch(context.Background(), f.deps, "test-consumer", 10)
	if err != nil {
		t.Fatalf("RunBatch should not abort on per-record errors: %v", err)
	}
	if result.Seen != 3 {
		t.Fatalf("seen = %d, want 3", result.Seen)
	}
	if result.RecordErrors != 2 {
		t.Fatalf("record errors = %d (%v), want 2", result.RecordErrors, result.Errors)
	}
	if result.EmptyRecordEnvelopes != 1 {
		t.Fatalf("empty record envelopes = %d, want 1", result.EmptyRecordEnvelopes)
	}
	if result.WrittenRecords == 0 {
		t.Fatal("the good envelope behind the failures should still catalog")
	}
	if len(result.Errors) != 2 {
		t.Fatalf("errors = %v, want 2 bounded messages", result.Errors)
	}
	if len(f.warns) != 2 {
		t.Fatalf("warn callback fired %d times (%v), want 2", len(f.warns), f.warns)
	}

	// The failing envelopes were acked too; nothing is redelivered.
	again, err := RunBatch(context.Background(), f.deps, "test-consumer", 10)
	if err != nil {
		t.Fatalf("RunBatch again: %v", err)
	}
	if again.Seen != 0 {
		t.Fatalf("re-run seen = %d, want 0", again.Seen)
	}
}
