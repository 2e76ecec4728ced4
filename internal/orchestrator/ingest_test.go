package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/cas"
	"github.com/nspilman/sms-venue-pipeline/internal/gateway"
	"github.com/nspilman/sms-venue-pipeline/internal/httpfetch"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestlog"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestmeta"
	"github.com/nspilman/sms-venue-pipeline/internal/ratelimit"
	"github.com/nspilman/sms-venue-pipeline/internal/sourceregistry"
)

func newRateManager() *ratelimit.Manager {
	return ratelimit.NewManager()
}

func newTestIngestDeps(t *testing.T, endpointURL string) (IngestDeps, *ingestmeta.MemStore) {
	t.Helper()
	reg := sourceregistry.NewRegistry()
	if err := reg.Register(sourceregistry.SourceSpec{
		SourceID: "kexp",
		Enabled:  true,
		Endpoints: []sourceregistry.Endpoint{{URL: endpointURL, Method: "GET"}},
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
	w, err := ingestlog.NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	meta := ingestmeta.NewMemStore()
	gw := gateway.New(store, w, meta)

	return IngestDeps{
		Sources: reg,
		Rates:   newRateManager(),
		Meta:    meta,
		Gateway: gw,
		HTTP:    httpfetch.New(httpfetch.Options{AllowPrivateNetworks: true}),
	}, meta
}

func TestIngestOnce_AcceptsAndRecordsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"title":"Show"}]`))
	}))
	defer srv.Close()

	deps, meta := newTestIngestDeps(t, srv.URL)
	ctx := context.Background()

	res, err := IngestOnce(ctx, deps, "kexp", false)
	if err != nil {
		t.Fatalf("IngestOnce: %v", err)
	}
	if res.Skipped || res.Accept.EnvelopeID == "" {
		t.Fatalf("res = %+v", res)
	}

	if _, ok, err := meta.LastFetch(ctx, "kexp"); err != nil || !ok {
		t.Fatalf("expected last fetch recorded: ok=%v err=%v", ok, err)
	}
}

func TestIngestOnce_CadenceSkipsWithinMinInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	deps, _ := newTestIngestDeps(t, srv.URL)
	ctx := context.Background()

	if _, err := IngestOnce(ctx, deps, "kexp", false); err != nil {
		t.Fatalf("first IngestOnce: %v", err)
	}
	res, err := IngestOnce(ctx, deps, "kexp", false)
	if err != nil {
		t.Fatalf("second IngestOnce: %v", err)
	}
	if !res.Skipped || res.SkipReason != "cadence_skip" {
		t.Fatalf("res = %+v, want cadence_skip", res)
	}
}

func TestIngestOnce_BypassCadenceIgnoresMinInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	deps, _ := newTestIngestDeps(t, srv.URL)
	ctx := context.Background()

	if _, err := IngestOnce(ctx, deps, "kexp", false); err != nil {
		t.Fatalf("first IngestOnce: %v", err)
	}
	res, err := IngestOnce(ctx, deps, "kexp", true)
	if err != nil {
		t.Fatalf("second IngestOnce (bypass): %v", err)
	}
	if res.Skipped {
		t.Fatalf("expected bypass to skip cadence check, got %+v", res)
	}
}

func TestIngestOnce_DisabledSourceFailsFast(t *testing.T) {
	reg := sourceregistry.NewRegistry()
	if err := reg.Register(sourceregistry.SourceSpec{
		SourceID:     "off",
		Enabled:      false,
		Endpoints:    []sourceregistry.Endpoint{{URL: "https://example.org", Method: "GET"}},
		Content:      sourceregistry.Content{AllowedMimeTypes: []string{"application/json"}, MaxPayloadSizeBytes: 10},
		ParsePlanRef: "parse_plan:json_calendar_v1",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	deps := IngestDeps{Sources: reg}
	if _, err := IngestOnce(context.Background(), deps, "off", false); err == nil {
		t.Fatalf("expected disabled source to fail fast")
	}
}

func TestIngestOnce_RejectsDisallowedMime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	deps, _ := newTestIngestDeps(t, srv.URL)
	if _, err := IngestOnce(context.Background(), deps, "kexp", false); err == nil {
		t.Fatalf("expected mime rejection")
	}
}

func TestIngestOnce_RejectsOversizedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(make([]byte, 2<<20))
	}))
	defer srv.Close()

	deps, _ := newTestIngestDeps(t, srv.URL)
	if _, err := IngestOnce(context.Background(), deps, "kexp", false); err == nil {
		t.Fatalf("expected oversize rejection")
	}
}

var _ = time.Second
