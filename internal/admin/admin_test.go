package admin

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nspilman/sms-venue-pipeline/internal/cas"
	"github.com/nspilman/sms-venue-pipeline/internal/catalog"
	"github.com/nspilman/sms-venue-pipeline/internal/conflate"
	"github.com/nspilman/sms-venue-pipeline/internal/enrich"
	"github.com/nspilman/sms-venue-pipeline/internal/gateway"
	"github.com/nspilman/sms-venue-pipeline/internal/httpfetch"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestlog"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestmeta"
	"github.com/nspilman/sms-venue-pipeline/internal/normalizer"
	"github.com/nspilman/sms-venue-pipeline/internal/orchestrator"
	"github.com/nspilman/sms-venue-pipeline/internal/parser"
	"github.com/nspilman/sms-venue-pipeline/internal/qualitygate"
	"github.com/nspilman/sms-venue-pipeline/internal/ratelimit"
	"github.com/nspilman/sms-venue-pipeline/internal/sourceregistry"
	"github.com/nspilman/sms-venue-pipeline/internal/storage"
)

func newTestDeps(t *testing.T, endpointURL string) Deps {
	t.Helper()
	reg := sourceregistry.NewRegistry()
	if endpointURL != "" {
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
	}

	store, err := cas.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	dataRoot := t.TempDir()
	w, err := ingestlog.NewWriter(dataRoot)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	meta := ingestmeta.NewMemStore()
	gw := gateway.New(store, w, meta)
	reader := ingestlog.NewReader(dataRoot, meta)

	parsers := parser.NewFactory()
	norms := normalizer.NewRegistry()
	if endpointURL != "" {
		if err := norms.Register("kexp", func() normalizer.Normalizer {
			return normalizer.NewGenericCalendarNormalizer("kexp", "generic_calendar_v1")
		}); err != nil {
			t.Fatalf("Register normalizer: %v", err)
		}
	}
	cat := catalog.New(catalog.DefaultRegistry(), storage.NewMemStore(nil), nil, nil)

	return Deps{
		Ingest: orchestrator.IngestDeps{
			Sources: reg,
			Rates:   ratelimit.NewManager(),
			Meta:    meta,
			Gateway: gw,
			HTTP:    httpfetch.New(httpfetch.Options{AllowPrivateNetworks: true}),
		},
		NewBatchDeps: func(output *orchestrator.SideOutputWriter) orchestrator.BatchDeps {
			return orchestrator.BatchDeps{
				Sources:     reg,
				Parsers:     parsers,
				Normalizers: norms,
				Quality:     qualitygate.New(qualitygate.Options{}),
				Enricher:    enrich.New(enrich.Options{}),
				Conflator:   conflate.New(conflate.Options{}),
				Catalog:     cat,
				CAS:         store,
				Log:         reader,
				Output:      output,
			}
		},
		Reader:   reader,
		DataRoot: dataRoot,
	}
}

func TestHealth_ReturnsOK(t *testing.T) {
	d := newTestDeps(t, "")
	rec := httptest.NewRecorder()
	d.Health(rec, httptest.NewRequest(http.MethodGet, "/admin/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"overall":"ok"`) {
		t.Fatalf("body = %s", body)
	}
	if !strings.Contains(body, `"ingest_log_reader"`) {
		t.Fatalf("expected component statuses, body = %s", body)
	}
}

func TestGatewayOnce_RequiresSourceID(t *testing.T) {
	d := newTestDeps(t, "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/gateway-once", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("content-type", "application/json")

	d.GatewayOnce(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGatewayOnce_AcceptsFromLiveSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"title":"Show"}]`))
	}))
	defer srv.Close()

	d := newTestDeps(t, srv.URL)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/gateway-once", bytes.NewReader([]byte(`{"source_id":"kexp"}`)))
	req.Header.Set("content-type", "application/json")

	d.GatewayOnce(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"envelope_id"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestParse_RejectsQualityGateWithoutNormalize(t *testing.T) {
	d := newTestDeps(t, "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/parse", bytes.NewReader([]byte(`{"quality_gate":true}`)))
	req.Header.Set("content-type", "application/json")

	d.Parse(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestParse_EmptyLogReturnsZeroCounts(t *testing.T) {
	d := newTestDeps(t, "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/parse", bytes.NewReader([]byte(`{"consumer":"test"}`)))
	req.Header.Set("content-type", "application/json")

	d.Parse(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"seen":0`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGatewayOnce_DisabledSourceReportsIngestErrorCode(t *testing.T) {
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

	d := Deps{Ingest: orchestrator.IngestDeps{Sources: reg}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/gateway-once", bytes.NewReader([]byte(`{"source_id":"off"}`)))
	req.Header.Set("content-type", "application/json")

	d.GatewayOnce(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("expected a non-200 status for a disabled source, got %d: %s", rec.Code, rec.Body.String())
	}
}
