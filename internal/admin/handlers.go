package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nspilman/sms-venue-pipeline/internal/orchestrator"
	pkgerrors "github.com/nspilman/sms-venue-pipeline/pkg/errors"
	"github.com/nspilman/sms-venue-pipeline/pkg/telemetry"
)

const maxBodyBytes = 1 << 20 // 1 MiB, mirrors the gateway handler's request body bound.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestID(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

// gatewayOnceReq is the body for POST /admin/gateway-once.
type gatewayOnceReq struct {
	SourceID      string `json:"source_id"`
	DataRoot      string `json:"data_root"`
	BypassCadence bool   `json:"bypass_cadence"`
}

type gatewayOnceResp struct {
	SourceID   string `json:"source_id"`
	EnvelopeID string `json:"envelope_id"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	DedupeOf   string `json:"dedupe_of,omitempty"`
	IngestLog  string `json:"ingest_log"`
	CASRoot    string `json:"cas_root"`
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// GatewayOnce handles POST /admin/gateway-once: runs the Ingest Use Case for
// one source id and reports what the Gateway did.
func (d Deps) GatewayOnce(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid := requestID(r)
	start := d.clock()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	var req gatewayOnceReq
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			pkgerrors.WriteHTTP(w, http.StatusBadRequest, pkgerrors.NewEnvelope(pkgerrors.SourceInvalidSpec, "invalid JSON body", rid, "", nil))
			return
		}
	}
	req.SourceID = strings.TrimSpace(req.SourceID)
	if req.SourceID == "" {
		pkgerrors.WriteHTTP(w, http.StatusBadRequest, pkgerrors.NewEnvelope(pkgerrors.SourceInvalidSpec, "source_id is required", rid, "", nil))
		return
	}

	bypass := d.BypassCadence || req.BypassCadence
	ctx = telemetry.WithSourceID(ctx, req.SourceID)

	result, err := orchestrator.IngestOnce(ctx, d.Ingest, req.SourceID, bypass)
	d.logger().Info(ctx, "admin_gateway_once", map[string]any{"source_id": req.SourceID, "bypass_cadence": bypass})
	defer recordLatency(ctx, d.meter(), "sms_admin_gateway_once_duration_seconds", start, telemetry.Labels{"source_id": req.SourceID})

	if err != nil {
		var ierr *orchestrator.IngestError
		code := pkgerrors.Internal
		if ok := asIngestError(err, &ierr); ok {
			code = ierr.Code
		}
		_ = telemetry.IncCounter(d.meter(), ctx, "sms_admin_gateway_once_errors_total", 1, telemetry.Labels{"source_id": req.SourceID, "code": string(code)})
		pkgerrors.WriteHTTP(w, pkgerrors.HTTPStatusFor(code), pkgerrors.NewEnvelope(code, err.Error(), rid, "", nil))
		return
	}

	if result.Skipped {
		writeJSON(w, http.StatusOK, gatewayOnceResp{SourceID: req.SourceID, Skipped: true, SkipReason: result.SkipReason})
		return
	}

	_ = telemetry.IncCounter(d.meter(), ctx, "sms_gateway_envelopes_accepted_total", 1, telemetry.Labels{"source_id": req.SourceID})
	writeJSON(w, http.StatusOK, gatewayOnceResp{
		SourceID:   req.SourceID,
		EnvelopeID: result.Accept.EnvelopeID,
		Duplicate:  result.Accept.Duplicate,
		DedupeOf:   result.Accept.DedupeOf,
		IngestLog:  d.DataRoot + "/ingest/ingest.ndjson",
		CASRoot:    d.DataRoot + "/cas",
	})
}

// parseReq is the body for POST /admin/parse.
type parseReq struct {
	Consumer     string `json:"consumer"`
	Max          int    `json:"max"`
	DataRoot     string `json:"data_root"`
	Output       string `json:"output"`
	SourceID     string `json:"source_id"`
	Normalize    bool   `json:"normalize"`
	QualityGate  bool   `json:"quality_gate"`
}

type parseResp struct {
	Seen                 int      `json:"seen"`
	FilteredOut          int      `json:"filtered_out"`
	EmptyRecordEnvelopes int      `json:"empty_record_envelopes"`
	WrittenRecords       int      `json:"written_records"`
	RecordErrors         int      `json:"record_errors,omitempty"`
	Errors               []string `json:"errors,omitempty"`
	OutputFile           string   `json:"output_file"`
}

// Parse handles POST /admin/parse: drives one RunBatch invocation over the
// ingest log. quality_gate=true without normalize=true is rejected per the
// contract every downstream stage depends on normalization having already
// run.
func (d Deps) Parse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid := requestID(r)
	start := d.clock()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	var req parseReq
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			pkgerrors.WriteHTTP(w, http.StatusBadRequest, pkgerrors.NewEnvelope(pkgerrors.SourceInvalidSpec, "invalid JSON body", rid, "", nil))
			return
		}
	}
	if req.QualityGate && !req.Normalize {
		pkgerrors.WriteHTTP(w, http.StatusBadRequest, pkgerrors.NewEnvelope(pkgerrors.SourceInvalidSpec, "quality_gate requires normalize", rid, "", nil))
		return
	}
	consumer := strings.TrimSpace(req.Consumer)
	if consumer == "" {
		consumer = "admin"
	}
	maxLines := req.Max
	if maxLines <= 0 {
		maxLines = 100
	}
	outputRoot := strings.TrimSpace(req.Output)
	if outputRoot == "" {
		outputRoot = d.DataRoot + "/output"
	}

	ctx = telemetry.WithConsumer(ctx, consumer)
	deps := d.NewBatchDeps(orchestrator.NewSideOutputWriter(outputRoot, d.Clock))
	result, err := orchestrator.RunBatch(ctx, deps, consumer, maxLines)
	defer recordLatency(ctx, d.meter(), "sms_admin_parse_duration_seconds", start, telemetry.Labels{"consumer": consumer})

	if err != nil {
		_ = telemetry.IncCounter(d.meter(), ctx, "sms_admin_parse_errors_total", 1, telemetry.Labels{"consumer": consumer})
		pkgerrors.WriteHTTP(w, http.StatusInternalServerError, pkgerrors.NewEnvelope(pkgerrors.Internal, err.Error(), rid, "", nil))
		return
	}

	writeJSON(w, http.StatusOK, parseResp{
		Seen:                 result.Seen,
		FilteredOut:          result.FilteredOut,
		EmptyRecordEnvelopes: result.EmptyRecordEnvelopes,
		WrittenRecords:       result.WrittenRecords,
		RecordErrors:         result.RecordErrors,
		Errors:               result.Errors,
		OutputFile:           outputRoot,
	})
}

// Health handles GET /admin/health and /admin/ready, reporting a normalized
// component snapshot with a stable hash so operators can diff health state
// across polls.
func (d Deps) Health(w http.ResponseWriter, r *http.Request) {
	now := d.clock().UTC()

	status := func(ok bool) telemetry.Status {
		if ok {
			return telemetry.StatusOK
		}
		return telemetry.StatusDegraded
	}
	metricsStatus := telemetry.StatusUnknown
	if d.MetricsHandler != nil {
		metricsStatus = telemetry.StatusOK
	}
	comps := []telemetry.ComponentStatus{
		{Name: "ingest_log_reader", Status: status(d.Reader != nil), CheckedAt: now},
		{Name: "metrics", Status: metricsStatus, CheckedAt: now},
		{Name: "batch_pipeline", Status: status(d.NewBatchDeps != nil), CheckedAt: now},
	}

	snap, err := telemetry.NewHealthSnapshot("smsctl", "", "seattle", comps, now)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	code := http.StatusOK
	if snap.Overall == telemetry.StatusFatal {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, snap)
}

func asIngestError(err error, target **orchestrator.IngestError) bool {
	for err != nil {
		if ie, ok := err.(*orchestrator.IngestError); ok {
			*target = ie
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
