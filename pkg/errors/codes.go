package errors

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Code is a stable error code shared across the pipeline's services.
// Once published, codes should be treated as API-stable.
type Code string

// CodeMeta provides metadata useful for HTTP mapping, retry decisions, and documentation.
type CodeMeta struct {
	HTTPStatus  int    `json:"http_status"`
	Retryable   bool   `json:"retryable"`
	Kind        string `json:"kind"` // client|server|security|dependency
	Description string `json:"description"`
}

// ---- CONFIG / REGISTRY ----
const (
	SourceNotFound     Code = "source.not_found"
	SourceDisabled     Code = "source.disabled"
	SourceInvalidSpec  Code = "source.invalid_spec"
	ParsePlanUnknown   Code = "source.parse_plan_unknown"
	NormalizerNotFound Code = "source.normalizer_not_found"
)

// ---- POLICY ----
const (
	PolicyPayloadTooLarge Code = "policy.payload_too_large"
	PolicyMimeNotAllowed  Code = "policy.mime_not_allowed"
	PolicyCadenceSkip     Code = "policy.cadence_skip"
)

// ---- TRANSPORT ----
const (
	TransportHTTPError Code = "transport.http_error"
	TransportTimeout   Code = "transport.timeout"
	TransportSSRF      Code = "transport.ssrf_blocked"
)

// ---- PERSISTENCE ----
const (
	PersistenceCASWrite     Code = "persistence.cas_write"
	PersistenceLogAppend    Code = "persistence.ingest_log_append"
	PersistenceMetaStore    Code = "persistence.meta_store"
	PersistenceStoragePort  Code = "persistence.storage_port"
	PersistenceNotFound     Code = "persistence.not_found"
	PersistenceWriteConflict Code = "persistence.write_conflict"
)

// ---- PARSING ----
const (
	ParsingFailed        Code = "parsing.failed"
	ParsingUnknownPlan   Code = "parsing.unknown_plan"
)

// ---- NORMALIZATION ----
const (
	NormalizationMissing   Code = "normalization.missing_for_source"
	NormalizationException Code = "normalization.exception"
)

// ---- QUALITY (decisions, not strictly errors, but tracked) ----
const (
	QualityQuarantined Code = "quality.quarantined"
)

// ---- CONFLATION ----
const (
	ConflationUncertain Code = "conflation.uncertain"
)

// ---- CATALOG ----
const (
	CatalogNoCandidate       Code = "catalog.no_candidate"
	CatalogPersistenceFailed Code = "catalog.persistence_failed"
)

// ---- INTERNAL ----
const (
	Internal        Code = "internal"
	InternalTimeout Code = "internal.timeout"
	DependencyDown  Code = "dependency.down"
)

var registry = map[Code]CodeMeta{
	SourceNotFound:     {HTTPStatus: 404, Retryable: false, Kind: "client", Description: "source id not found in registry"},
	SourceDisabled:     {HTTPStatus: 409, Retryable: false, Kind: "client", Description: "source is disabled"},
	SourceInvalidSpec:  {HTTPStatus: 500, Retryable: false, Kind: "server", Description: "source spec failed schema validation"},
	ParsePlanUnknown:   {HTTPStatus: 422, Retryable: false, Kind: "client", Description: "no parser registered for parse plan"},
	NormalizerNotFound: {HTTPStatus: 422, Retryable: false, Kind: "client", Description: "no normalizer registered for source"},

	PolicyPayloadTooLarge: {HTTPStatus: 413, Retryable: false, Kind: "client", Description: "payload exceeds max_payload_size_bytes"},
	PolicyMimeNotAllowed:  {HTTPStatus: 415, Retryable: false, Kind: "client", Description: "mime type not in source allow-list"},
	PolicyCadenceSkip:     {HTTPStatus: 204, Retryable: true, Kind: "client", Description: "source fetched within cadence window"},

	TransportHTTPError: {HTTPStatus: 502, Retryable: true, Kind: "dependency", Description: "upstream http request failed"},
	TransportTimeout:   {HTTPStatus: 504, Retryable: true, Kind: "dependency", Description: "upstream http request timed out"},
	TransportSSRF:      {HTTPStatus: 400, Retryable: false, Kind: "security", Description: "request target resolves to a disallowed private address"},

	PersistenceCASWrite:      {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "content-addressed store write failed"},
	PersistenceLogAppend:     {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "ingest log append failed"},
	PersistenceMetaStore:     {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "ingest metadata store operation failed"},
	PersistenceStoragePort:   {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "storage port operation failed"},
	PersistenceNotFound:      {HTTPStatus: 404, Retryable: false, Kind: "client", Description: "requested record not found"},
	PersistenceWriteConflict: {HTTPStatus: 409, Retryable: true, Kind: "dependency", Description: "concurrent write conflict"},

	ParsingFailed:      {HTTPStatus: 200, Retryable: false, Kind: "client", Description: "parser returned an error for one record; batch continues"},
	ParsingUnknownPlan: {HTTPStatus: 422, Retryable: false, Kind: "client", Description: "parse plan id not recognized by factory"},

	NormalizationMissing:   {HTTPStatus: 422, Retryable: false, Kind: "client", Description: "no normalizer configured for source id"},
	NormalizationException: {HTTPStatus: 200, Retryable: false, Kind: "client", Description: "normalizer raised on one record; batch continues"},

	QualityQuarantined: {HTTPStatus: 200, Retryable: false, Kind: "client", Description: "record quarantined by quality gate (decision, not a failure)"},

	ConflationUncertain: {HTTPStatus: 200, Retryable: false, Kind: "client", Description: "conflation below confidence threshold (warning, not a failure)"},

	CatalogNoCandidate:       {HTTPStatus: 200, Retryable: false, Kind: "client", Description: "no entity handler produced a candidate; record skipped"},
	CatalogPersistenceFailed: {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "catalog could not persist a candidate"},

	Internal:        {HTTPStatus: 500, Retryable: true, Kind: "server", Description: "internal error"},
	InternalTimeout:  {HTTPStatus: 504, Retryable: true, Kind: "server", Description: "internal timeout"},
	DependencyDown:   {HTTPStatus: 503, Retryable: true, Kind: "dependency", Description: "dependency unavailable"},
}

// Meta returns metadata for a code.
func Meta(code Code) (CodeMeta, bool) {
	m, ok := registry[code]
	return m, ok
}

func Known(code Code) bool {
	_, ok := registry[code]
	return ok
}

// List returns all known codes sorted.
func List() []Code {
	out := make([]Code, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExportJSON returns stable JSON of all codes + meta.
func ExportJSON() []byte {
	type row struct {
		Code Code     `json:"code"`
		Meta CodeMeta `json:"meta"`
	}
	codes := List()
	rows := make([]row, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, row{Code: c, Meta: registry[c]})
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return []byte("[]")
	}
	var buf bytes.Buffer
	_, _ = buf.Write(b)
	return buf.Bytes()
}
