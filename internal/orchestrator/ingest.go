// Package orchestrator wires the registry, rate limiter, gateway, and
// pipeline stages together behind a cadence scheduler and a bounded worker
// pool.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/gateway"
	"github.com/nspilman/sms-venue-pipeline/internal/httpfetch"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestmeta"
	"github.com/nspilman/sms-venue-pipeline/internal/model"
	"github.com/nspilman/sms-venue-pipeline/internal/ratelimit"
	"github.com/nspilman/sms-venue-pipeline/internal/sourceregistry"
	pkgerrors "github.com/nspilman/sms-venue-pipeline/pkg/errors"
	"github.com/nspilman/sms-venue-pipeline/pkg/idempotency"
)

// EnvelopeVersion is the Envelope schema version this orchestrator stamps.
const EnvelopeVersion = 1

// defaultMinInterval is the cadence floor applied when a SourceSpec does not
// override MinIntervalSeconds.
const defaultMinInterval = 12 * time.Hour

// IngestError is a typed failure from the Ingest Use Case, carrying the
// stable error code the admin surface and metrics map onto. Every step of
// the use case that can fail surfaces one of these; none are retried
// internally.
type IngestError struct {
	Code    pkgerrors.Code
	Message string
	Err     error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *IngestError) Unwrap() error { return e.Err }

func ingestErr(code pkgerrors.Code, msg string, err error) *IngestError {
	return &IngestError{Code: code, Message: msg, Err: err}
}

// IngestResult reports what the Ingest Use Case did for one source.
type IngestResult struct {
	SourceID   string
	Skipped    bool
	SkipReason string
	Accept     gateway.AcceptResult
}

// IngestDeps are the collaborators the Ingest Use Case wires together.
type IngestDeps struct {
	Sources *sourceregistry.Registry
	Rates   *ratelimit.Manager
	Meta    ingestmeta.Store
	Gateway *gateway.Gateway
	HTTP    *httpfetch.Client
	Clock   func() time.Time
}

func (d IngestDeps) clock() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock()
}

// IngestOnce runs the Ingest Use Case for sourceID: load the SourceSpec and
// fail fast if disabled; check cadence against the source's last successful
// fetch; acquire rate-limit capacity, fetch, and charge the bytes consumed;
// enforce the MIME and size policy; compute the idempotency key; assemble
// and submit the Envelope to the Gateway; and on success record the fetch
// time. bypassCadence skips the min-interval check, for the admin surface's
// manual trigger.
func IngestOnce(ctx context.Context, deps IngestDeps, sourceID string, bypassCadence bool) (IngestResult, error) {
	spec, err := deps.Sources.Get(sourceID)
	if err != nil {
		return IngestResult{}, ingestErr(pkgerrors.SourceNotFound, "source spec lookup failed", err)
	}
	if !spec.Enabled {
		return IngestResult{}, ingestErr(pkgerrors.SourceDisabled, fmt.Sprintf("source %s is disabled", sourceID), nil)
	}

	if !bypassCadence {
		last, ok, err := deps.Meta.LastFetch(ctx, sourceID)
		if err != nil {
			return IngestResult{}, ingestErr(pkgerrors.PersistenceMetaStore, "last-fetch lookup failed", err)
		}
		minInterval := defaultMinInterval
		if spec.MinIntervalSeconds > 0 {
			minInterval = time.Duration(spec.MinIntervalSeconds) * time.Second
		}
		if ok && deps.clock().Sub(last) < minInterval {
			return IngestResult{SourceID: sourceID, Skipped: true, SkipReason: "cadence_skip"}, nil
		}
	}

	endpoint, ok := spec.PrimaryEndpoint()
	if !ok {
		return IngestResult{}, ingestErr(pkgerrors.SourceInvalidSpec, fmt.Sprintf("source %s has no endpoints", sourceID), nil)
	}

	limiter := deps.Rates.ForSource(sourceID, ratelimit.Limits{
		RequestsPerMin: spec.RateLimits.RequestsPerMin,
		BytesPerMin:    spec.RateLimits.BytesPerMin,
		Concurrency:    spec.RateLimits.Concurrency,
	})
	release, err := limiter.Acquire(ctx)
	if err != nil {
		return IngestResult{}, ingestErr(pkgerrors.TransportHTTPError, "rate limit acquire failed", err)
	}
	defer release()

	resp, err := deps.HTTP.Get(ctx, endpoint.URL, spec.Content.MaxPayloadSizeBytes)
	if err != nil {
		return IngestResult{}, ingestErr(pkgerrors.TransportHTTPError, "fetch failed", err)
	}
	if err := limiter.Charge(ctx, int64(len(resp.Body))); err != nil {
		return IngestResult{}, ingestErr(pkgerrors.TransportHTTPError, "rate limit charge failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return IngestResult{}, ingestErr(pkgerrors.TransportHTTPError, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if spec.Content.MaxPayloadSizeBytes > 0 && int64(len(resp.Body)) > spec.Content.MaxPayloadSizeBytes {
		return IngestResult{}, ingestErr(pkgerrors.PolicyPayloadTooLarge, fmt.Sprintf("payload %d bytes exceeds max %d", len(resp.Body), spec.Content.MaxPayloadSizeBytes), nil)
	}
	base := httpfetch.BaseMIME(resp.ContentType)
	if len(spec.Content.AllowedMimeTypes) > 0 && !mimeAllowed(base, spec.Content.AllowedMimeTypes) {
		return IngestResult{}, ingestErr(pkgerrors.PolicyMimeNotAllowed, fmt.Sprintf("mime %q not allowed for source %s", base, sourceID), nil)
	}

	sum := sha256.Sum256(resp.Body)
	shaHex := hex.EncodeToString(sum[:])
	idemKey, err := idempotency.BuildKey(sourceID, "ingest", endpoint.URL, resp.ETag, resp.LastModified, shaHex)
	if err != nil {
		return IngestResult{}, ingestErr(pkgerrors.Internal, "idempotency key construction failed", err)
	}

	fetchedAt := deps.clock().UTC()
	env := model.Envelope{
		EnvelopeVersion: EnvelopeVersion,
		SourceID:        sourceID,
		IdempotencyKey:  idemKey,
		PayloadMeta: model.PayloadMeta{
			MimeType:  base,
			SizeBytes: int64(len(resp.Body)),
			Checksum:  model.Checksum{SHA256: shaHex},
		},
		Request: model.RequestMeta{
			URL:          endpoint.URL,
			Method:       http.MethodGet,
			Status:       resp.StatusCode,
			ETag:         resp.ETag,
			LastModified: resp.LastModified,
		},
		Timing: model.Timing{FetchedAt: fetchedAt},
		Legal:  model.Legal{LicenseID: spec.Policy.LicenseID},
	}

	accept, err := deps.Gateway.Accept(ctx, env, resp.Body)
	if err != nil {
		return IngestResult{}, ingestErr(pkgerrors.PersistenceLogAppend, "gateway accept failed", err)
	}

	if err := deps.Meta.RecordFetch(ctx, sourceID, fetchedAt); err != nil {
		return IngestResult{}, ingestErr(pkgerrors.PersistenceMetaStore, "record fetch failed", err)
	}

	return IngestResult{SourceID: sourceID, Accept: accept}, nil
}

func mimeAllowed(mime string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), mime) {
			return true
		}
	}
	return false
}
