package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nspilman/sms-venue-pipeline/internal/audit"
	"github.com/nspilman/sms-venue-pipeline/internal/cas"
	"github.com/nspilman/sms-venue-pipeline/internal/catalog"
	"github.com/nspilman/sms-venue-pipeline/internal/conflate"
	"github.com/nspilman/sms-venue-pipeline/internal/enrich"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestlog"
	"github.com/nspilman/sms-venue-pipeline/internal/model"
	"github.com/nspilman/sms-venue-pipeline/internal/normalizer"
	"github.com/nspilman/sms-venue-pipeline/internal/parser"
	"github.com/nspilman/sms-venue-pipeline/internal/qualitygate"
	"github.com/nspilman/sms-venue-pipeline/internal/sourceregistry"
	"github.com/nspilman/sms-venue-pipeline/pkg/telemetry"
)

// BatchDeps are the collaborators the batch pipeline use case (Parse →
// Normalize → QualityGate → Enrich → Conflate → Catalog) wires together.
type BatchDeps struct {
	Sources     *sourceregistry.Registry
	Parsers     *parser.Factory
	Normalizers *normalizer.Registry
	Quality     *qualitygate.Gate
	Enricher    *enrich.Enricher
	Conflator   *conflate.Conflator
	Catalog     *catalog.Catalog
	Ledger      *audit.Ledger
	Quarantine  *QuarantineRing
	CAS         cas.Store
	Log         *ingestlog.Reader
	Output      *SideOutputWriter
	Clock       func() time.Time

	// Warn receives per-record failures that were counted and skipped
	// rather than aborting the batch. Nil-safe.
	Warn func(msg string, fields map[string]any)
}

func (d BatchDeps) clock() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock()
}

func (d BatchDeps) warn(msg string, fields map[string]any) {
	if d.Warn != nil {
		d.Warn(msg, fields)
	}
}

// maxBatchErrors bounds BatchResult.Errors so a poisoned log region cannot
// grow an unbounded response.
const maxBatchErrors = 16

// BatchResult summarizes one RunBatch invocation.
type BatchResult struct {
	Seen                 int
	FilteredOut          int // dedupe envelopes skipped
	EmptyRecordEnvelopes int // envelopes that failed to parse or yielded no records
	Quarantined          int
	WrittenRecords       int      // process records cataloged
	RecordErrors         int      // per-record failures skipped without aborting
	Errors               []string // first maxBatchErrors failure messages
	LastEnvelopeID       string
}

// envelopeLine is the minimal shape read back off the ingest log.
type envelopeLine struct {
	EnvelopeID string         `json:"envelope_id"`
	PayloadRef string         `json:"payload_ref"`
	DedupeOf   string         `json:"dedupe_of,omitempty"`
	Envelope   model.Envelope `json:"envelope"`
}

// RunBatch reads up to maxLines envelopes from the ingest log starting at
// consumer's saved offset, and drives each through Parse, Normalize,
// QualityGate, Enrich, Conflate, and Catalog, writing each stage's NDJSON
// side-output as it goes. Normalizer instances are built once per source id
// for the whole batch, so within-batch duplicate-entity suppression works
// across every envelope from that source. The consumer offset is advanced
// via AckThrough only after every record drawn from an envelope has been
// fully processed.
//
// Per-record failures (a parser rejecting a payload, a normalizer throwing,
// a catalog handler failing on one record) are counted, reported through
// Warn, and skipped; the batch keeps going. Only infrastructure failures —
// the ingest log, CAS reads, side-output writes, the audit ledger — abort
// and surface to the caller.
func RunBatch(ctx context.Context, deps BatchDeps, consumer string, maxLines int) (BatchResult, error) {
	lines, _, err := deps.Log.ReadNext(ctx, consumer, maxLines)
	if errors.Is(err, ingestlog.ErrNoCurrentLog) {
		// Nothing has been appended yet: an empty batch, not a failure.
		return BatchResult{}, nil
	}
	if err != nil {
		return BatchResult{}, fmt.Errorf("orchestrator: read ingest log: %w", err)
	}

	result := BatchResult{Seen: len(lines)}
	normalizers := make(map[string]normalizer.Normalizer)

	run, err := deps.Catalog.StartRun(ctx, fmt.Sprintf("batch-%s", uuid.NewString()))
	if err != nil {
		return BatchResult{}, fmt.Errorf("orchestrator: start catalog run: %w", err)
	}
	ctx = telemetry.WithRunID(ctx, run.ID)

	for _, raw := range lines {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var env envelopeLine
		if err := json.Unmarshal(raw, &env); err != nil {
			return result, fmt.Errorf("orchestrator: decode ingest log line: %w", err)
		}
		result.LastEnvelopeID = env.EnvelopeID
		if env.DedupeOf != "" {
			result.FilteredOut++
			if err := deps.Log.AckThrough(ctx, consumer, env.EnvelopeID); err != nil {
				return result, fmt.Errorf("orchestrator: ack dedupe envelope: %w", err)
			}
			continue
		}

		recordError := func(msg string, err error) {
			result.RecordErrors++
			full := fmt.Sprintf("%s: %v", msg, err)
			if len(result.Errors) < maxBatchErrors {
				result.Errors = append(result.Errors, full)
			}
			deps.warn(msg, map[string]any{
				"envelope_id": env.EnvelopeID,
				"source_id":   env.Envelope.SourceID,
				"error":       err.Error(),
			})
		}
		skipEnvelope := func(msg string, err error) error {
			recordError(msg, err)
			if ackErr := deps.Log.AckThrough(ctx, consumer, env.EnvelopeID); ackErr != nil {
				return fmt.Errorf("orchestrator: ack skipped envelope %s: %w", env.EnvelopeID, ackErr)
			}
			return nil
		}

		spec, err := deps.Sources.Get(env.Envelope.SourceID)
		if err != nil {
			if err := skipEnvelope("source spec lookup failed", err); err != nil {
				return result, err
			}
			continue
		}

		payload, err := deps.CAS.Get(ctx, env.PayloadRef)
		if err != nil {
			return result, fmt.Errorf("orchestrator: cas get %s: %w", env.PayloadRef, err)
		}

		p, err := deps.Parsers.ForPlan(spec.ParsePlanRef)
		if err != nil {
			if err := skipEnvelope("unknown parse plan", err); err != nil {
				return result, err
			}
			continue
		}
		parsed, err := p.Parse(env.Envelope.SourceID, env.EnvelopeID, env.PayloadRef, payload)
		if err != nil {
			result.EmptyRecordEnvelopes++
			if err := skipEnvelope("parse failed", err); err != nil {
				return result, err
			}
			continue
		}
		if len(parsed) == 0 {
			result.EmptyRecordEnvelopes++
			if err := deps.Log.AckThrough(ctx, consumer, env.EnvelopeID); err != nil {
				return result, fmt.Errorf("orchestrator: ack empty envelope: %w", err)
			}
			continue
		}

		norm, ok := normalizers[env.Envelope.SourceID]
		if !ok {
			norm, err = deps.Normalizers.GetNormalizer(env.Envelope.SourceID)
			if err != nil {
				if err := skipEnvelope("no normalizer for source", err); err != nil {
					return result, err
				}
				continue
			}
			normalizers[env.Envelope.SourceID] = norm
		}

		for _, pr := range parsed {
			if err := deps.Output.Write("parsed", pr); err != nil {
				return result, fmt.Errorf("orchestrator: write parsed side-output: %w", err)
			}

			normalized, err := norm.Normalize(ctx, pr)
			if err != nil {
				recordError("normalize failed", err)
				continue
			}

			for _, nr := range normalized {
				qa := deps.Quality.Assess(nr)
				if qa.Decision == model.DecisionQuarantine {
					result.Quarantined++
					if deps.Quarantine != nil {
						deps.Quarantine.Add(env.Envelope.SourceID, qa)
					}
					if err := deps.Output.Write("quality/quarantined", qa); err != nil {
						return result, fmt.Errorf("orchestrator: write quarantined side-output: %w", err)
					}
					continue
				}
				if err := deps.Output.Write("quality/accepted", qa); err != nil {
					return result, fmt.Errorf("orchestrator: write accepted side-output: %w", err)
				}

				enriched := deps.Enricher.Enrich(qa)
				if err := deps.Output.Write("enriched", enriched); err != nil {
					return result, fmt.Errorf("orchestrator: write enriched side-output: %w", err)
				}

				conflated := deps.Conflator.Conflate(enriched)
				stage := "conflated-" + string(conflated.CanonicalEntityType)
				if err := deps.Output.Write(stage, conflated); err != nil {
					return result, fmt.Errorf("orchestrator: write conflated side-output: %w", err)
				}

				processRecords, err := deps.Catalog.Catalog(ctx, conflated)
				if err != nil {
					recordError("catalog failed", err)
					continue
				}
				for _, procRec := range processRecords {
					if deps.Ledger != nil {
						if _, err := deps.Ledger.Append(procRec); err != nil {
							return result, fmt.Errorf("orchestrator: audit append: %w", err)
						}
					}
				}
				result.WrittenRecords += len(processRecords)
			}
		}

		if err := deps.Log.AckThrough(ctx, consumer, env.EnvelopeID); err != nil {
			return result, fmt.Errorf("orchestrator: ack envelope %s: %w", env.EnvelopeID, err)
		}
	}

	if _, err := deps.Catalog.FinishRun(ctx); err != nil {
		return result, fmt.Errorf("orchestrator: finish catalog run: %w", err)
	}

	return result, nil
}
