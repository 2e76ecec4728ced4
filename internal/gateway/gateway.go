// Package gateway turns a submitted Envelope plus payload bytes into a
// durable, deduplicated StampedEnvelope appended to the ingest log. Its
// accept algorithm is the one fixed point every fetch, however retried,
// converges through: idempotency-key lookup first, content-addressed write
// second, log append third, meta-mapping last.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nspilman/sms-venue-pipeline/internal/cas"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestlog"
	"github.com/nspilman/sms-venue-pipeline/internal/ingestmeta"
	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

var ErrInvalidInput = errors.New("gateway: invalid input")

// Clock supplies the current time, injectable for deterministic tests.
type Clock func() time.Time

// Gateway wires together the content store, the append-only log, and the
// idempotency index behind the single accept operation.
type Gateway struct {
	store cas.Store
	log   *ingestlog.Writer
	meta  ingestmeta.Store
	clock Clock
}

// New builds a Gateway from its three collaborators.
func New(store cas.Store, log *ingestlog.Writer, meta ingestmeta.Store) *Gateway {
	return &Gateway{store: store, log: log, meta: meta, clock: time.Now}
}

// AcceptResult is what a successful Accept call reports back to its caller.
type AcceptResult struct {
	EnvelopeID string
	PayloadRef string
	DedupeOf   string
	Duplicate  bool
}

// Accept implements the acceptance algorithm: on an idempotency-key hit, it
// emits a dedupe envelope referencing the original and returns without
// touching CAS; otherwise it writes bytes to CAS, stamps a fresh envelope,
// appends it to the log, and records the idempotency mapping last. A
// failure at any step aborts and returns an error; steps already completed
// (a CAS blob, a log line) are left in place, since CAS writes are harmless
// to repeat and the log is expected to tolerate at-least-once duplicates.
func (g *Gateway) Accept(ctx context.Context, env model.Envelope, payload []byte) (AcceptResult, error) {
	if env.SourceID == "" || env.IdempotencyKey == "" {
		return AcceptResult{}, fmt.Errorf("%w: source_id and idempotency_key required", ErrInvalidInput)
	}

	now := g.clock().UTC()

	if existing, found, err := g.meta.Lookup(ctx, env.SourceID, env.IdempotencyKey); err != nil {
		return AcceptResult{}, fmt.Errorf("gateway: idempotency lookup: %w", err)
	} else if found {
		return g.emitDedupe(ctx, env, existing.EnvelopeID, now)
	}

	ref, err := g.store.Put(ctx, payload)
	if err != nil {
		return AcceptResult{}, fmt.Errorf("gateway: cas put: %w", err)
	}

	envelopeID := uuid.NewString()
	stamped := model.StampedEnvelope{
		EnvelopeVersion: env.EnvelopeVersion,
		EnvelopeID:      envelopeID,
		AcceptedAt:      now,
		PayloadRef:      ref,
		Envelope:        env,
	}
	stamped.Envelope.Timing.GatewayReceivedAt = &now

	if err := g.log.Append(ctx, stamped); err != nil {
		return AcceptResult{}, fmt.Errorf("gateway: log append: %w", err)
	}

	if _, _, err := g.meta.RecordAcceptance(ctx, ingestmeta.Acceptance{
		SourceID:       env.SourceID,
		IdempotencyKey: env.IdempotencyKey,
		EnvelopeID:     envelopeID,
		PayloadRef:     ref,
		AcceptedAt:     now,
	}); err != nil {
		return AcceptResult{}, fmt.Errorf("gateway: meta mapping: %w", err)
	}

	return AcceptResult{EnvelopeID: envelopeID, PayloadRef: ref}, nil
}

func (g *Gateway) emitDedupe(ctx context.Context, env model.Envelope, originalEnvelopeID string, now time.Time) (AcceptResult, error) {
	envelopeID := uuid.NewString()
	stamped := model.StampedEnvelope{
		EnvelopeVersion: env.EnvelopeVersion,
		EnvelopeID:      envelopeID,
		AcceptedAt:      now,
		DedupeOf:        originalEnvelopeID,
		Envelope:        env,
	}
	stamped.Envelope.Timing.GatewayReceivedAt = &now

	if err := g.log.Append(ctx, stamped); err != nil {
		return AcceptResult{}, fmt.Errorf("gateway: dedupe log append: %w", err)
	}
	return AcceptResult{EnvelopeID: envelopeID, DedupeOf: originalEnvelopeID, Duplicate: true}, nil
}
