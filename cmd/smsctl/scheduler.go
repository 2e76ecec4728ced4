package main

import (
	"context"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/orchestrator"
)

// ingestDeps assembles the Ingest Use Case's collaborators from a.
func (a *app) ingestDeps() orchestrator.IngestDeps {
	return orchestrator.IngestDeps{
		Sources: a.sources,
		Rates:   a.rates,
		Meta:    a.meta,
		Gateway: a.gw,
		HTTP:    a.http,
		Clock:   time.Now,
	}
}

// batchDeps assembles the batch pipeline's collaborators from a, writing
// side-outputs through output.
func (a *app) batchDeps(output *orchestrator.SideOutputWriter) orchestrator.BatchDeps {
	return orchestrator.BatchDeps{
		Sources:     a.sources,
		Parsers:     a.parsers,
		Normalizers: a.norms,
		Quality:     a.quality,
		Enricher:    a.enricher,
		Conflator:   a.conflator,
		Catalog:     a.catalog,
		Ledger:      a.ledger,
		Quarantine:  a.quarant,
		CAS:         a.cas,
		Log:         a.reader,
		Output:      output,
		Clock:       time.Now,
		Warn: func(msg string, fields map[string]any) {
			a.logger.Warn(context.Background(), msg, fields)
		},
	}
}

// runScheduleLoop polls a.schedule on an interval and submits a due
// source's ingest-then-parse pass to the worker pool, following the
// scheduler's Due(since, now) polling contract: since is the loop's own
// last poll time, not wall-clock-derived per tick.
func (a *app) runScheduleLoop(ctx context.Context) {
	interval := time.Duration(a.cfg.SchedulePollMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	since := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := a.schedule.Due(since, now)
			since = now
			if err != nil {
				a.logger.Error(ctx, "schedule_due_error", map[string]any{"error": err.Error()})
				continue
			}
			for _, sourceID := range due {
				sourceID := sourceID
				err := a.pool.Submit(ctx, "ingest_and_parse:"+sourceID, func(taskCtx context.Context) error {
					return a.ingestAndParse(taskCtx, sourceID)
				})
				if err != nil {
					a.logger.Warn(ctx, "schedule_submit_rejected", map[string]any{"source_id": sourceID, "error": err.Error()})
				}
			}
		}
	}
}

// ingestAndParse runs one IngestOnce followed by one RunBatch over the
// source-named consumer's unacked log lines, which can include envelopes
// accepted earlier or for other sources; it is the same pairing the admin
// surface's two manual endpoints let an operator trigger by hand.
func (a *app) ingestAndParse(ctx context.Context, sourceID string) error {
	result, err := orchestrator.IngestOnce(ctx, a.ingestDeps(), sourceID, a.cfg.BypassCadence)
	if err != nil {
		a.logger.Error(ctx, "scheduled_ingest_failed", map[string]any{"source_id": sourceID, "error": err.Error()})
		return err
	}
	if result.Skipped {
		a.logger.Info(ctx, "scheduled_ingest_skipped", map[string]any{"source_id": sourceID, "reason": result.SkipReason})
		return nil
	}

	output := orchestrator.NewSideOutputWriter(a.cfg.DataRoot+"/output", time.Now)
	batchResult, err := orchestrator.RunBatch(ctx, a.batchDeps(output), sourceID, 1000)
	if err != nil {
		a.logger.Error(ctx, "scheduled_parse_failed", map[string]any{"source_id": sourceID, "error": err.Error()})
		return err
	}
	a.logger.Info(ctx, "scheduled_parse_complete", map[string]any{
		"source_id":       sourceID,
		"written_records": batchResult.WrittenRecords,
		"quarantined":     batchResult.Quarantined,
	})

	if err := a.ledger.Verify(); err != nil {
		a.logger.Warn(ctx, "audit_chain_verify_failed", map[string]any{"error": err.Error()})
	}
	return nil
}
