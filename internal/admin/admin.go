// Package admin is the HTTP surface operators use to trigger and inspect
// the pipeline: a manual single-source gateway fetch, a manual batch parse
// run, health/readiness, metrics exposition, and a websocket tail of the
// ingest log. It is a thin shell over internal/orchestrator; every
// consequential decision (cadence, dedup, parsing, normalization, quality,
// enrichment, conflation, catalog) lives in the packages it calls.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/ingestlog"
	"github.com/nspilman/sms-venue-pipeline/internal/orchestrator"
	"github.com/nspilman/sms-venue-pipeline/pkg/telemetry"
)

// Deps are the collaborators the admin surface needs to build
// orchestrator.IngestDeps / orchestrator.BatchDeps per request, plus the
// ambient log/meter.
type Deps struct {
	Ingest        orchestrator.IngestDeps
	NewBatchDeps  func(output *orchestrator.SideOutputWriter) orchestrator.BatchDeps
	Reader        *ingestlog.Reader
	DataRoot      string
	BypassCadence bool
	Logger        *telemetry.Logger
	Meter         telemetry.Meter
	MetricsHandler http.Handler
	Clock         func() time.Time
}

func (d Deps) clock() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock()
}

func (d Deps) logger() *telemetry.Logger {
	if d.Logger == nil {
		return telemetry.NewDefaultLogger(nil, "admin")
	}
	return d.Logger
}

func (d Deps) meter() telemetry.Meter {
	if d.Meter == nil {
		return telemetry.NopMeterInstance
	}
	return d.Meter
}

func recordLatency(ctx context.Context, m telemetry.Meter, name string, start time.Time, labels telemetry.Labels) {
	_ = telemetry.ObserveHistogram(m, ctx, name, time.Since(start).Seconds(), telemetry.DefaultHistogramBuckets(), labels)
}
