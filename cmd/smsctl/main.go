// Command smsctl is the process entrypoint for the venue event-ingestion
// pipeline: it wires the source registry, rate limiter, gateway, CAS,
// ingest log, and the parse/normalize/quality/enrich/conflate/catalog chain
// together, then either serves the admin HTTP surface with a background
// cron-driven scheduler loop, or runs a single ingest/parse pass and exits,
// using an env-configured server and a flag-driven subcommand split.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/admin"
	"github.com/nspilman/sms-venue-pipeline/internal/orchestrator"
)

func main() {
	if len(os.Args) < 2 {
		runServe(loadCfg())
		return
	}

	switch os.Args[1] {
	case "serve":
		runServe(loadCfg())
	case "ingest-once":
		runIngestOnce(os.Args[2:])
	case "parse":
		runParseOnce(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: smsctl [serve|ingest-once|parse] [flags]")
	fmt.Fprintln(os.Stderr, "  serve                     run the admin HTTP surface and scheduler loop (default)")
	fmt.Fprintln(os.Stderr, "  ingest-once --source=ID   run the Ingest Use Case for one source and exit")
	fmt.Fprintln(os.Stderr, "  parse --consumer=NAME     run one batch pipeline pass and exit")
}

func runIngestOnce(args []string) {
	fs := flag.NewFlagSet("ingest-once", flag.ExitOnError)
	sourceID := fs.String("source", "", "source id to fetch")
	bypass := fs.Bool("bypass-cadence", false, "skip the minimum-interval cadence check")
	_ = fs.Parse(args)

	if *sourceID == "" {
		fmt.Fprintln(os.Stderr, "ingest-once: --source is required")
		os.Exit(2)
	}

	ctx := context.Background()
	a, err := build(ctx, loadCfg())
	if err != nil {
		fmt.Fprintln(os.Stderr, "build failed:", err)
		os.Exit(1)
	}

	result, err := orchestrator.IngestOnce(ctx, a.ingestDeps(), *sourceID, *bypass)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ingest-once failed:", err)
		os.Exit(1)
	}
	if result.Skipped {
		fmt.Printf("skipped: %s\n", result.SkipReason)
		return
	}
	fmt.Printf("accepted envelope %s (duplicate=%v)\n", result.Accept.EnvelopeID, result.Accept.Duplicate)
}

func runParseOnce(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	consumer := fs.String("consumer", "cli", "consumer name whose ingest-log offset advances")
	maxLines := fs.Int("max", 100, "maximum envelopes to read this pass")
	output := fs.String("output", "", "side-output root (defaults to <data-root>/output)")
	_ = fs.Parse(args)

	ctx := context.Background()
	c := loadCfg()
	a, err := build(ctx, c)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build failed:", err)
		os.Exit(1)
	}

	outputRoot := *output
	if outputRoot == "" {
		outputRoot = c.DataRoot + "/output"
	}
	deps := a.batchDeps(orchestrator.NewSideOutputWriter(outputRoot, time.Now))
	result, err := orchestrator.RunBatch(ctx, deps, *consumer, *maxLines)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse failed:", err)
		os.Exit(1)
	}
	fmt.Printf("seen=%d filtered_out=%d empty=%d written=%d\n",
		result.Seen, result.FilteredOut, result.EmptyRecordEnvelopes, result.WrittenRecords)
}

func runServe(c cfg) {
	ctx, stopNotify := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopNotify()

	a, err := build(ctx, c)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build failed:", err)
		os.Exit(1)
	}
	if a.sqlDB != nil {
		defer a.sqlDB.Close()
	}

	deps := admin.Deps{
		Ingest:         a.ingestDeps(),
		NewBatchDeps:   a.batchDeps,
		Reader:         a.reader,
		DataRoot:       c.DataRoot,
		BypassCadence:  c.BypassCadence,
		Logger:         a.logger,
		Meter:          a.meter,
		MetricsHandler: a.meter.Handler(),
	}
	handler := admin.NewRouter(deps)

	srv := &http.Server{
		Addr:         c.Addr,
		Handler:      handler,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		IdleTimeout:  c.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return context.Background()
		},
	}

	if err := a.pool.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pool start failed:", err)
		os.Exit(1)
	}

	schedCtx, schedCancel := context.WithCancel(ctx)
	go a.runScheduleLoop(schedCtx)

	go func() {
		a.logger.Info(ctx, "server_start", map[string]any{"addr": c.Addr, "env": c.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(ctx, "server_error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	a.logger.Info(context.Background(), "shutdown_start", nil)

	schedCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(context.Background(), "shutdown_error", map[string]any{"error": err.Error()})
		_ = srv.Close()
	}
	_ = a.pool.Stop(shutdownCtx, true)
	a.logger.Info(context.Background(), "shutdown_complete", nil)
}
