package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nspilman/sms-venue-pipeline/internal/audit"
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
	pkgconfig "github.com/nspilman/sms-venue-pipeline/pkg/config"
	"github.com/nspilman/sms-venue-pipeline/pkg/metrics"
	"github.com/nspilman/sms-venue-pipeline/pkg/telemetry"
)

// app bundles every collaborator wired at startup, so both the server loop
// and the one-shot subcommands can share a single construction path.
type app struct {
	cfg cfg

	logger *telemetry.Logger
	meter  *metrics.PrometheusMeter

	sources  *sourceregistry.Registry
	rates    *ratelimit.Manager
	cas      cas.Store
	log      *ingestlog.Writer
	reader   *ingestlog.Reader
	meta     ingestmeta.Store
	gw       *gateway.Gateway
	http     *httpfetch.Client
	parsers  *parser.Factory
	norms    *normalizer.Registry
	quality  *qualitygate.Gate
	enricher *enrich.Enricher
	conflator *conflate.Conflator
	store    storage.Port
	catalog  *catalog.Catalog
	ledger   *audit.Ledger
	pool     *orchestrator.Pool
	quarant  *orchestrator.QuarantineRing
	schedule *orchestrator.Schedule

	sqlDB *sql.DB
}

// build wires every collaborator per c, following the same dependency
// order the Ingest and Batch Use Cases themselves depend on: storage
// backends first, then the Gateway, then the parse/normalize/quality/
// enrich/conflate/catalog chain, then the scheduling layer on top.
func build(ctx context.Context, c cfg) (*app, error) {
	logger := telemetry.NewDefaultLogger(os.Stdout, "smsctl")
	meter := metrics.NewPrometheusMeter()

	applyRuntimeOptions(&c, logger)

	if err := os.MkdirAll(c.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("smsctl: data root: %w", err)
	}

	sourcesDir := filepath.Join(c.ConfigRoot, "sources")
	var sources *sourceregistry.Registry
	if info, err := os.Stat(sourcesDir); err == nil && info.IsDir() {
		sources, err = sourceregistry.LoadDir(sourcesDir)
		if err != nil {
			return nil, fmt.Errorf("smsctl: load source registry: %w", err)
		}
	} else {
		logger.Warn(ctx, "source_registry_empty", map[string]any{"dir": sourcesDir})
		sources = sourceregistry.NewRegistry()
	}

	var casStore cas.Store
	switch c.CASBackend {
	case "s3":
		s3Store, err := cas.NewS3Store(ctx, cas.S3StoreConfig{
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3Endpoint,
			Prefix:   c.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("smsctl: s3 cas store: %w", err)
		}
		casStore = s3Store
	default:
		fsStore, err := cas.NewFSStore(filepath.Join(c.DataRoot, "cas"))
		if err != nil {
			return nil, fmt.Errorf("smsctl: fs cas store: %w", err)
		}
		casStore = fsStore
	}

	logWriter, err := ingestlog.NewWriter(filepath.Join(c.DataRoot, "ingest"))
	if err != nil {
		return nil, fmt.Errorf("smsctl: ingest log writer: %w", err)
	}

	var sqlDB *sql.DB
	var metaStore ingestmeta.Store
	var storePort storage.Port

	if c.DBDriver == "" {
		memMeta := ingestmeta.NewMemStore()
		metaStore = memMeta
		storePort = storage.NewMemStore(nil)
	} else {
		driverName, dialect, err := driverFor(c.DBDriver)
		if err != nil {
			return nil, err
		}
		sqlDB, err = sql.Open(driverName, c.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("smsctl: open db: %w", err)
		}
		sqlMeta, err := ingestmeta.NewSQLStore(sqlDB, dialect, nil)
		if err != nil {
			return nil, fmt.Errorf("smsctl: ingestmeta sql store: %w", err)
		}
		if err := sqlMeta.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("smsctl: ingestmeta schema: %w", err)
		}
		metaStore = sqlMeta

		sqlStore, err := storage.NewSQLStore(sqlDB, storage.Dialect(dialect), nil)
		if err != nil {
			return nil, fmt.Errorf("smsctl: storage sql store: %w", err)
		}
		if err := sqlStore.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("smsctl: storage schema: %w", err)
		}
		storePort = sqlStore
	}

	reader := ingestlog.NewReader(filepath.Join(c.DataRoot, "ingest"), metaStore)
	gw := gateway.New(casStore, logWriter, metaStore)

	rates := ratelimit.NewManager()
	for _, id := range sources.List() {
		spec, err := sources.Get(id)
		if err != nil {
			continue
		}
		rates.ForSource(id, ratelimit.Limits{
			RequestsPerMin: spec.RateLimits.RequestsPerMin,
			BytesPerMin:    spec.RateLimits.BytesPerMin,
			Concurrency:    spec.RateLimits.Concurrency,
		})
	}

	parsers := parser.NewFactory()

	norms := normalizer.NewRegistry()
	for _, id := range sources.List() {
		spec, err := sources.Get(id)
		if err != nil {
			continue
		}
		sourceID := id
		strategyID := spec.Pipeline.NormalizerID
		if strategyID == "fixed_venue_v1" {
			if spec.Venue == nil {
				logger.Warn(ctx, "normalizer_fixed_venue_missing_profile", map[string]any{"source_id": sourceID})
				continue
			}
			profile := normalizer.VenueProfile{
				Name:         spec.Venue.Name,
				Address:      spec.Venue.Address,
				PostalCode:   spec.Venue.PostalCode,
				City:         spec.Venue.City,
				Latitude:     spec.Venue.Latitude,
				Longitude:    spec.Venue.Longitude,
				URL:          spec.Venue.URL,
				Neighborhood: spec.Venue.Neighborhood,
			}
			if err := norms.Register(sourceID, func() normalizer.Normalizer {
				return normalizer.NewFixedVenueNormalizer(sourceID, "fixed_venue_v1", profile)
			}); err != nil {
				return nil, fmt.Errorf("smsctl: register normalizer: %w", err)
			}
			continue
		}
		if strategyID == "" {
			strategyID = "generic_calendar_v1"
		}
		if err := norms.Register(sourceID, func() normalizer.Normalizer {
			return normalizer.NewGenericCalendarNormalizer(sourceID, strategyID)
		}); err != nil {
			return nil, fmt.Errorf("smsctl: register normalizer: %w", err)
		}
	}

	quality := qualitygate.New(qualitygate.Options{RequireCoords: true})
	enricher := enrich.New(enrich.Options{})
	conflator := conflate.New(conflate.Options{})

	registry := catalog.DefaultRegistry()
	cat := catalog.New(registry, storePort, nil, func(msg string) {
		logger.Warn(ctx, "catalog_warning", map[string]any{"msg": msg})
	})

	ledger := audit.NewLedger()
	quarant := orchestrator.NewQuarantineRing(c.QuarantineCapacity)

	poolLog := func(level, msg string, fields map[string]any) {
		switch level {
		case "error":
			logger.Error(ctx, msg, fields)
		case "warn":
			logger.Warn(ctx, msg, fields)
		default:
			logger.Info(ctx, msg, fields)
		}
	}
	pool := orchestrator.NewPool(c.Workers, c.QueueSize, poolLog)

	var entries []orchestrator.SourceSchedule
	for _, id := range sources.List() {
		entries = append(entries, orchestrator.SourceSchedule{
			SourceID: id,
			Cron:     c.DefaultCron,
			Timezone: c.DefaultTimezone,
		})
	}
	schedule, err := orchestrator.NewSchedule(entries)
	if err != nil {
		return nil, fmt.Errorf("smsctl: schedule: %w", err)
	}

	httpClient := httpfetch.New(httpfetch.Options{})

	return &app{
		cfg:       c,
		logger:    logger,
		meter:     meter,
		sources:   sources,
		rates:     rates,
		cas:       casStore,
		log:       logWriter,
		reader:    reader,
		meta:      metaStore,
		gw:        gw,
		http:      httpClient,
		parsers:   parsers,
		norms:     norms,
		quality:   quality,
		enricher:  enricher,
		conflator: conflator,
		store:     storePort,
		catalog:   cat,
		ledger:    ledger,
		pool:      pool,
		quarant:   quarant,
		schedule:  schedule,
		sqlDB:     sqlDB,
	}, nil
}

func driverFor(name string) (driverName string, dialect ingestmeta.Dialect, err error) {
	switch name {
	case "sqlite":
		return "sqlite3", ingestmeta.DialectSQLite, nil
	case "postgres":
		return "postgres", ingestmeta.DialectPostgres, nil
	default:
		return "", "", fmt.Errorf("smsctl: unknown db driver %q", name)
	}
}

// applyRuntimeOptions overlays pipeline runtime options (data root, CAS
// backend, bypass flag, default cron) loaded through the layered
// config.Loader's base/env tiers. Absent or unreadable config is a warning,
// not a fatal error, since env vars already supply working defaults.
func applyRuntimeOptions(c *cfg, logger *telemetry.Logger) {
	if err := os.MkdirAll(c.ConfigRoot, 0o755); err != nil {
		return
	}
	loader, err := pkgconfig.NewLoader(c.ConfigRoot, pkgconfig.Options{
		Service: "smsctl",
		Env:     c.Env,
		OnWarn: func(code, detail string) {
			logger.Warn(context.Background(), "config_warning", map[string]any{"code": code, "detail": detail})
		},
	})
	if err != nil {
		return
	}
	bundle, err := loader.Load(context.Background())
	if err != nil {
		return
	}
	if v, ok := bundle.Merged["data_root"].(string); ok && v != "" {
		c.DataRoot = v
	}
	if v, ok := bundle.Merged["cas_backend"].(string); ok && v != "" {
		c.CASBackend = v
	}
	if v, ok := bundle.Merged["bypass_cadence"].(bool); ok {
		c.BypassCadence = v
	}
	if v, ok := bundle.Merged["default_cron"].(string); ok && v != "" {
		c.DefaultCron = v
	}
}
