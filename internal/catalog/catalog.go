// Package catalog maps ConflatedRecords onto the Storage Port and produces
// the audit trail (ProcessRecords) for each catalog decision. Persistence
// and change-detection are delegated to per-entity-type EntityHandlers
// resolved through a registry keyed by entity type.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
	"github.com/nspilman/sms-venue-pipeline/internal/storage"
)

// ChangeSet records whether a candidate is new and, if not, which fields
// differ from the existing stored record. Comparisons are strict equality
// (no float epsilon) so every difference surfaces, per policy.
type ChangeSet struct {
	IsNew         bool
	FieldsChanged []string
}

func (c ChangeSet) fieldsChangedString() string {
	return strings.Join(c.FieldsChanged, ",")
}

// CatalogCandidate is an EntityHandler's proposal for what to persist.
type CatalogCandidate struct {
	EntityType    model.EntityType
	Venue         *model.Venue
	Event         *model.Event
	Artist        *model.Artist
	ExistingID    string
	Changes       ChangeSet
	ShouldPersist bool
}

// EntityHandler maps ConflatedRecords of one entity type onto the Storage
// Port.
type EntityHandler interface {
	CanHandle(rec model.ConflatedRecord) bool
	PrepareCandidate(ctx context.Context, rec model.ConflatedRecord, store storage.Port) (CatalogCandidate, error)
	PersistCandidate(ctx context.Context, cand CatalogCandidate, store storage.Port) (persisted bool, err error)
	GenerateProcessRecords(rec model.ConflatedRecord, cand CatalogCandidate, run model.ProcessRun, now time.Time) []model.ProcessRecord
}

// Registry holds EntityHandlers keyed by model.EntityType.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.EntityType]EntityHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.EntityType]EntityHandler)}
}

func (r *Registry) Register(t model.EntityType, h EntityHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

func (r *Registry) Get(t model.EntityType) (EntityHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

func (r *Registry) List() []model.EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.EntityType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultRegistry returns a Registry with the venue/event/artist handlers
// registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(model.EntityVenue, VenueHandler{})
	r.Register(model.EntityEvent, EventHandler{})
	r.Register(model.EntityArtist, ArtistHandler{})
	return r
}

// Catalog runs conflated records through the registered handlers inside a
// ProcessRun lifecycle (start_run / catalog / finish_run).
type Catalog struct {
	mu       sync.Mutex
	registry *Registry
	store    storage.Port
	clock    func() time.Time
	onWarn   func(string)
	current  *model.ProcessRun
}

// New returns a Catalog wired against store and registry. A nil clock
// defaults to time.Now; a nil onWarn is a no-op.
func New(registry *Registry, store storage.Port, clock func() time.Time, onWarn func(string)) *Catalog {
	if clock == nil {
		clock = time.Now
	}
	if onWarn == nil {
		onWarn = func(string) {}
	}
	return &Catalog{registry: registry, store: store, clock: clock, onWarn: onWarn}
}

// StartRun opens a ProcessRun; subsequent Catalog calls are attributed to it
// until FinishRun.
func (c *Catalog) StartRun(ctx context.Context, name string) (model.ProcessRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, err := c.store.CreateProcessRun(ctx, model.ProcessRun{ID: uuid.NewString(), Name: name, CreatedAt: c.clock().UTC()})
	if err != nil {
		return model.ProcessRun{}, fmt.Errorf("catalog: start run: %w", err)
	}
	c.current = &run
	return run, nil
}

// FinishRun marks the current run finished. It returns an error if no run is
// open.
func (c *Catalog) FinishRun(ctx context.Context) (model.ProcessRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.ProcessRun{}, fmt.Errorf("catalog: finish run: no run in progress")
	}
	finishedAt := c.clock().UTC()
	c.current.FinishedAt = &finishedAt
	run, err := c.store.UpdateProcessRun(ctx, *c.current)
	c.current = nil
	if err != nil {
		return model.ProcessRun{}, fmt.Errorf("catalog: finish run: %w", err)
	}
	return run, nil
}

// Catalog handles one ConflatedRecord: prepares a candidate, persists it,
// and returns the audit ProcessRecords produced. If called outside a
// start_run/finish_run bracket, a synthetic ad-hoc run is created and
// immediately finished, with a warning.
func (c *Catalog) Catalog(ctx context.Context, rec model.ConflatedRecord) ([]model.ProcessRecord, error) {
	handler, ok := c.registry.Get(rec.CanonicalEntityType)
	if !ok {
		return nil, fmt.Errorf("catalog: no handler registered for entity type %q", rec.CanonicalEntityType)
	}
	if !handler.CanHandle(rec) {
		return nil, fmt.Errorf("catalog: handler for %q rejected record", rec.CanonicalEntityType)
	}

	run, adHoc, err := c.runForCatalog(ctx)
	if err != nil {
		return nil, err
	}

	cand, err := handler.PrepareCandidate(ctx, rec, c.store)
	if err != nil {
		return nil, fmt.Errorf("catalog: prepare candidate: %w", err)
	}

	if _, err := handler.PersistCandidate(ctx, cand, c.store); err != nil {
		return nil, fmt.Errorf("catalog: persist candidate: %w", err)
	}

	now := c.clock().UTC()
	records := handler.GenerateProcessRecords(rec, cand, run, now)
	for i, pr := range records {
		pr.ProcessRunID = run.ID
		if pr.ID == "" {
			pr.ID = uuid.NewString()
		}
		if pr.CreatedAt.IsZero() {
			pr.CreatedAt = now
		}
		stored, err := c.store.CreateProcessRecord(ctx, pr)
		if err != nil {
			return nil, fmt.Errorf("catalog: create process record: %w", err)
		}
		records[i] = stored
	}

	if adHoc {
		finishedAt := c.clock().UTC()
		run.FinishedAt = &finishedAt
		if _, err := c.store.UpdateProcessRun(ctx, run); err != nil {
			return nil, fmt.Errorf("catalog: finish ad-hoc run: %w", err)
		}
	}

	return records, nil
}

func (c *Catalog) runForCatalog(ctx context.Context) (model.ProcessRun, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return *c.current, false, nil
	}
	c.onWarn("catalog: no active process run; using a synthetic ad-hoc run")
	run, err := c.store.CreateProcessRun(ctx, model.ProcessRun{ID: uuid.NewString(), Name: "ad-hoc", CreatedAt: c.clock().UTC()})
	if err != nil {
		return model.ProcessRun{}, false, fmt.Errorf("catalog: create ad-hoc run: %w", err)
	}
	return run, true, nil
}
