// Package ingestmeta tracks per-source ingest bookkeeping that must survive
// process restarts: idempotency keys already accepted (so a
// repeat fetch of unchanged content is recognized as a duplicate rather than
// appended again), the last successful fetch time per source (so the
// cadence scheduler can skip a source whose MinIntervalSeconds has not
// elapsed), and consumer offsets into the ingest log (so stage consumers can
// resume after a crash without reprocessing everything). The SQL-backed
// implementation is a Clock-injected, upsert-on-conflict relational store.
package ingestmeta

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrInvalidInput = errors.New("ingestmeta: invalid input")
	ErrNotFound     = errors.New("ingestmeta: not found")
)

// Acceptance is what the gateway recorded the first time an idempotency key
// was seen for a source.
type Acceptance struct {
	SourceID       string
	IdempotencyKey string
	EnvelopeID     string
	PayloadRef     string
	AcceptedAt     time.Time
}

// Store is the persistence port for ingest bookkeeping. Implementations must
// be safe for concurrent use.
type Store interface {
	// Lookup returns the Acceptance already recorded for (sourceID,
	// idempotencyKey), if any, without creating one.
	Lookup(ctx context.Context, sourceID, idempotencyKey string) (existing Acceptance, found bool, err error)

	// RecordAcceptance stores the first-seen Acceptance for (sourceID, idempotencyKey).
	// If an Acceptance already exists for that pair, the existing one is
	// returned unchanged along with existed=true; the caller uses its
	// EnvelopeID as DedupeOf.
	RecordAcceptance(ctx context.Context, a Acceptance) (existing Acceptance, existed bool, err error)

	// LastFetch returns the last recorded fetch time for sourceID.
	LastFetch(ctx context.Context, sourceID string) (t time.Time, ok bool, err error)
	// RecordFetch sets the last fetch time for sourceID to at.
	RecordFetch(ctx context.Context, sourceID string, at time.Time) error

	// Offset returns the last committed offset for consumerID.
	Offset(ctx context.Context, consumerID string) (offset int64, ok bool, err error)
	// CommitOffset durably advances consumerID's offset. Implementations must
	// reject a regression (offset less than the currently stored value).
	CommitOffset(ctx context.Context, consumerID string, offset int64) error
}

// MemStore is an in-memory Store, useful for tests and single-process
// development without a SQL driver.
type MemStore struct {
	mu        sync.Mutex
	accepted  map[string]Acceptance // key: sourceID + "\x00" + idempotencyKey
	lastFetch map[string]time.Time
	offsets   map[string]int64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		accepted:  make(map[string]Acceptance),
		lastFetch: make(map[string]time.Time),
		offsets:   make(map[string]int64),
	}
}

func acceptKey(sourceID, idempotencyKey string) string {
	return sourceID + "\x00" + idempotencyKey
}

func (m *MemStore) Lookup(ctx context.Context, sourceID, idempotencyKey string) (Acceptance, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.accepted[acceptKey(sourceID, idempotencyKey)]
	return existing, ok, nil
}

func (m *MemStore) RecordAcceptance(ctx context.Context, a Acceptance) (Acceptance, bool, error) {
	if a.SourceID == "" || a.IdempotencyKey == "" || a.EnvelopeID == "" {
		return Acceptance{}, false, ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := acceptKey(a.SourceID, a.IdempotencyKey)
	if existing, ok := m.accepted[k]; ok {
		return existing, true, nil
	}
	m.accepted[k] = a
	return a, false, nil
}

func (m *MemStore) LastFetch(ctx context.Context, sourceID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lastFetch[sourceID]
	return t, ok, nil
}

func (m *MemStore) RecordFetch(ctx context.Context, sourceID string, at time.Time) error {
	if sourceID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFetch[sourceID] = at.UTC()
	return nil
}

func (m *MemStore) Offset(ctx context.Context, consumerID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offsets[consumerID]
	return o, ok, nil
}

func (m *MemStore) CommitOffset(ctx context.Context, consumerID string, offset int64) error {
	if consumerID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.offsets[consumerID]; ok && offset < cur {
		return errors.New("ingestmeta: offset regression")
	}
	m.offsets[consumerID] = offset
	return nil
}
