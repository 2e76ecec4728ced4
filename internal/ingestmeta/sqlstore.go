package ingestmeta

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Clock supplies the current time, injectable for deterministic tests.
type Clock func() time.Time

// Dialect distinguishes the two placeholder/DDL styles this store supports.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore is a database/sql-backed Store. It works against either the
// mattn/go-sqlite3 or lib/pq driver depending on Dialect; writes go through
// upsert-on-conflict statements so retries stay idempotent.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	clock   Clock
}

// NewSQLStore wraps an already-open *sql.DB. dialect selects placeholder
// style ($1 for postgres, ? for sqlite) and the AUTOINCREMENT/SERIAL DDL
// variant used by EnsureSchema.
func NewSQLStore(db *sql.DB, dialect Dialect, clock Clock) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db is nil", ErrInvalidInput)
	}
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("%w: unknown dialect %q", ErrInvalidInput, dialect)
	}
	if clock == nil {
		clock = time.Now
	}
	return &SQLStore{db: db, dialect: dialect, clock: clock}, nil
}

// EnsureSchema creates the backing tables if they do not already exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	var stmts []string
	switch s.dialect {
	case DialectPostgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS ingest_acceptances (
				source_id TEXT NOT NULL,
				idempotency_key TEXT NOT NULL,
				envelope_id TEXT NOT NULL,
				payload_ref TEXT NOT NULL,
				accepted_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (source_id, idempotency_key)
			)`,
			`CREATE TABLE IF NOT EXISTS ingest_last_fetch (
				source_id TEXT PRIMARY KEY,
				fetched_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS ingest_consumer_offsets (
				consumer_id TEXT PRIMARY KEY,
				offset_value BIGINT NOT NULL
			)`,
		}
	case DialectSQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS ingest_acceptances (
				source_id TEXT NOT NULL,
				idempotency_key TEXT NOT NULL,
				envelope_id TEXT NOT NULL,
				payload_ref TEXT NOT NULL,
				accepted_at TEXT NOT NULL,
				PRIMARY KEY (source_id, idempotency_key)
			)`,
			`CREATE TABLE IF NOT EXISTS ingest_last_fetch (
				source_id TEXT PRIMARY KEY,
				fetched_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS ingest_consumer_offsets (
				consumer_id TEXT PRIMARY KEY,
				offset_value INTEGER NOT NULL
			)`,
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ingestmeta: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Lookup(ctx context.Context, sourceID, idempotencyKey string) (Acceptance, bool, error) {
	q := fmt.Sprintf(
		`SELECT envelope_id, payload_ref, accepted_at FROM ingest_acceptances WHERE source_id = %s AND idempotency_key = %s`,
		s.ph(1), s.ph(2))

	var (
		envID      string
		payloadRef string
		acceptedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, q, sourceID, idempotencyKey).Scan(&envID, &payloadRef, &acceptedAt)
	if err == sql.ErrNoRows {
		return Acceptance{}, false, nil
	}
	if err != nil {
		return Acceptance{}, false, fmt.Errorf("ingestmeta: lookup: %w", err)
	}
	return Acceptance{
		SourceID:       sourceID,
		IdempotencyKey: idempotencyKey,
		EnvelopeID:     envID,
		PayloadRef:     payloadRef,
		AcceptedAt:     acceptedAt.UTC(),
	}, true, nil
}

func (s *SQLStore) RecordAcceptance(ctx context.Context, a Acceptance) (Acceptance, bool, error) {
	if a.SourceID == "" || a.IdempotencyKey == "" || a.EnvelopeID == "" {
		return Acceptance{}, false, ErrInvalidInput
	}

	selectQ := fmt.Sprintf(
		`SELECT envelope_id, payload_ref, accepted_at FROM ingest_acceptances WHERE source_id = %s AND idempotency_key = %s`,
		s.ph(1), s.ph(2))

	var (
		envID      string
		payloadRef string
		acceptedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, selectQ, a.SourceID, a.IdempotencyKey).Scan(&envID, &payloadRef, &acceptedAt)
	if err == nil {
		return Acceptance{
			SourceID:       a.SourceID,
			IdempotencyKey: a.IdempotencyKey,
			EnvelopeID:     envID,
			PayloadRef:     payloadRef,
			AcceptedAt:     acceptedAt.UTC(),
		}, true, nil
	}
	if err != sql.ErrNoRows {
		return Acceptance{}, false, fmt.Errorf("ingestmeta: lookup acceptance: %w", err)
	}

	if a.AcceptedAt.IsZero() {
		a.AcceptedAt = s.clock().UTC()
	}

	insertQ := fmt.Sprintf(
		`INSERT INTO ingest_acceptances (source_id, idempotency_key, envelope_id, payload_ref, accepted_at) VALUES (%s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	if _, err := s.db.ExecContext(ctx, insertQ, a.SourceID, a.IdempotencyKey, a.EnvelopeID, a.PayloadRef, a.AcceptedAt); err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent insert; re-read the winner.
			return s.RecordAcceptance(ctx, a)
		}
		return Acceptance{}, false, fmt.Errorf("ingestmeta: insert acceptance: %w", err)
	}
	return a, false, nil
}

func (s *SQLStore) LastFetch(ctx context.Context, sourceID string) (time.Time, bool, error) {
	q := fmt.Sprintf(`SELECT fetched_at FROM ingest_last_fetch WHERE source_id = %s`, s.ph(1))
	var t time.Time
	err := s.db.QueryRowContext(ctx, q, sourceID).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ingestmeta: last fetch: %w", err)
	}
	return t.UTC(), true, nil
}

func (s *SQLStore) RecordFetch(ctx context.Context, sourceID string, at time.Time) error {
	if sourceID == "" {
		return ErrInvalidInput
	}
	var q string
	if s.dialect == DialectPostgres {
		q = fmt.Sprintf(`INSERT INTO ingest_last_fetch (source_id, fetched_at) VALUES (%s, %s)
			ON CONFLICT (source_id) DO UPDATE SET fetched_at = EXCLUDED.fetched_at`, s.ph(1), s.ph(2))
	} else {
		q = `INSERT INTO ingest_last_fetch (source_id, fetched_at) VALUES (?, ?)
			ON CONFLICT (source_id) DO UPDATE SET fetched_at = excluded.fetched_at`
	}
	if _, err := s.db.ExecContext(ctx, q, sourceID, at.UTC()); err != nil {
		return fmt.Errorf("ingestmeta: record fetch: %w", err)
	}
	return nil
}

func (s *SQLStore) Offset(ctx context.Context, consumerID string) (int64, bool, error) {
	q := fmt.Sprintf(`SELECT offset_value FROM ingest_consumer_offsets WHERE consumer_id = %s`, s.ph(1))
	var off int64
	err := s.db.QueryRowContext(ctx, q, consumerID).Scan(&off)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("ingestmeta: offset: %w", err)
	}
	return off, true, nil
}

func (s *SQLStore) CommitOffset(ctx context.Context, consumerID string, offset int64) error {
	if consumerID == "" {
		return ErrInvalidInput
	}
	cur, ok, err := s.Offset(ctx, consumerID)
	if err != nil {
		return err
	}
	if ok && offset < cur {
		return fmt.Errorf("ingestmeta: offset regression for %s: %d < %d", consumerID, offset, cur)
	}

	var q string
	if s.dialect == DialectPostgres {
		q = fmt.Sprintf(`INSERT INTO ingest_consumer_offsets (consumer_id, offset_value) VALUES (%s, %s)
			ON CONFLICT (consumer_id) DO UPDATE SET offset_value = EXCLUDED.offset_value`, s.ph(1), s.ph(2))
	} else {
		q = `INSERT INTO ingest_consumer_offsets (consumer_id, offset_value) VALUES (?, ?)
			ON CONFLICT (consumer_id) DO UPDATE SET offset_value = excluded.offset_value`
	}
	if _, err := s.db.ExecContext(ctx, q, consumerID, offset); err != nil {
		return fmt.Errorf("ingestmeta: commit offset: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
