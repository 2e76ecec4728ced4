package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

// Dialect distinguishes the placeholder/DDL styles this store supports,
// mirroring internal/ingestmeta.Dialect.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore is a database/sql-backed Port against sqlite (mattn/go-sqlite3)
// or postgres (lib/pq), sharing internal/ingestmeta.SQLStore's
// dialect-switched placeholder style.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	clock   Clock
}

func NewSQLStore(db *sql.DB, dialect Dialect, clock Clock) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: db is nil")
	}
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("storage: unknown dialect %q", dialect)
	}
	if clock == nil {
		clock = time.Now
	}
	return &SQLStore{db: db, dialect: dialect, clock: clock}, nil
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// EnsureSchema creates the backing tables if they do not already exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	idType := "TEXT"
	tsType := "TEXT"
	if s.dialect == DialectPostgres {
		tsType = "TIMESTAMPTZ"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS venues (
			id %s PRIMARY KEY, name TEXT NOT NULL, name_lower TEXT NOT NULL, slug TEXT,
			latitude DOUBLE PRECISION, longitude DOUBLE PRECISION, address TEXT, postal_code TEXT,
			city TEXT, url TEXT, image_url TEXT, description TEXT, neighborhood TEXT,
			show_flag BOOLEAN NOT NULL DEFAULT TRUE, created_at %s NOT NULL
		)`, idType, tsType),
		`CREATE UNIQUE INDEX IF NOT EXISTS venues_name_lower_idx ON venues (name_lower)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS artists (
			id %s PRIMARY KEY, name TEXT NOT NULL, name_lower TEXT NOT NULL, slug TEXT,
			bio TEXT, image_url TEXT, created_at %s NOT NULL
		)`, idType, tsType),
		`CREATE UNIQUE INDEX IF NOT EXISTS artists_name_lower_idx ON artists (name_lower)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS events (
			id %s PRIMARY KEY, title TEXT NOT NULL, event_day TEXT NOT NULL, start_time TEXT,
			url TEXT, description TEXT, image_url TEXT, venue_id TEXT NOT NULL,
			artist_ids TEXT, show_flag BOOLEAN NOT NULL DEFAULT TRUE,
			finalized BOOLEAN NOT NULL DEFAULT FALSE, created_at %s NOT NULL
		)`, idType, tsType),
		`CREATE INDEX IF NOT EXISTS events_venue_date_idx ON events (venue_id, event_day)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS raw_data (
			id %s PRIMARY KEY, source_id TEXT NOT NULL, external_id TEXT NOT NULL,
			event_name TEXT, venue_name TEXT, event_day TEXT, payload TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE, linked_event_id TEXT, created_at %s NOT NULL
		)`, idType, tsType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS process_runs (
			id %s PRIMARY KEY, name TEXT NOT NULL, created_at %s NOT NULL, finished_at %s
		)`, idType, tsType, tsType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS process_records (
			id %s PRIMARY KEY, process_run_id TEXT NOT NULL, source_id TEXT NOT NULL,
			raw_data_id TEXT, change_kind TEXT NOT NULL, change_log TEXT, fields_changed TEXT,
			event_id TEXT, venue_id TEXT, artist_id TEXT, created_at %s NOT NULL
		)`, idType, tsType),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) CreateVenue(ctx context.Context, v model.Venue) (model.Venue, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.clock()
	}
	q := fmt.Sprintf(`INSERT INTO venues
		(id, name, name_lower, slug, latitude, longitude, address, postal_code, city, url, image_url, description, neighborhood, show_flag, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11), s.ph(12), s.ph(13), s.ph(14), s.ph(15))
	_, err := s.db.ExecContext(ctx, q, v.ID, v.Name, strings.ToLower(v.Name), v.Slug, v.Latitude, v.Longitude,
		v.Address, v.PostalCode, v.City, v.URL, v.ImageURL, v.Description, v.Neighborhood, v.ShowFlag, v.CreatedAt.UTC())
	if err != nil {
		return model.Venue{}, fmt.Errorf("storage: create venue: %w", err)
	}
	return v, nil
}

func (s *SQLStore) CreateArtist(ctx context.Context, a model.Artist) (model.Artist, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock()
	}
	q := fmt.Sprintf(`INSERT INTO artists (id, name, name_lower, slug, bio, image_url, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7))
	_, err := s.db.ExecContext(ctx, q, a.ID, a.Name, strings.ToLower(a.Name), a.Slug, a.Bio, a.ImageURL, a.CreatedAt.UTC())
	if err != nil {
		return model.Artist{}, fmt.Errorf("storage: create artist: %w", err)
	}
	return a, nil
}

func (s *SQLStore) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	artistIDs, err := json.Marshal(e.ArtistIDs)
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: marshal artist ids: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO events
		(id, title, event_day, start_time, url, description, image_url, venue_id, artist_ids, show_flag, finalized, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11), s.ph(12))
	_, err = s.db.ExecContext(ctx, q, e.ID, e.Title, e.EventDay, e.StartTime, e.URL, e.Description, e.ImageURL,
		e.VenueID, string(artistIDs), e.ShowFlag, e.Finalized, e.CreatedAt.UTC())
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: create event: %w", err)
	}
	return e, nil
}

func (s *SQLStore) UpdateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	artistIDs, err := json.Marshal(e.ArtistIDs)
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: marshal artist ids: %w", err)
	}
	q := fmt.Sprintf(`UPDATE events SET title=%s, event_day=%s, start_time=%s, url=%s, description=%s,
		image_url=%s, venue_id=%s, artist_ids=%s, show_flag=%s, finalized=%s WHERE id=%s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11))
	res, err := s.db.ExecContext(ctx, q, e.Title, e.EventDay, e.StartTime, e.URL, e.Description,
		e.ImageURL, e.VenueID, string(artistIDs), e.ShowFlag, e.Finalized, e.ID)
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Event{}, ErrNotFound
	}
	return e, nil
}

func (s *SQLStore) GetVenueByName(ctx context.Context, nameLower string) (model.Venue, bool, error) {
	q := fmt.Sprintf(`SELECT id, name, name_lower, slug, latitude, longitude, address, postal_code, city, url, image_url, description, neighborhood, show_flag, created_at
		FROM venues WHERE name_lower = %s`, s.ph(1))
	v, err := s.scanVenue(s.db.QueryRowContext(ctx, q, strings.ToLower(nameLower)))
	if err == sql.ErrNoRows {
		return model.Venue{}, false, nil
	}
	if err != nil {
		return model.Venue{}, false, fmt.Errorf("storage: get venue by name: %w", err)
	}
	return v, true, nil
}

func (s *SQLStore) GetArtistByName(ctx context.Context, nameLower string) (model.Artist, bool, error) {
	q := fmt.Sprintf(`SELECT id, name, slug, bio, image_url, created_at FROM artists WHERE name_lower = %s`, s.ph(1))
	a, err := s.scanArtist(s.db.QueryRowContext(ctx, q, strings.ToLower(nameLower)))
	if err == sql.ErrNoRows {
		return model.Artist{}, false, nil
	}
	if err != nil {
		return model.Artist{}, false, fmt.Errorf("storage: get artist by name: %w", err)
	}
	return a, true, nil
}

func (s *SQLStore) GetEventByVenueDateTitle(ctx context.Context, venueID, eventDay, titleLower string) (model.Event, bool, error) {
	q := fmt.Sprintf(`SELECT id, title, event_day, start_time, url, description, image_url, venue_id, artist_ids, show_flag, finalized, created_at
		FROM events WHERE venue_id = %s AND event_day = %s AND LOWER(title) = %s`, s.ph(1), s.ph(2), s.ph(3))
	e, err := s.scanEvent(s.db.QueryRowContext(ctx, q, venueID, eventDay, strings.ToLower(titleLower)))
	if err == sql.ErrNoRows {
		return model.Event{}, false, nil
	}
	if err != nil {
		return model.Event{}, false, fmt.Errorf("storage: get event by venue/date/title: %w", err)
	}
	return e, true, nil
}

func (s *SQLStore) GetVenueByID(ctx context.Context, id string) (model.Venue, error) {
	q := fmt.Sprintf(`SELECT id, name, name_lower, slug, latitude, longitude, address, postal_code, city, url, image_url, description, neighborhood, show_flag, created_at
		FROM venues WHERE id = %s`, s.ph(1))
	v, err := s.scanVenue(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return model.Venue{}, ErrNotFound
	}
	if err != nil {
		return model.Venue{}, fmt.Errorf("storage: get venue by id: %w", err)
	}
	return v, nil
}

func (s *SQLStore) GetArtistByID(ctx context.Context, id string) (model.Artist, error) {
	q := fmt.Sprintf(`SELECT id, name, slug, bio, image_url, created_at FROM artists WHERE id = %s`, s.ph(1))
	a, err := s.scanArtist(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return model.Artist{}, ErrNotFound
	}
	if err != nil {
		return model.Artist{}, fmt.Errorf("storage: get artist by id: %w", err)
	}
	return a, nil
}

func (s *SQLStore) GetEventByID(ctx context.Context, id string) (model.Event, error) {
	q := fmt.Sprintf(`SELECT id, title, event_day, start_time, url, description, image_url, venue_id, artist_ids, show_flag, finalized, created_at
		FROM events WHERE id = %s`, s.ph(1))
	e, err := s.scanEvent(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: get event by id: %w", err)
	}
	return e, nil
}

func (s *SQLStore) GetAllVenues(ctx context.Context) ([]model.Venue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, name_lower, slug, latitude, longitude, address, postal_code, city, url, image_url, description, neighborhood, show_flag, created_at FROM venues ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: get all venues: %w", err)
	}
	defer rows.Close()
	var out []model.Venue
	for rows.Next() {
		v, err := s.scanVenueRows(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan venue: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetAllArtists(ctx context.Context) ([]model.Artist, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, bio, image_url, created_at FROM artists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: get all artists: %w", err)
	}
	defer rows.Close()
	var out []model.Artist
	for rows.Next() {
		a, err := s.scanArtistRows(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan artist: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, event_day, start_time, url, description, image_url, venue_id, artist_ids, show_flag, finalized, created_at FROM events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: get all events: %w", err)
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := s.scanEventRows(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetEventsByVenueID(ctx context.Context, venueID string) ([]model.Event, error) {
	q := fmt.Sprintf(`SELECT id, title, event_day, start_time, url, description, image_url, venue_id, artist_ids, show_flag, finalized, created_at
		FROM events WHERE venue_id = %s ORDER BY event_day`, s.ph(1))
	return s.queryEvents(ctx, q, venueID)
}

func (s *SQLStore) GetEventsByArtistID(ctx context.Context, artistID string) ([]model.Event, error) {
	q := fmt.Sprintf(`SELECT id, title, event_day, start_time, url, description, image_url, venue_id, artist_ids, show_flag, finalized, created_at
		FROM events WHERE artist_ids LIKE %s ORDER BY event_day`, s.ph(1))
	return s.queryEvents(ctx, q, "%\""+artistID+"\"%")
}

func (s *SQLStore) GetEventsByDateRange(ctx context.Context, r DateRange) ([]model.Event, error) {
	q := fmt.Sprintf(`SELECT id, title, event_day, start_time, url, description, image_url, venue_id, artist_ids, show_flag, finalized, created_at
		FROM events WHERE event_day >= %s AND event_day <= %s ORDER BY event_day`, s.ph(1), s.ph(2))
	return s.queryEvents(ctx, q, r.From, r.To)
}

func (s *SQLStore) queryEvents(ctx context.Context, q string, args ...interface{}) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query events: %w", err)
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := s.scanEventRows(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) SearchArtists(ctx context.Context, query string) ([]model.Artist, error) {
	q := fmt.Sprintf(`SELECT id, name, slug, bio, image_url, created_at FROM artists WHERE name_lower LIKE %s ORDER BY name`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, q, "%"+strings.ToLower(strings.TrimSpace(query))+"%")
	if err != nil {
		return nil, fmt.Errorf("storage: search artists: %w", err)
	}
	defer rows.Close()
	var out []model.Artist
	for rows.Next() {
		a, err := s.scanArtistRows(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan artist: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateRawData(ctx context.Context, rd model.RawData) (model.RawData, error) {
	if rd.ID == "" {
		rd.ID = uuid.NewString()
	}
	if rd.CreatedAt.IsZero() {
		rd.CreatedAt = s.clock()
	}
	q := fmt.Sprintf(`INSERT INTO raw_data (id, source_id, external_id, event_name, venue_name, event_day, payload, processed, linked_event_id, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10))
	_, err := s.db.ExecContext(ctx, q, rd.ID, rd.SourceID, rd.ExternalID, rd.EventName, rd.VenueName, rd.EventDay,
		string(rd.Payload), rd.Processed, rd.LinkedEventID, rd.CreatedAt.UTC())
	if err != nil {
		return model.RawData{}, fmt.Errorf("storage: create raw data: %w", err)
	}
	return rd, nil
}

func (s *SQLStore) MarkRawDataProcessed(ctx context.Context, id, linkedEventID string) error {
	q := fmt.Sprintf(`UPDATE raw_data SET processed = %s, linked_event_id = %s WHERE id = %s`, s.ph(1), s.ph(2), s.ph(3))
	res, err := s.db.ExecContext(ctx, q, true, linkedEventID, id)
	if err != nil {
		return fmt.Errorf("storage: mark raw data processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetUnprocessedRawData(ctx context.Context, limit int) ([]model.RawData, error) {
	q := `SELECT id, source_id, external_id, event_name, venue_name, event_day, payload, processed, linked_event_id, created_at
		FROM raw_data WHERE processed = false ORDER BY created_at`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("storage: get unprocessed raw data: %w", err)
	}
	defer rows.Close()
	var out []model.RawData
	for rows.Next() {
		var rd model.RawData
		var payload string
		var linked sql.NullString
		if err := rows.Scan(&rd.ID, &rd.SourceID, &rd.ExternalID, &rd.EventName, &rd.VenueName, &rd.EventDay,
			&payload, &rd.Processed, &linked, &rd.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan raw data: %w", err)
		}
		rd.Payload = json.RawMessage(payload)
		rd.LinkedEventID = linked.String
		rd.CreatedAt = rd.CreatedAt.UTC()
		out = append(out, rd)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateProcessRun(ctx context.Context, run model.ProcessRun) (model.ProcessRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.clock()
	}
	q := fmt.Sprintf(`INSERT INTO process_runs (id, name, created_at, finished_at) VALUES (%s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	var finishedAt interface{}
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, q, run.ID, run.Name, run.CreatedAt.UTC(), finishedAt)
	if err != nil {
		return model.ProcessRun{}, fmt.Errorf("storage: create process run: %w", err)
	}
	return run, nil
}

func (s *SQLStore) UpdateProcessRun(ctx context.Context, run model.ProcessRun) (model.ProcessRun, error) {
	var finishedAt interface{}
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.UTC()
	}
	q := fmt.Sprintf(`UPDATE process_runs SET name = %s, finished_at = %s WHERE id = %s`, s.ph(1), s.ph(2), s.ph(3))
	res, err := s.db.ExecContext(ctx, q, run.Name, finishedAt, run.ID)
	if err != nil {
		return model.ProcessRun{}, fmt.Errorf("storage: update process run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ProcessRun{}, ErrNotFound
	}
	return run, nil
}

func (s *SQLStore) CreateProcessRecord(ctx context.Context, rec model.ProcessRecord) (model.ProcessRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	q := fmt.Sprintf(`INSERT INTO process_records
		(id, process_run_id, source_id, raw_data_id, change_kind, change_log, fields_changed, event_id, venue_id, artist_id, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11))
	_, err := s.db.ExecContext(ctx, q, rec.ID, rec.ProcessRunID, rec.SourceID, rec.RawDataID, string(rec.ChangeKind),
		rec.ChangeLog, rec.FieldsChanged, rec.EventID, rec.VenueID, rec.ArtistID, rec.CreatedAt.UTC())
	if err != nil {
		return model.ProcessRecord{}, fmt.Errorf("storage: create process record: %w", err)
	}
	return rec, nil
}

// row is satisfied by both *sql.Row and *sql.Rows.
type row interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) scanVenue(r row) (model.Venue, error) {
	var v model.Venue
	var nameLower string
	err := r.Scan(&v.ID, &v.Name, &nameLower, &v.Slug, &v.Latitude, &v.Longitude, &v.Address, &v.PostalCode,
		&v.City, &v.URL, &v.ImageURL, &v.Description, &v.Neighborhood, &v.ShowFlag, &v.CreatedAt)
	v.NameLower = nameLower
	v.CreatedAt = v.CreatedAt.UTC()
	return v, err
}

func (s *SQLStore) scanVenueRows(r *sql.Rows) (model.Venue, error) { return s.scanVenue(r) }

func (s *SQLStore) scanArtist(r row) (model.Artist, error) {
	var a model.Artist
	err := r.Scan(&a.ID, &a.Name, &a.Slug, &a.Bio, &a.ImageURL, &a.CreatedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, err
}

func (s *SQLStore) scanArtistRows(r *sql.Rows) (model.Artist, error) { return s.scanArtist(r) }

func (s *SQLStore) scanEvent(r row) (model.Event, error) {
	var e model.Event
	var artistIDs string
	err := r.Scan(&e.ID, &e.Title, &e.EventDay, &e.StartTime, &e.URL, &e.Description, &e.ImageURL,
		&e.VenueID, &artistIDs, &e.ShowFlag, &e.Finalized, &e.CreatedAt)
	if err != nil {
		return model.Event{}, err
	}
	if artistIDs != "" {
		_ = json.Unmarshal([]byte(artistIDs), &e.ArtistIDs)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (s *SQLStore) scanEventRows(r *sql.Rows) (model.Event, error) { return s.scanEvent(r) }
