// Package storage defines the Storage Port the catalog stage persists
// through, plus an in-memory implementation for tests/dry-runs and a
// database/sql implementation (sqlite/postgres) that mirrors
// internal/ingestmeta's Clock-injected, dialect-switched relational layer.
// The SQL Create* methods are plain INSERTs with no ON CONFLICT clause: they
// do not upsert, so creating an id that already exists is not absorbed.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

// ErrNotFound is returned by get_*_by_id / get_*_by_name lookups that miss.
var ErrNotFound = errors.New("storage: not found")

// DateRange bounds get_events_by_date_range, both ends inclusive, as
// YYYY-MM-DD strings matching model.Event.EventDay's format.
type DateRange struct {
	From string
	To   string
}

// Port is the persistence boundary the catalog stage writes through and
// the admin/query surface reads through.
type Port interface {
	CreateVenue(ctx context.Context, v model.Venue) (model.Venue, error)
	CreateArtist(ctx context.Context, a model.Artist) (model.Artist, error)
	CreateEvent(ctx context.Context, e model.Event) (model.Event, error)
	UpdateEvent(ctx context.Context, e model.Event) (model.Event, error)

	GetVenueByName(ctx context.Context, nameLower string) (model.Venue, bool, error)
	GetArtistByName(ctx context.Context, nameLower string) (model.Artist, bool, error)
	GetEventByVenueDateTitle(ctx context.Context, venueID, eventDay, titleLower string) (model.Event, bool, error)

	GetVenueByID(ctx context.Context, id string) (model.Venue, error)
	GetArtistByID(ctx context.Context, id string) (model.Artist, error)
	GetEventByID(ctx context.Context, id string) (model.Event, error)

	GetAllVenues(ctx context.Context) ([]model.Venue, error)
	GetAllArtists(ctx context.Context) ([]model.Artist, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)

	GetEventsByVenueID(ctx context.Context, venueID string) ([]model.Event, error)
	GetEventsByArtistID(ctx context.Context, artistID string) ([]model.Event, error)
	GetEventsByDateRange(ctx context.Context, r DateRange) ([]model.Event, error)
	SearchArtists(ctx context.Context, query string) ([]model.Artist, error)

	CreateRawData(ctx context.Context, rd model.RawData) (model.RawData, error)
	MarkRawDataProcessed(ctx context.Context, id, linkedEventID string) error
	GetUnprocessedRawData(ctx context.Context, limit int) ([]model.RawData, error)

	CreateProcessRun(ctx context.Context, run model.ProcessRun) (model.ProcessRun, error)
	UpdateProcessRun(ctx context.Context, run model.ProcessRun) (model.ProcessRun, error)
	CreateProcessRecord(ctx context.Context, rec model.ProcessRecord) (model.ProcessRecord, error)
}

// Clock supplies CreatedAt timestamps, injectable for deterministic tests.
type Clock func() time.Time
