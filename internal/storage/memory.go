package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

// MemStore is an in-memory Port, mutex-guarded like ingestmeta.MemStore,
// suitable for tests and single-process dry runs.
type MemStore struct {
	mu sync.Mutex

	venues  map[string]model.Venue
	artists map[string]model.Artist
	events  map[string]model.Event

	venueByName  map[string]string
	artistByName map[string]string

	rawData      map[string]model.RawData
	processRuns  map[string]model.ProcessRun
	processRecs  []model.ProcessRecord

	clock Clock
}

// NewMemStore returns an empty MemStore. A nil clock defaults to time.Now.
func NewMemStore(clock Clock) *MemStore {
	if clock == nil {
		clock = defaultClock
	}
	return &MemStore{
		venues:       make(map[string]model.Venue),
		artists:      make(map[string]model.Artist),
		events:       make(map[string]model.Event),
		venueByName:  make(map[string]string),
		artistByName: make(map[string]string),
		rawData:      make(map[string]model.RawData),
		processRuns:  make(map[string]model.ProcessRun),
		clock:        clock,
	}
}

func (s *MemStore) CreateVenue(ctx context.Context, v model.Venue) (model.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.clock()
	}
	s.venues[v.ID] = v
	s.venueByName[strings.ToLower(v.Name)] = v.ID
	return v, nil
}

func (s *MemStore) CreateArtist(ctx context.Context, a model.Artist) (model.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock()
	}
	s.artists[a.ID] = a
	s.artistByName[strings.ToLower(a.Name)] = a.ID
	return a, nil
}

func (s *MemStore) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	s.events[e.ID] = e
	return e, nil
}

func (s *MemStore) UpdateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return model.Event{}, ErrNotFound
	}
	s.events[e.ID] = e
	return e, nil
}

func (s *MemStore) GetVenueByName(ctx context.Context, nameLower string) (model.Venue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.venueByName[strings.ToLower(nameLower)]
	if !ok {
		return model.Venue{}, false, nil
	}
	return s.venues[id], true, nil
}

func (s *MemStore) GetArtistByName(ctx context.Context, nameLower string) (model.Artist, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.artistByName[strings.ToLower(nameLower)]
	if !ok {
		return model.Artist{}, false, nil
	}
	return s.artists[id], true, nil
}

func (s *MemStore) GetEventByVenueDateTitle(ctx context.Context, venueID, eventDay, titleLower string) (model.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.VenueID == venueID && e.EventDay == eventDay && strings.EqualFold(e.Title, titleLower) {
			return e, true, nil
		}
	}
	return model.Event{}, false, nil
}

func (s *MemStore) GetVenueByID(ctx context.Context, id string) (model.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[id]
	if !ok {
		return model.Venue{}, ErrNotFound
	}
	return v, nil
}

func (s *MemStore) GetArtistByID(ctx context.Context, id string) (model.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artists[id]
	if !ok {
		return model.Artist{}, ErrNotFound
	}
	return a, nil
}

func (s *MemStore) GetEventByID(ctx context.Context, id string) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return e, nil
}

func (s *MemStore) GetAllVenues(ctx context.Context) ([]model.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Venue, 0, len(s.venues))
	for _, v := range s.venues {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetAllArtists(ctx context.Context) ([]model.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Artist, 0, len(s.artists))
	for _, a := range s.artists {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetEventsByVenueID(ctx context.Context, venueID string) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, e := range s.events {
		if e.VenueID == venueID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDay < out[j].EventDay })
	return out, nil
}

func (s *MemStore) GetEventsByArtistID(ctx context.Context, artistID string) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, e := range s.events {
		for _, id := range e.ArtistIDs {
			if id == artistID {
				out = append(out, e)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDay < out[j].EventDay })
	return out, nil
}

func (s *MemStore) GetEventsByDateRange(ctx context.Context, r DateRange) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, e := range s.events {
		if e.EventDay >= r.From && e.EventDay <= r.To {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDay < out[j].EventDay })
	return out, nil
}

func (s *MemStore) SearchArtists(ctx context.Context, query string) ([]model.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(query))
	var out []model.Artist
	for _, a := range s.artists {
		if strings.Contains(strings.ToLower(a.Name), q) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) CreateRawData(ctx context.Context, rd model.RawData) (model.RawData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rd.ID == "" {
		rd.ID = uuid.NewString()
	}
	if rd.CreatedAt.IsZero() {
		rd.CreatedAt = s.clock()
	}
	s.rawData[rd.ID] = rd
	return rd, nil
}

func (s *MemStore) MarkRawDataProcessed(ctx context.Context, id, linkedEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rawData[id]
	if !ok {
		return ErrNotFound
	}
	rd.Processed = true
	rd.LinkedEventID = linkedEventID
	s.rawData[id] = rd
	return nil
}

func (s *MemStore) GetUnprocessedRawData(ctx context.Context, limit int) ([]model.RawData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RawData
	for _, rd := range s.rawData {
		if !rd.Processed {
			out = append(out, rd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) CreateProcessRun(ctx context.Context, run model.ProcessRun) (model.ProcessRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.clock()
	}
	s.processRuns[run.ID] = run
	return run, nil
}

func (s *MemStore) UpdateProcessRun(ctx context.Context, run model.ProcessRun) (model.ProcessRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processRuns[run.ID]; !ok {
		return model.ProcessRun{}, ErrNotFound
	}
	s.processRuns[run.ID] = run
	return run, nil
}

func (s *MemStore) CreateProcessRecord(ctx context.Context, rec model.ProcessRecord) (model.ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	s.processRecs = append(s.processRecs, rec)
	return rec, nil
}

func defaultClock() time.Time { return time.Now() }
