package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
	"github.com/nspilman/sms-venue-pipeline/internal/storage"
)

// VenueHandler maps ConflatedRecords carrying a Venue onto the Storage
// Port. Venues have no update path: a detected difference against the
// stored record is surfaced as a NO_CHANGE-kind audit with the diff in the
// change log rather than mutating the canonical row.
type VenueHandler struct{}

func (VenueHandler) CanHandle(rec model.ConflatedRecord) bool {
	return rec.CanonicalEntityType == model.EntityVenue && rec.Venue != nil
}

func (VenueHandler) PrepareCandidate(ctx context.Context, rec model.ConflatedRecord, store storage.Port) (CatalogCandidate, error) {
	v := *rec.Venue
	v.ID = rec.CanonicalEntityID
	v.NameLower = strings.ToLower(v.Name)

	existing, ok, err := store.GetVenueByName(ctx, v.NameLower)
	if err != nil {
		return CatalogCandidate{}, fmt.Errorf("catalog: lookup venue by name: %w", err)
	}
	if !ok {
		return CatalogCandidate{EntityType: model.EntityVenue, Venue: &v, Changes: ChangeSet{IsNew: true}, ShouldPersist: true}, nil
	}

	v.ID = existing.ID
	v.CreatedAt = existing.CreatedAt
	changes := diffVenue(existing, v)
	return CatalogCandidate{
		EntityType:    model.EntityVenue,
		Venue:         &v,
		ExistingID:    existing.ID,
		Changes:       ChangeSet{IsNew: false, FieldsChanged: changes},
		ShouldPersist: true,
	}, nil
}

func (VenueHandler) PersistCandidate(ctx context.Context, cand CatalogCandidate, store storage.Port) (bool, error) {
	if !cand.ShouldPersist || cand.Venue == nil {
		return false, nil
	}
	if cand.Changes.IsNew {
		if _, err := store.CreateVenue(ctx, *cand.Venue); err != nil {
			return false, fmt.Errorf("catalog: create venue: %w", err)
		}
		return true, nil
	}
	// Existing venues are append-only canonical records: no update path.
	return false, nil
}

func (VenueHandler) GenerateProcessRecords(rec model.ConflatedRecord, cand CatalogCandidate, run model.ProcessRun, now time.Time) []model.ProcessRecord {
	kind := model.ChangeNoChange
	log := "venue unchanged"
	if cand.Changes.IsNew {
		kind = model.ChangeCreate
		log = "new venue created"
	} else if len(cand.Changes.FieldsChanged) > 0 {
		log = "venue fields differ from stored record; no update path, recorded for review"
	}
	return []model.ProcessRecord{{
		SourceID:      rec.Provenance.SourceID,
		ChangeKind:    kind,
		ChangeLog:     log,
		FieldsChanged: cand.Changes.fieldsChangedString(),
		VenueID:       cand.ExistingOrNewID(),
		CreatedAt:     now,
	}}
}

// EventHandler maps ConflatedRecords carrying an Event onto the Storage
// Port, with a real update path.
type EventHandler struct{}

func (EventHandler) CanHandle(rec model.ConflatedRecord) bool {
	return rec.CanonicalEntityType == model.EntityEvent && rec.Event != nil
}

func (EventHandler) PrepareCandidate(ctx context.Context, rec model.ConflatedRecord, store storage.Port) (CatalogCandidate, error) {
	e := *rec.Event
	e.ID = rec.CanonicalEntityID

	existing, ok, err := store.GetEventByVenueDateTitle(ctx, e.VenueID, e.EventDay, strings.ToLower(e.Title))
	if err != nil {
		return CatalogCandidate{}, fmt.Errorf("catalog: lookup event: %w", err)
	}
	if !ok {
		return CatalogCandidate{EntityType: model.EntityEvent, Event: &e, Changes: ChangeSet{IsNew: true}, ShouldPersist: true}, nil
	}

	e.ID = existing.ID
	e.CreatedAt = existing.CreatedAt
	changes := diffEvent(existing, e)
	return CatalogCandidate{
		EntityType:    model.EntityEvent,
		Event:         &e,
		ExistingID:    existing.ID,
		Changes:       ChangeSet{IsNew: false, FieldsChanged: changes},
		ShouldPersist: true,
	}, nil
}

func (EventHandler) PersistCandidate(ctx context.Context, cand CatalogCandidate, store storage.Port) (bool, error) {
	if !cand.ShouldPersist || cand.Event == nil {
		return false, nil
	}
	if cand.Changes.IsNew {
		if _, err := store.CreateEvent(ctx, *cand.Event); err != nil {
			return false, fmt.Errorf("catalog: create event: %w", err)
		}
		return true, nil
	}
	if len(cand.Changes.FieldsChanged) == 0 {
		return false, nil
	}
	if _, err := store.UpdateEvent(ctx, *cand.Event); err != nil {
		return false, fmt.Errorf("catalog: update event: %w", err)
	}
	return true, nil
}

func (EventHandler) GenerateProcessRecords(rec model.ConflatedRecord, cand CatalogCandidate, run model.ProcessRun, now time.Time) []model.ProcessRecord {
	kind := model.ChangeNoChange
	log := "event unchanged"
	if cand.Changes.IsNew {
		kind = model.ChangeCreate
		log = "new event created"
	} else if len(cand.Changes.FieldsChanged) > 0 {
		kind = model.ChangeUpdate
		log = "event fields updated"
	}
	return []model.ProcessRecord{{
		SourceID:      rec.Provenance.SourceID,
		ChangeKind:    kind,
		ChangeLog:     log,
		FieldsChanged: cand.Changes.fieldsChangedString(),
		EventID:       cand.ExistingOrNewID(),
		CreatedAt:     now,
	}}
}

// ArtistHandler maps ConflatedRecords carrying an Artist onto the Storage
// Port. Like venues, artists have no update path.
type ArtistHandler struct{}

func (ArtistHandler) CanHandle(rec model.ConflatedRecord) bool {
	return rec.CanonicalEntityType == model.EntityArtist && rec.Artist != nil
}

func (ArtistHandler) PrepareCandidate(ctx context.Context, rec model.ConflatedRecord, store storage.Port) (CatalogCandidate, error) {
	a := *rec.Artist
	a.ID = rec.CanonicalEntityID

	existing, ok, err := store.GetArtistByName(ctx, strings.ToLower(a.Name))
	if err != nil {
		return CatalogCandidate{}, fmt.Errorf("catalog: lookup artist by name: %w", err)
	}
	if !ok {
		return CatalogCandidate{EntityType: model.EntityArtist, Artist: &a, Changes: ChangeSet{IsNew: true}, ShouldPersist: true}, nil
	}

	a.ID = existing.ID
	a.CreatedAt = existing.CreatedAt
	changes := diffArtist(existing, a)
	return CatalogCandidate{
		EntityType:    model.EntityArtist,
		Artist:        &a,
		ExistingID:    existing.ID,
		Changes:       ChangeSet{IsNew: false, FieldsChanged: changes},
		ShouldPersist: true,
	}, nil
}

func (ArtistHandler) PersistCandidate(ctx context.Context, cand CatalogCandidate, store storage.Port) (bool, error) {
	if !cand.ShouldPersist || cand.Artist == nil {
		return false, nil
	}
	if cand.Changes.IsNew {
		if _, err := store.CreateArtist(ctx, *cand.Artist); err != nil {
			return false, fmt.Errorf("catalog: create artist: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (ArtistHandler) GenerateProcessRecords(rec model.ConflatedRecord, cand CatalogCandidate, run model.ProcessRun, now time.Time) []model.ProcessRecord {
	kind := model.ChangeNoChange
	log := "artist unchanged"
	if cand.Changes.IsNew {
		kind = model.ChangeCreate
		log = "new artist created"
	} else if len(cand.Changes.FieldsChanged) > 0 {
		log = "artist fields differ from stored record; no update path, recorded for review"
	}
	return []model.ProcessRecord{{
		SourceID:      rec.Provenance.SourceID,
		ChangeKind:    kind,
		ChangeLog:     log,
		FieldsChanged: cand.Changes.fieldsChangedString(),
		ArtistID:      cand.ExistingOrNewID(),
		CreatedAt:     now,
	}}
}

// ExistingOrNewID returns the id a candidate resolved to, whichever of
// Venue/Event/Artist is populated.
func (c CatalogCandidate) ExistingOrNewID() string {
	if c.ExistingID != "" {
		return c.ExistingID
	}
	switch {
	case c.Venue != nil:
		return c.Venue.ID
	case c.Event != nil:
		return c.Event.ID
	case c.Artist != nil:
		return c.Artist.ID
	}
	return ""
}

func diffVenue(a, b model.Venue) []string {
	var changed []string
	if a.Name != b.Name {
		changed = append(changed, "name")
	}
	if a.Latitude != b.Latitude {
		changed = append(changed, "latitude")
	}
	if a.Longitude != b.Longitude {
		changed = append(changed, "longitude")
	}
	if a.Address != b.Address {
		changed = append(changed, "address")
	}
	if a.PostalCode != b.PostalCode {
		changed = append(changed, "postal_code")
	}
	if a.City != b.City {
		changed = append(changed, "city")
	}
	if a.URL != b.URL {
		changed = append(changed, "url")
	}
	if a.ImageURL != b.ImageURL {
		changed = append(changed, "image_url")
	}
	if a.Description != b.Description {
		changed = append(changed, "description")
	}
	if a.Neighborhood != b.Neighborhood {
		changed = append(changed, "neighborhood")
	}
	if a.ShowFlag != b.ShowFlag {
		changed = append(changed, "show_flag")
	}
	return changed
}

func diffEvent(a, b model.Event) []string {
	var changed []string
	if a.Title != b.Title {
		changed = append(changed, "title")
	}
	if a.StartTime != b.StartTime {
		changed = append(changed, "start_time")
	}
	if a.URL != b.URL {
		changed = append(changed, "url")
	}
	if a.Description != b.Description {
		changed = append(changed, "description")
	}
	if a.ImageURL != b.ImageURL {
		changed = append(changed, "image_url")
	}
	if !stringSliceEqual(a.ArtistIDs, b.ArtistIDs) {
		changed = append(changed, "artist_ids")
	}
	if a.ShowFlag != b.ShowFlag {
		changed = append(changed, "show_flag")
	}
	if a.Finalized != b.Finalized {
		changed = append(changed, "finalized")
	}
	return changed
}

func diffArtist(a, b model.Artist) []string {
	var changed []string
	if a.Name != b.Name {
		changed = append(changed, "name")
	}
	if a.Bio != b.Bio {
		changed = append(changed, "bio")
	}
	if a.ImageURL != b.ImageURL {
		changed = append(changed, "image_url")
	}
	return changed
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
