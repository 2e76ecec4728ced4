package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
	"github.com/nspilman/sms-venue-pipeline/internal/storage"
)

func conflatedVenue(name string, lat, lng float64) model.ConflatedRecord {
	return model.ConflatedRecord{
		EnrichedRecord: model.EnrichedRecord{
			QualityAssessedRecord: model.QualityAssessedRecord{
				NormalizedRecord: model.NormalizedRecord{
					EntityType: model.EntityVenue,
					Venue:      &model.Venue{Name: name, Latitude: lat, Longitude: lng},
					Provenance: model.Provenance{SourceID: "src-1"},
				},
			},
		},
		CanonicalEntityID:   "venue-canonical-1",
		CanonicalEntityType: model.EntityVenue,
	}
}

func conflatedEvent(title, day, venueID string) model.ConflatedRecord {
	return model.ConflatedRecord{
		EnrichedRecord: model.EnrichedRecord{
			QualityAssessedRecord: model.QualityAssessedRecord{
				NormalizedRecord: model.NormalizedRecord{
					EntityType: model.EntityEvent,
					Event:      &model.Event{Title: title, EventDay: day, VenueID: venueID},
					Provenance: model.Provenance{SourceID: "src-1"},
				},
			},
		},
		CanonicalEntityID:   "event-canonical-1",
		CanonicalEntityType: model.EntityEvent,
	}
}

func newTestCatalog(t *testing.T) (*Catalog, storage.Port) {
	t.Helper()
	tick := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	store := storage.NewMemStore(func() time.Time { tick = tick.Add(time.Second); return tick })
	cat := New(DefaultRegistry(), store, func() time.Time { tick = tick.Add(time.Second); return tick }, nil)
	return cat, store
}

func TestCatalog_NewVenueCreates(t *testing.T) {
	ctx := context.Background()
	cat, store := newTestCatalog(t)

	if _, err := cat.StartRun(ctx, "test-run"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	records, err := cat.Catalog(ctx, conflatedVenue("Blue Moon Tavern", 47.6615, -122.3128))
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(records) != 1 || records[0].ChangeKind != model.ChangeCreate {
		t.Fatalf("records = %+v, want one CREATE", records)
	}
	if _, err := cat.FinishRun(ctx); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	venues, err := store.GetAllVenues(ctx)
	if err != nil || len(venues) != 1 {
		t.Fatalf("venues = %v, err = %v", venues, err)
	}
}

func TestCatalog_DuplicateVenueIsNoChange(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)
	if _, err := cat.StartRun(ctx, "run"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := cat.Catalog(ctx, conflatedVenue("Blue Moon Tavern", 47.6615, -122.3128)); err != nil {
		t.Fatalf("first Catalog: %v", err)
	}
	records, err := cat.Catalog(ctx, conflatedVenue("Blue Moon Tavern", 47.6615, -122.3128))
	if err != nil {
		t.Fatalf("second Catalog: %v", err)
	}
	if len(records) != 1 || records[0].ChangeKind != model.ChangeNoChange {
		t.Fatalf("records = %+v, want one NO_CHANGE", records)
	}
}

func TestCatalog_EventUpdateWhenFieldsDiffer(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)
	if _, err := cat.StartRun(ctx, "run"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := cat.Catalog(ctx, conflatedEvent("Friday Jazz", "2025-09-12", "venue-1")); err != nil {
		t.Fatalf("first Catalog: %v", err)
	}

	updated := conflatedEvent("Friday Jazz", "2025-09-12", "venue-1")
	updated.Event.StartTime = "21:00"
	records, err := cat.Catalog(ctx, updated)
	if err != nil {
		t.Fatalf("second Catalog: %v", err)
	}
	if len(records) != 1 || records[0].ChangeKind != model.ChangeUpdate {
		t.Fatalf("records = %+v, want one UPDATE", records)
	}
}

func TestCatalog_AdHocRunWhenNoneStarted(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t)
	var warned bool
	cat.onWarn = func(string) { warned = true }

	records, err := cat.Catalog(ctx, conflatedVenue("The Crocodile", 47.6114, -122.3429))
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	if !warned {
		t.Fatalf("expected a warning for ad-hoc run")
	}
}
