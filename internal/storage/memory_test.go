package storage

import (
	"context"
	"testing"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

func TestMemStore_CreateAndGetVenueByName(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(func() time.Time { return time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC) })

	v, err := s.CreateVenue(ctx, model.Venue{Name: "Neumos"})
	if err != nil {
		t.Fatalf("CreateVenue: %v", err)
	}
	if v.ID == "" {
		t.Fatalf("expected a generated id")
	}

	got, ok, err := s.GetVenueByName(ctx, "NEUMOS")
	if err != nil || !ok {
		t.Fatalf("GetVenueByName: ok=%v err=%v", ok, err)
	}
	if got.ID != v.ID {
		t.Fatalf("got id %s, want %s", got.ID, v.ID)
	}
}

func TestMemStore_UpdateEventNotFound(t *testing.T) {
	s := NewMemStore(nil)
	_, err := s.UpdateEvent(context.Background(), model.Event{ID: "missing"})
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_GetUnprocessedRawDataRespectsLimit(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemStore(func() time.Time { tick = tick.Add(time.Minute); return tick })

	for i := 0; i < 5; i++ {
		if _, err := s.CreateRawData(ctx, model.RawData{SourceID: "src", ExternalID: "e"}); err != nil {
			t.Fatalf("CreateRawData: %v", err)
		}
	}
	out, err := s.GetUnprocessedRawData(ctx, 3)
	if err != nil {
		t.Fatalf("GetUnprocessedRawData: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
}

func TestMemStore_EventsByArtistID(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(nil)
	e1, _ := s.CreateEvent(ctx, model.Event{Title: "Show A", ArtistIDs: []string{"a1", "a2"}})
	_, _ = s.CreateEvent(ctx, model.Event{Title: "Show B", ArtistIDs: []string{"a3"}})

	out, err := s.GetEventsByArtistID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetEventsByArtistID: %v", err)
	}
	if len(out) != 1 || out[0].ID != e1.ID {
		t.Fatalf("expected only event %s, got %v", e1.ID, out)
	}
}

func TestMemStore_SearchArtistsCaseInsensitiveSubstring(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(nil)
	if _, err := s.CreateArtist(ctx, model.Artist{Name: "The Sonics"}); err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}
	out, err := s.SearchArtists(ctx, "sonic")
	if err != nil {
		t.Fatalf("SearchArtists: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
}
