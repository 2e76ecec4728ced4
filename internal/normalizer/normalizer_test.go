package normalizer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

func mustRecord(t *testing.T, sourceID, path string, v map[string]any) model.ParsedRecord {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return model.ParsedRecord{
		SourceID:   sourceID,
		EnvelopeID: "env-1",
		PayloadRef: "cas:sha256:" + string(make([]byte, 0)),
		RecordPath: path,
		Value:      b,
	}
}

func TestFixedVenueNormalizer_EmitsVenueOnce(t *testing.T) {
	n := NewFixedVenueNormalizer("blue_moon", "blue_moon_event", VenueProfile{
		Name: "Blue Moon Tavern", Latitude: 47.6608, Longitude: -122.3126,
	})
	ctx := context.Background()

	recs1, err := n.Normalize(ctx, mustRecord(t, "blue_moon", "events[0]", map[string]any{
		"title": "Open Mic", "event_day": "2025-08-15",
	}))
	if err != nil {
		t.Fatalf("normalize 1: %v", err)
	}
	recs2, err := n.Normalize(ctx, mustRecord(t, "blue_moon", "events[1]", map[string]any{
		"title": "The Shins with Openers", "event_day": "2025-08-16",
	}))
	if err != nil {
		t.Fatalf("normalize 2: %v", err)
	}

	venueCount := 0
	for _, r := range append(recs1, recs2...) {
		if r.EntityType == model.EntityVenue {
			venueCount++
		}
	}
	if venueCount != 1 {
		t.Fatalf("expected exactly one venue record across both calls, got %d", venueCount)
	}
}

func TestFixedVenueNormalizer_SkipsNonArtistEvents(t *testing.T) {
	n := NewFixedVenueNormalizer("blue_moon", "blue_moon_event", VenueProfile{Name: "Blue Moon Tavern"})
	recs, err := n.Normalize(context.Background(), mustRecord(t, "blue_moon", "events[0]", map[string]any{
		"title": "Weekly Trivia Night", "event_day": "2025-08-15",
	}))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	for _, r := range recs {
		if r.EntityType == model.EntityArtist {
			t.Fatalf("did not expect an artist record for a trivia night")
		}
	}
}

func TestFixedVenueNormalizer_ArtistDedupeAcrossBatch(t *testing.T) {
	n := NewFixedVenueNormalizer("blue_moon", "blue_moon_event", VenueProfile{Name: "Blue Moon Tavern"})
	ctx := context.Background()

	_, err := n.Normalize(ctx, mustRecord(t, "blue_moon", "events[0]", map[string]any{
		"title": "Big Band", "event_day": "2025-08-15",
	}))
	if err != nil {
		t.Fatalf("normalize 1: %v", err)
	}
	recs, err := n.Normalize(ctx, mustRecord(t, "blue_moon", "events[1]", map[string]any{
		"title": "Big Band", "event_day": "2025-08-22",
	}))
	if err != nil {
		t.Fatalf("normalize 2: %v", err)
	}
	for _, r := range recs {
		if r.EntityType == model.EntityArtist {
			t.Fatalf("expected the repeat Big Band booking to suppress the duplicate artist emission")
		}
	}
}

func TestExtractArtists_HeadlinerWithSupporting(t *testing.T) {
	headliner, supporting := ExtractArtists("The Shins with Big Thief & Waxahatchee")
	if headliner != "The Shins" {
		t.Fatalf("headliner = %q, want %q", headliner, "The Shins")
	}
	if len(supporting) != 2 || supporting[0] != "Big Thief" || supporting[1] != "Waxahatchee" {
		t.Fatalf("supporting = %v", supporting)
	}
}

func TestDeterministicID_StableAcrossRuns(t *testing.T) {
	a := DeterministicID(Slugify("Blue Moon Tavern"))
	b := DeterministicID(Slugify("blue moon tavern"))
	if a != b {
		t.Fatalf("expected deterministic id to be stable under slug normalization: %s != %s", a, b)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Blue Moon Tavern":  "blue-moon-tavern",
		"  Trim Me  ":       "trim-me",
		"A & B -- C":        "a-b-c",
		"---leading-trail-": "leading-trail",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenericCalendarNormalizer_RequiresVenueName(t *testing.T) {
	n := NewGenericCalendarNormalizer("aggregator", "generic_calendar")
	_, err := n.Normalize(context.Background(), mustRecord(t, "aggregator", "$[0]", map[string]any{
		"title": "Some Show",
	}))
	if err == nil {
		t.Fatalf("expected error when venue_name is missing")
	}
}

func TestGenericCalendarNormalizer_MultipleVenuesDistinctIDs(t *testing.T) {
	n := NewGenericCalendarNormalizer("aggregator", "generic_calendar")
	ctx := context.Background()

	recs1, err := n.Normalize(ctx, mustRecord(t, "aggregator", "$[0]", map[string]any{
		"title": "Show A", "event_day": "2025-08-15", "venue_name": "Venue A",
		"venue_lat": 47.6, "venue_lng": -122.3,
	}))
	if err != nil {
		t.Fatalf("normalize 1: %v", err)
	}
	recs2, err := n.Normalize(ctx, mustRecord(t, "aggregator", "$[1]", map[string]any{
		"title": "Show B", "event_day": "2025-08-16", "venue_name": "Venue B",
		"venue_lat": 47.7, "venue_lng": -122.4,
	}))
	if err != nil {
		t.Fatalf("normalize 2: %v", err)
	}

	var venueIDs []string
	for _, r := range append(recs1, recs2...) {
		if r.EntityType == model.EntityVenue {
			venueIDs = append(venueIDs, r.Venue.ID)
		}
	}
	if len(venueIDs) != 2 || venueIDs[0] == venueIDs[1] {
		t.Fatalf("expected two distinct venue ids, got %v", venueIDs)
	}
}

func TestRegistry_GetNormalizerFreshInstancePerCall(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("blue_moon", func() Normalizer {
		return NewFixedVenueNormalizer("blue_moon", "blue_moon_event", VenueProfile{Name: "Blue Moon Tavern"})
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	n1, err := reg.GetNormalizer("blue_moon")
	if err != nil {
		t.Fatalf("get 1: %v", err)
	}
	n2, err := reg.GetNormalizer("blue_moon")
	if err != nil {
		t.Fatalf("get 2: %v", err)
	}
	if n1 == n2 {
		t.Fatalf("expected distinct normalizer instances per GetNormalizer call")
	}

	if _, err := reg.GetNormalizer("unknown_source"); err == nil {
		t.Fatalf("expected ErrNotFound for unregistered source")
	}
}
