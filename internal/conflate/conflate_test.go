package conflate

import (
	"testing"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

func venueRecord(name string, lat, lng float64, addr string) model.EnrichedRecord {
	return model.EnrichedRecord{
		QualityAssessedRecord: model.QualityAssessedRecord{
			NormalizedRecord: model.NormalizedRecord{
				EntityType: model.EntityVenue,
				Venue:      &model.Venue{Name: name, Latitude: lat, Longitude: lng, Address: addr},
				Provenance: model.Provenance{SourceID: "src-1"},
			},
			Decision:     model.DecisionAccept,
			QualityScore: 0.95,
		},
	}
}

func TestConflate_NewVenueIsNewEntity(t *testing.T) {
	c := New(Options{})
	out := c.Conflate(venueRecord("Blue Moon Tavern", 47.6615, -122.3128, "712 NE 45th St"))
	if out.Conflation.Decision != model.ResolutionNewEntity {
		t.Fatalf("decision = %s, want NewEntity", out.Conflation.Decision)
	}
	if out.CanonicalEntityID == "" {
		t.Fatalf("expected a canonical entity id to be minted")
	}
}

// TestConflate_ReflexivePlayback feeds the Conflator's own output back in
// and expects a MatchedExisting resolution at or above the default
// confidence threshold.
func TestConflate_ReflexivePlayback(t *testing.T) {
	c := New(Options{})
	first := c.Conflate(venueRecord("Blue Moon Tavern", 47.6615, -122.3128, "712 NE 45th St"))

	replay := venueRecord("Blue Moon Tavern", 47.6615, -122.3128, "712 NE 45th St")
	second := c.Conflate(replay)

	if second.Conflation.Decision != model.ResolutionMatchedExisting {
		t.Fatalf("decision = %s, want MatchedExisting", second.Conflation.Decision)
	}
	if second.Conflation.Confidence < c.opts.MinConfidenceThreshold {
		t.Fatalf("confidence %.2f below threshold %.2f", second.Conflation.Confidence, c.opts.MinConfidenceThreshold)
	}
	if second.CanonicalEntityID != first.CanonicalEntityID {
		t.Fatalf("expected replay to resolve to the same canonical id")
	}
}

func TestConflate_NearIdenticalVenuesMatch(t *testing.T) {
	c := New(Options{})
	first := c.Conflate(venueRecord("Blue Moon Tavern", 47.66150, -122.31280, "712 NE 45th St"))
	second := c.Conflate(venueRecord("Blue Moon Tavern", 47.66151, -122.31281, "712 NE 45th St"))

	if second.Conflation.Decision != model.ResolutionMatchedExisting {
		t.Fatalf("decision = %s, want MatchedExisting", second.Conflation.Decision)
	}
	if second.Conflation.Confidence < 0.8 {
		t.Fatalf("confidence %.2f below 0.8", second.Conflation.Confidence)
	}
	if second.CanonicalEntityID != first.CanonicalEntityID {
		t.Fatalf("expected near-identical venues to resolve to the same canonical id")
	}
}

func TestConflate_DistinctVenuesDoNotMatch(t *testing.T) {
	c := New(Options{})
	c.Conflate(venueRecord("Blue Moon Tavern", 47.6615, -122.3128, "712 NE 45th St"))
	other := c.Conflate(venueRecord("The Crocodile", 47.6114, -122.3429, "2200 2nd Ave"))

	if other.Conflation.Decision != model.ResolutionNewEntity {
		t.Fatalf("decision = %s, want NewEntity for an unrelated venue", other.Conflation.Decision)
	}
}

func TestJaccard_Properties(t *testing.T) {
	a := tokenize("blue moon tavern")
	b := tokenize("blue moon tavern")
	if got := jaccard(a, b); got != 1 {
		t.Fatalf("jaccard of identical token sets = %v, want 1", got)
	}

	c := tokenize("completely different name")
	if got := jaccard(a, c); got != 0 {
		t.Fatalf("jaccard of disjoint token sets = %v, want 0", got)
	}

	empty := tokenize("")
	if got := jaccard(empty, empty); got != 1 {
		t.Fatalf("jaccard of two empty sets = %v, want 1", got)
	}
}

func TestArtistSimilarity_CaseInsensitive(t *testing.T) {
	a := &model.Artist{Name: "The Sonics"}
	b := &model.Artist{Name: "the sonics"}
	if got := artistSimilarity(a, b); got != 1 {
		t.Fatalf("artistSimilarity case-insensitive match = %v, want 1", got)
	}
}

func TestEventSimilarity_SameVenueAndDayHighScore(t *testing.T) {
	a := &model.Event{Title: "Friday Night Jazz", EventDay: "2025-09-12", StartTime: "20:00", VenueID: "v1"}
	b := &model.Event{Title: "Friday Night Jazz", EventDay: "2025-09-12", StartTime: "20:00", VenueID: "v1"}
	opts := Options{}.WithDefaults()
	if got := eventSimilarity(a, b, opts); got < 0.9 {
		t.Fatalf("eventSimilarity for identical events = %v, want >= 0.9", got)
	}
}

func TestSignature_DeterministicAcrossFieldOrder(t *testing.T) {
	v := canonicalEntity{entityType: model.EntityVenue, venue: &model.Venue{Name: "Neumos", City: "Seattle", PostalCode: "98122", Latitude: 47.614, Longitude: -122.316}}
	s1 := signature(v)
	s2 := signature(v)
	if s1 != s2 || s1 == "" {
		t.Fatalf("expected stable non-empty signature, got %q and %q", s1, s2)
	}
}

// TestConflate_MatchesNearbyVenueWithoutAddresses covers the common case
// where neither record carries a street address: address similarity treats
// two empty addresses as identical, so near-identical name+coords still
// clear the match threshold.
func TestConflate_MatchesNearbyVenueWithoutAddresses(t *testing.T) {
	c := New(Options{})
	first := c.Conflate(venueRecord("Blue Moon Tavern", 47.6608, -122.3126, ""))
	second := c.Conflate(venueRecord("Blue Moon Tavern", 47.6609, -122.3127, ""))

	if second.Conflation.Decision != model.ResolutionMatchedExisting {
		t.Fatalf("decision = %s, want MatchedExisting", second.Conflation.Decision)
	}
	if second.Conflation.Confidence < 0.8 {
		t.Fatalf("confidence %.3f, want >= 0.8", second.Conflation.Confidence)
	}
	if second.CanonicalEntityID != first.CanonicalEntityID {
		t.Fatal("expected both records to resolve to one canonical venue")
	}
}

func TestTextSimilarity_EmptyHandling(t *testing.T) {
	if got := textSimilarity("", ""); got != 1 {
		t.Fatalf("textSimilarity(empty, empty) = %.2f, want 1", got)
	}
	if got := textSimilarity("712 NE 45th St", ""); got != 0 {
		t.Fatalf("textSimilarity(non-empty, empty) = %.2f, want 0", got)
	}
	if got := textSimilarity("712 NE 45th St", "712 NE 45th St"); got != 1 {
		t.Fatalf("textSimilarity(identical) = %.2f, want 1", got)
	}
}
