package enrich

import (
	"testing"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

func TestEnrich_VenueGetsGeoContext(t *testing.T) {
	e := New(Options{})
	e.now = func() time.Time { return time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC) }

	rec := model.QualityAssessedRecord{
		NormalizedRecord: model.NormalizedRecord{
			EntityType: model.EntityVenue,
			Venue:      &model.Venue{Name: "Pike Place Cafe", Latitude: 47.6097, Longitude: -122.3422},
		},
		Decision:     model.DecisionAccept,
		QualityScore: 0.95,
	}
	out := e.Enrich(rec)
	if out.City != "Seattle" {
		t.Fatalf("city = %q, want Seattle", out.City)
	}
	if out.SpatialBin == "" {
		t.Fatalf("expected a spatial bin for a venue with coordinates")
	}
	found := false
	for _, lm := range out.Geo.Landmarks {
		if lm == "Pike Place Market" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Pike Place Market as a nearby landmark, got %v", out.Geo.Landmarks)
	}
}

func TestEnrich_EventHasNoCoordinates(t *testing.T) {
	e := New(Options{})
	rec := model.QualityAssessedRecord{
		NormalizedRecord: model.NormalizedRecord{EntityType: model.EntityEvent, Event: &model.Event{Title: "Show"}},
		Decision:         model.DecisionAccept,
		QualityScore:     0.9,
	}
	out := e.Enrich(rec)
	if out.City != "" || out.District != "" || out.SpatialBin != "" {
		t.Fatalf("expected event enrichment to leave city/district/spatial_bin empty, got %+v", out)
	}
	if len(out.Warnings) == 0 {
		t.Fatalf("expected a warning for coordinate-less enrichment")
	}
}

func TestDensityForThresholds(t *testing.T) {
	cases := []struct {
		km   float64
		want string
	}{
		{4.9, "Dense"},
		{5.0, "Urban"},
		{14.9, "Urban"},
		{15.0, "Suburban"},
		{29.9, "Suburban"},
		{30.0, "Rural"},
	}
	for _, c := range cases {
		if got := densityFor(c.km); got != c.want {
			t.Errorf("densityFor(%.1f) = %q, want %q", c.km, got, c.want)
		}
	}
}

func TestTransitAccessibility_FloorsAtZero(t *testing.T) {
	if got := transitAccessibility(100, 50); got != 0 {
		t.Fatalf("transitAccessibility far beyond max should floor at 0, got %v", got)
	}
}

func TestEnrich_OutOfBoundsCoordinatesPenalized(t *testing.T) {
	e := New(Options{})
	record := func(lat, lng float64) model.QualityAssessedRecord {
		return model.QualityAssessedRecord{
			NormalizedRecord: model.NormalizedRecord{
				EntityType: model.EntityVenue,
				Venue:      &model.Venue{Name: "Somewhere", Latitude: lat, Longitude: lng},
			},
			Decision:     model.DecisionAccept,
			QualityScore: 1.0,
		}
	}

	inside := e.Enrich(record(47.6608, -122.3126))
	if inside.Confidence != 0.9 {
		t.Fatalf("in-bounds confidence = %.2f, want 0.90", inside.Confidence)
	}

	// Real coordinates, wrong city (Portland) still count as out of bounds.
	portland := e.Enrich(record(45.5231, -122.6765))
	if portland.Confidence != 0.8 {
		t.Fatalf("out-of-bounds confidence = %.2f, want 0.80", portland.Confidence)
	}

	// The (0,0) placeholder is just another out-of-bounds point.
	zero := e.Enrich(record(0, 0))
	if zero.Confidence != 0.8 {
		t.Fatalf("placeholder-coordinate confidence = %.2f, want 0.80", zero.Confidence)
	}
}
