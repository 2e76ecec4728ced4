package normalizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

// VenueProfile is the fixed venue description a FixedVenueNormalizer stamps
// onto the one Venue record it ever emits for its source.
type VenueProfile struct {
	Name         string
	Address      string
	PostalCode   string
	City         string
	Latitude     float64
	Longitude    float64
	URL          string
	Neighborhood string
}

// FixedVenueNormalizer handles sources that only ever describe shows at one
// known venue (e.g. a venue's own calendar feed): every ParsedRecord is an
// event at VenueProfile. It emits the venue record exactly once per
// instance and deduplicates artists by slug across the batch.
type FixedVenueNormalizer struct {
	id         string
	strategyID string
	venue      VenueProfile
	venueState *VenueStateManager
	artists    *ArtistStateManager
	now        func() time.Time
}

// NewFixedVenueNormalizer builds a normalizer for sourceID/strategyID bound
// to one VenueProfile, with fresh per-instance suppression state.
func NewFixedVenueNormalizer(sourceID, strategyID string, venue VenueProfile) *FixedVenueNormalizer {
	return &FixedVenueNormalizer{
		id:         sourceID,
		strategyID: strategyID,
		venue:      venue,
		venueState: &VenueStateManager{},
		artists:    NewArtistStateManager(),
		now:        time.Now,
	}
}

func (n *FixedVenueNormalizer) ID() string { return n.id }

func (n *FixedVenueNormalizer) venueID() string {
	return DeterministicID(Slugify(n.venue.Name))
}

func (n *FixedVenueNormalizer) Normalize(ctx context.Context, rec model.ParsedRecord) ([]model.NormalizedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := decode(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("normalizer: %s: decode: %w", n.id, err)
	}

	now := n.now().UTC()
	prov := model.Provenance{
		EnvelopeID:   rec.EnvelopeID,
		SourceID:     rec.SourceID,
		PayloadRef:   rec.PayloadRef,
		RecordPath:   rec.RecordPath,
		NormalizedAt: now,
	}

	var out []model.NormalizedRecord
	venueID := n.venueID()

	if n.venueState.ShouldEmit() {
		out = append(out, model.NormalizedRecord{
			EntityType: model.EntityVenue,
			Venue: &model.Venue{
				ID:           venueID,
				Name:         n.venue.Name,
				NameLower:    lower(n.venue.Name),
				Slug:         Slugify(n.venue.Name),
				Latitude:     n.venue.Latitude,
				Longitude:    n.venue.Longitude,
				Address:      n.venue.Address,
				PostalCode:   n.venue.PostalCode,
				City:         n.venue.City,
				URL:          n.venue.URL,
				Neighborhood: n.venue.Neighborhood,
				ShowFlag:     true,
				CreatedAt:    now,
			},
			Provenance: prov,
			Normalization: model.Normalization{
				Confidence: 1.0,
				Geocoded:   n.venue.Latitude != 0 || n.venue.Longitude != 0,
				StrategyID: n.strategyID,
			},
		})
	}

	title := str(doc, "title", "name", "event_name")
	if title == "" {
		return out, nil
	}
	eventDay := str(doc, "event_day", "date")

	var warnings []string
	artistIDs, artistRecords := n.extractArtists(title, prov)
	out = append(out, artistRecords...)

	eventID := uuid.New().String()
	confidence := 0.9
	if eventDay == "" {
		warnings = append(warnings, "missing event_day")
		confidence = 0.7
	}

	out = append(out, model.NormalizedRecord{
		EntityType: model.EntityEvent,
		Event: &model.Event{
			ID:          eventID,
			Title:       title,
			EventDay:    eventDay,
			StartTime:   str(doc, "start_time", "time"),
			URL:         str(doc, "url", "link"),
			Description: str(doc, "description"),
			ImageURL:    str(doc, "image_url", "image"),
			VenueID:     venueID,
			ArtistIDs:   artistIDs,
			ShowFlag:    true,
			CreatedAt:   now,
		},
		Provenance: prov,
		Normalization: model.Normalization{
			Confidence: confidence,
			Warnings:   warnings,
			StrategyID: n.strategyID,
		},
	})

	return out, nil
}

// extractArtists applies the common headliner/supporting-artist billing
// rule, skipping known non-artist event titles, and returns artist ids to
// attach to the event plus any newly emitted (not-yet-suppressed) artist
// NormalizedRecords.
func (n *FixedVenueNormalizer) extractArtists(title string, prov model.Provenance) ([]string, []model.NormalizedRecord) {
	if IsNonArtistEvent(title) {
		return nil, nil
	}
	headliner, supporting := ExtractArtists(title)
	names := append([]string{headliner}, supporting...)

	var ids []string
	var recs []model.NormalizedRecord
	now := n.now().UTC()
	for _, name := range names {
		if name == "" {
			continue
		}
		slug := Slugify(name)
		if slug == "" {
			continue
		}
		id := DeterministicID(slug)
		ids = append(ids, id)
		if !n.artists.ShouldEmit(slug) {
			continue
		}
		recs = append(recs, model.NormalizedRecord{
			EntityType: model.EntityArtist,
			Artist: &model.Artist{
				ID:        id,
				Name:      name,
				Slug:      slug,
				CreatedAt: now,
			},
			Provenance: prov,
			Normalization: model.Normalization{
				Confidence: 0.85,
				StrategyID: n.strategyID,
			},
		})
	}
	return ids, recs
}

func lower(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, r)
	}
	return string(out)
}
