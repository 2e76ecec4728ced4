package normalizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

// GenericCalendarNormalizer handles sources whose payload carries its own
// venue per event (aggregator feeds, GraphQL extractors), rather than one
// fixed venue. A venue record is emitted the first time each distinct venue
// slug is seen in the batch; coordinates default to the zero sentinel when
// the source doesn't supply them, which the Quality Gate's
// IncompleteGeography rule is expected to flag.
type GenericCalendarNormalizer struct {
	id         string
	strategyID string
	mu         sync.Mutex // guards seenVenues
	seenVenues map[string]struct{}
	artists    *ArtistStateManager
	now        func() time.Time
}

// NewGenericCalendarNormalizer builds a normalizer for sourceID with fresh,
// per-instance venue/artist suppression state.
func NewGenericCalendarNormalizer(sourceID, strategyID string) *GenericCalendarNormalizer {
	return &GenericCalendarNormalizer{
		id:         sourceID,
		strategyID: strategyID,
		seenVenues: make(map[string]struct{}),
		artists:    NewArtistStateManager(),
		now:        time.Now,
	}
}

func (n *GenericCalendarNormalizer) ID() string { return n.id }

func (n *GenericCalendarNormalizer) Normalize(ctx context.Context, rec model.ParsedRecord) ([]model.NormalizedRecord, error) {
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

	venueName := str(doc, "venue_name", "venue")
	if venueName == "" {
		return nil, fmt.Errorf("normalizer: %s: record at %s missing venue_name", n.id, rec.RecordPath)
	}
	venueSlug := Slugify(venueName)
	venueID := DeterministicID(venueSlug)

	var out []model.NormalizedRecord
	n.mu.Lock()
	_, seen := n.seenVenues[venueSlug]
	n.seenVenues[venueSlug] = struct{}{}
	n.mu.Unlock()
	if !seen {
		lat, hasLat := num(doc, "venue_lat", "latitude")
		lng, hasLng := num(doc, "venue_lng", "longitude")
		var warnings []string
		confidence := 0.85
		if !hasLat || !hasLng {
			warnings = append(warnings, "missing coordinates for venue "+venueName)
			confidence = 0.6
		}
		out = append(out, model.NormalizedRecord{
			EntityType: model.EntityVenue,
			Venue: &model.Venue{
				ID:        venueID,
				Name:      venueName,
				NameLower: lower(venueName),
				Slug:      venueSlug,
				Latitude:  lat,
				Longitude: lng,
				Address:   str(doc, "venue_address"),
				City:      str(doc, "venue_city"),
				ShowFlag:  true,
				CreatedAt: now,
			},
			Provenance: prov,
			Normalization: model.Normalization{
				Confidence: confidence,
				Warnings:   warnings,
				Geocoded:   hasLat && hasLng,
				StrategyID: n.strategyID,
			},
		})
	}

	title := str(doc, "title", "name", "event_name")
	if title == "" {
		return out, nil
	}
	eventDay := str(doc, "event_day", "date")

	var eventWarnings []string
	artistIDs, artistRecords := n.extractArtists(title, prov, now)
	out = append(out, artistRecords...)

	confidence := 0.9
	if eventDay == "" {
		eventWarnings = append(eventWarnings, "missing event_day")
		confidence = 0.7
	}

	out = append(out, model.NormalizedRecord{
		EntityType: model.EntityEvent,
		Event: &model.Event{
			ID:          uuid.New().String(),
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
			Warnings:   eventWarnings,
			StrategyID: n.strategyID,
		},
	})

	return out, nil
}

func (n *GenericCalendarNormalizer) extractArtists(title string, prov model.Provenance, now time.Time) ([]string, []model.NormalizedRecord) {
	if IsNonArtistEvent(title) {
		return nil, nil
	}
	headliner, supporting := ExtractArtists(title)
	names := append([]string{headliner}, supporting...)

	var ids []string
	var recs []model.NormalizedRecord
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
