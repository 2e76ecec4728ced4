// Package conflate implements entity resolution: matching EnrichedRecords
// against an in-memory canonical index (name + location) or minting a new
// canonical id, scoring candidates by a per-entity-type similarity
// function, and producing deduplication metadata. Each conflate() call is
// atomic with respect to index mutation: name/location index insertion and
// entity-store put happen under one lock.
package conflate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
	"github.com/nspilman/sms-venue-pipeline/pkg/canonical"
)

const Strategy = "conflate_v1"

// Options tunes the matching thresholds; zero-valued fields fall back to
// working defaults.
type Options struct {
	MinConfidenceThreshold  float64
	MaxVenueDistanceKM      float64
	MaxEventTimeDiffHours   float64
}

func (o Options) WithDefaults() Options {
	if o.MinConfidenceThreshold == 0 {
		o.MinConfidenceThreshold = 0.8
	}
	if o.MaxVenueDistanceKM == 0 {
		o.MaxVenueDistanceKM = 0.1
	}
	if o.MaxEventTimeDiffHours == 0 {
		o.MaxEventTimeDiffHours = 2
	}
	return o
}

// canonicalEntity is the minimal shape the Conflator keeps in its indices;
// production deployments back this with the Storage Port instead, but the
// indices here are what every conflate() call actually mutates.
type canonicalEntity struct {
	id         string
	entityType model.EntityType
	venue      *model.Venue
	event      *model.Event
	artist     *model.Artist
}

// Conflator resolves EnrichedRecords to canonical entity ids.
type Conflator struct {
	mu       sync.Mutex
	opts     Options
	byID     map[string]canonicalEntity
	nameIdx  map[string][]string // normalized name -> entity ids
	locIdx   map[string][]string // grid key (3-decimal rounding) -> entity ids
	now      func() time.Time
}

// New returns an empty Conflator.
func New(opts Options) *Conflator {
	return &Conflator{
		opts:    opts.WithDefaults(),
		byID:    make(map[string]canonicalEntity),
		nameIdx: make(map[string][]string),
		locIdx:  make(map[string][]string),
		now:     time.Now,
	}
}

// Seed registers a pre-existing canonical entity (e.g. loaded from the
// Storage Port at startup) into the indices without going through Conflate.
func (c *Conflator) Seed(entityType model.EntityType, v *model.Venue, e *model.Event, a *model.Artist) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent := canonicalEntity{entityType: entityType, venue: v, event: e, artist: a}
	switch entityType {
	case model.EntityVenue:
		ent.id = v.ID
	case model.EntityEvent:
		ent.id = e.ID
	case model.EntityArtist:
		ent.id = a.ID
	}
	if ent.id == "" {
		return
	}
	c.index(ent)
}

func (c *Conflator) index(ent canonicalEntity) {
	c.byID[ent.id] = ent
	name := normalizedName(ent)
	if name != "" {
		c.nameIdx[name] = appendUnique(c.nameIdx[name], ent.id)
	}
	if ent.entityType == model.EntityVenue && ent.venue != nil {
		key := gridKey(ent.venue.Latitude, ent.venue.Longitude)
		c.locIdx[key] = appendUnique(c.locIdx[key], ent.id)
	}
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Conflate resolves rec to a canonical entity id, mutating the indices
// atomically with respect to this call.
func (c *Conflator) Conflate(rec model.EnrichedRecord) model.ConflatedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := fromEnriched(rec)
	name := normalizedName(incoming)

	var candidateIDs []string
	nameIndexed := false
	if name != "" {
		if ids, ok := c.nameIdx[name]; ok {
			candidateIDs = ids
			nameIndexed = true
		}
	}
	if len(candidateIDs) == 0 && rec.EntityType == model.EntityVenue && rec.Venue != nil {
		candidateIDs = c.locIdx[gridKey(rec.Venue.Latitude, rec.Venue.Longitude)]
	}

	type scored struct {
		id    string
		score float64
	}
	var scoredCandidates []scored
	simScores := make(map[string]float64, len(candidateIDs))
	minKeep := 0.3
	if !nameIndexed {
		minKeep = 0.5
	}
	for _, id := range candidateIDs {
		existing, ok := c.byID[id]
		if !ok {
			continue
		}
		score := similarity(incoming, existing, c.opts)
		simScores[id] = score
		if score > minKeep {
			scoredCandidates = append(scoredCandidates, scored{id: id, score: score})
		}
	}
	sort.Slice(scoredCandidates, func(i, j int) bool { return scoredCandidates[i].score > scoredCandidates[j].score })

	now := c.now().UTC()
	conflation := model.Conflation{
		Strategy:         Strategy,
		SimilarityScores: simScores,
		ContributingSources: []string{rec.Provenance.SourceID},
	}

	var canonicalID string
	if len(scoredCandidates) > 0 && scoredCandidates[0].score >= c.opts.MinConfidenceThreshold {
		best := scoredCandidates[0]
		canonicalID = best.id
		conflation.Decision = model.ResolutionMatchedExisting
		conflation.Confidence = best.score
		for _, cand := range scoredCandidates[1:] {
			conflation.Alternatives = append(conflation.Alternatives, model.Alternative{
				ID: cand.id, Score: cand.score, RejectionReason: "lower than selected",
			})
		}
	} else {
		canonicalID = incoming.id
		if canonicalID == "" {
			canonicalID = uuid.NewString()
		}
		conflation.Decision = model.ResolutionNewEntity
		conflation.Confidence = 0.6
		if len(scoredCandidates) > 0 {
			conflation.Warnings = append(conflation.Warnings,
				fmt.Sprintf("best candidate %s scored %.2f, below threshold", scoredCandidates[0].id, scoredCandidates[0].score))
			for _, cand := range scoredCandidates {
				conflation.Alternatives = append(conflation.Alternatives, model.Alternative{
					ID: cand.id, Score: cand.score, RejectionReason: "below threshold",
				})
			}
		}
	}

	dedupe := model.Deduplication{
		Strategy:      Strategy,
		KeyAttributes: keyAttributes(incoming),
		Signature:     signature(incoming),
	}
	if len(scoredCandidates) > 1 {
		dedupe.IsPotentialDuplicate = true
	}
	for _, cand := range scoredCandidates {
		if cand.score > 0.9 {
			dedupe.PotentialDuplicates = append(dedupe.PotentialDuplicates, cand.id)
		}
	}
	conflation.Deduplication = dedupe

	incoming.id = canonicalID
	c.index(incoming)

	return model.ConflatedRecord{
		EnrichedRecord:      rec,
		CanonicalEntityID:   canonicalID,
		CanonicalEntityType: rec.EntityType,
		CanonicalVersion:    1,
		Conflation:          conflation,
		ConflatedAt:         now,
	}
}

func fromEnriched(rec model.EnrichedRecord) canonicalEntity {
	ent := canonicalEntity{entityType: rec.EntityType}
	switch rec.EntityType {
	case model.EntityVenue:
		ent.venue = rec.Venue
		if rec.Venue != nil {
			ent.id = rec.Venue.ID
		}
	case model.EntityEvent:
		ent.event = rec.Event
		if rec.Event != nil {
			ent.id = rec.Event.ID
		}
	case model.EntityArtist:
		ent.artist = rec.Artist
		if rec.Artist != nil {
			ent.id = rec.Artist.ID
		}
	}
	return ent
}

func normalizedName(ent canonicalEntity) string {
	switch ent.entityType {
	case model.EntityVenue:
		if ent.venue != nil {
			return normalizeNameString(ent.venue.Name)
		}
	case model.EntityEvent:
		if ent.event != nil {
			return normalizeNameString(ent.event.Title)
		}
	case model.EntityArtist:
		if ent.artist != nil {
			return normalizeNameString(ent.artist.Name)
		}
	}
	return ""
}

func normalizeNameString(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", "and")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

func gridKey(lat, lng float64) string {
	return fmt.Sprintf("%.3f,%.3f", lat, lng)
}

// ---- similarity ----

func similarity(a, b canonicalEntity, opts Options) float64 {
	if a.entityType != b.entityType {
		return 0
	}
	switch a.entityType {
	case model.EntityVenue:
		return venueSimilarity(a.venue, b.venue, opts)
	case model.EntityEvent:
		return eventSimilarity(a.event, b.event, opts)
	case model.EntityArtist:
		return artistSimilarity(a.artist, b.artist)
	}
	return 0
}

// textSimilarity is the Jaccard similarity over whitespace-tokenized,
// separator-normalized lowercase text, shared by every text-bearing field
// (names, titles, addresses). Two empty strings are identical (1.0); empty
// versus non-empty is 0.
func textSimilarity(a, b string) float64 {
	return jaccard(tokenize(normalizeNameString(a)), tokenize(normalizeNameString(b)))
}

func venueSimilarity(a, b *model.Venue, opts Options) float64 {
	if a == nil || b == nil {
		return 0
	}
	nameSim := textSimilarity(a.Name, b.Name)
	distKM := haversineKM(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	locSim := 1 - math.Min(distKM/opts.MaxVenueDistanceKM, 1)
	addrSim := textSimilarity(a.Address, b.Address)
	return nameSim*0.4 + locSim*0.4 + addrSim*0.2
}

func eventSimilarity(a, b *model.Event, opts Options) float64 {
	if a == nil || b == nil {
		return 0
	}
	nameSim := textSimilarity(a.Title, b.Title)
	dateSim := dateSimilarity(a.EventDay, a.StartTime, b.EventDay, b.StartTime, opts.MaxEventTimeDiffHours)
	venueSim := 0.0
	if a.VenueID != "" && a.VenueID == b.VenueID {
		venueSim = 1
	}
	return nameSim*0.5 + dateSim*0.3 + venueSim*0.2
}

func artistSimilarity(a, b *model.Artist) float64 {
	if a == nil || b == nil {
		return 0
	}
	return textSimilarity(a.Name, b.Name)
}

func dateSimilarity(dayA, timeA, dayB, timeB string, maxHours float64) float64 {
	ta, errA := parseDayTime(dayA, timeA)
	tb, errB := parseDayTime(dayB, timeB)
	if errA != nil || errB != nil {
		if dayA == dayB && dayA != "" {
			return 1
		}
		return 0
	}
	diffHours := math.Abs(ta.Sub(tb).Hours())
	if maxHours <= 0 {
		if diffHours == 0 {
			return 1
		}
		return 0
	}
	sim := 1 - diffHours/maxHours
	if sim < 0 {
		return 0
	}
	return sim
}

func parseDayTime(day, clock string) (time.Time, error) {
	if day == "" {
		return time.Time{}, fmt.Errorf("conflate: empty day")
	}
	if clock == "" {
		clock = "00:00"
	}
	return time.Parse("2006-01-02 15:04", day+" "+clock)
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		out[tok] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKM = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	aa := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(aa), math.Sqrt(1-aa))
	return earthRadiusKM * c
}

// ---- deduplication signature ----

func keyAttributes(ent canonicalEntity) map[string]string {
	switch ent.entityType {
	case model.EntityVenue:
		if ent.venue == nil {
			return nil
		}
		return map[string]string{
			"name_lower":  strings.ToLower(ent.venue.Name),
			"city":        ent.venue.City,
			"postal_code": ent.venue.PostalCode,
			"lat":         strconv.FormatFloat(round(ent.venue.Latitude, 4), 'f', 4, 64),
			"lng":         strconv.FormatFloat(round(ent.venue.Longitude, 4), 'f', 4, 64),
		}
	case model.EntityEvent:
		if ent.event == nil {
			return nil
		}
		return map[string]string{
			"title_lower": strings.ToLower(ent.event.Title),
			"event_day":   ent.event.EventDay,
			"venue_id":    ent.event.VenueID,
		}
	case model.EntityArtist:
		if ent.artist == nil {
			return nil
		}
		return map[string]string{"name_lower": strings.ToLower(ent.artist.Name)}
	}
	return nil
}

func signature(ent canonicalEntity) string {
	return canonical.HashAttributes(keyAttributes(ent))
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
