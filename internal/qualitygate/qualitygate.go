// Package qualitygate applies a versioned rule set to a NormalizedRecord,
// deducting score per issue severity and deciding Accept /
// AcceptWithWarnings / Quarantine. The rule evaluation itself is pure;
// routing decisions to accepted/quarantined NDJSON side-outputs is the
// caller's job (internal/orchestrator).
package qualitygate

import (
	"fmt"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

const RuleVersion = "quality_rules_v1"

// Options tunes the rule set's thresholds; zero-valued fields fall back to
// working defaults via WithDefaults.
type Options struct {
	MinConfidence    float64
	MinQualityScore  float64
	MaxPastDays      int
	MaxFutureDays    int
	RequireCoords    bool
	RegionMinLat     float64
	RegionMaxLat     float64
	RegionMinLng     float64
	RegionMaxLng     float64
	SentinelLat      float64
	SentinelLng      float64
}

// WithDefaults fills zero-valued fields with the Seattle-area region box,
// the city-center sentinel, and the stock confidence/score thresholds.
func (o Options) WithDefaults() Options {
	if o.MinConfidence == 0 {
		o.MinConfidence = 0.7
	}
	if o.MinQualityScore == 0 {
		o.MinQualityScore = 0.6
	}
	if o.MaxPastDays == 0 {
		o.MaxPastDays = 365
	}
	if o.MaxFutureDays == 0 {
		o.MaxFutureDays = 365
	}
	if o.RegionMinLat == 0 && o.RegionMaxLat == 0 {
		o.RegionMinLat, o.RegionMaxLat = 47.1, 47.9
	}
	if o.RegionMinLng == 0 && o.RegionMaxLng == 0 {
		o.RegionMinLng, o.RegionMaxLng = -122.6, -121.9
	}
	if o.SentinelLat == 0 && o.SentinelLng == 0 {
		o.SentinelLat, o.SentinelLng = 47.6062, -122.3321 // Seattle city-center sentinel
	}
	return o
}

// Gate evaluates NormalizedRecords against Options, pure and clock-injected
// for deterministic tests.
type Gate struct {
	opts Options
	now  func() time.Time
}

// New returns a Gate with opts filled via WithDefaults.
func New(opts Options) *Gate {
	return &Gate{opts: opts.WithDefaults(), now: time.Now}
}

var severityDeduction = map[model.IssueSeverity]float64{
	model.SeverityInfo:     0.01,
	model.SeverityWarning:  0.05,
	model.SeverityError:    0.15,
	model.SeverityCritical: 0.30,
}

// Assess runs the full rule set and returns the QualityAssessedRecord.
func (g *Gate) Assess(rec model.NormalizedRecord) model.QualityAssessedRecord {
	score := rec.Normalization.Confidence
	var issues []model.Issue

	if rec.Normalization.Confidence < g.opts.MinConfidence {
		issues = append(issues, model.Issue{
			Type: "LowConfidence", Severity: model.SeverityWarning,
			Description: fmt.Sprintf("confidence %.2f below minimum %.2f", rec.Normalization.Confidence, g.opts.MinConfidence),
		})
	}
	for _, w := range rec.Normalization.Warnings {
		issues = append(issues, model.Issue{Type: "SuspiciousValue", Severity: model.SeverityInfo, Description: w})
	}

	switch rec.EntityType {
	case model.EntityEvent:
		issues = append(issues, g.assessEvent(rec.Event)...)
	case model.EntityVenue:
		issues = append(issues, g.assessVenue(rec.Venue)...)
	case model.EntityArtist:
		issues = append(issues, g.assessArtist(rec.Artist)...)
	}

	for _, iss := range issues {
		score -= severityDeduction[iss.Severity]
	}
	if score < 0 {
		score = 0
	}

	decision := decide(issues, score, g.opts.MinQualityScore)

	return model.QualityAssessedRecord{
		NormalizedRecord: rec,
		Decision:         decision,
		QualityScore:     score,
		Issues:           issues,
		RuleVersion:      RuleVersion,
		AssessedAt:       g.now().UTC(),
	}
}

func decide(issues []model.Issue, score, minScore float64) model.Decision {
	hasCritical := false
	hasWarnOrError := false
	for _, iss := range issues {
		switch iss.Severity {
		case model.SeverityCritical:
			hasCritical = true
		case model.SeverityWarning, model.SeverityError:
			hasWarnOrError = true
		}
	}
	if hasCritical {
		return model.DecisionQuarantine
	}
	if score < minScore {
		return model.DecisionQuarantine
	}
	if hasWarnOrError {
		return model.DecisionAcceptWithWarnings
	}
	return model.DecisionAccept
}

func (g *Gate) assessEvent(e *model.Event) []model.Issue {
	if e == nil {
		return []model.Issue{{Type: "MissingData", Severity: model.SeverityCritical, Description: "event record is nil"}}
	}
	var issues []model.Issue
	if len(e.Title) < 3 {
		issues = append(issues, model.Issue{
			Type: "MissingData", Severity: model.SeverityError, Field: "title",
			Description: "title shorter than 3 characters",
		})
	}
	if e.EventDay != "" {
		day, err := time.Parse("2006-01-02", e.EventDay)
		if err != nil {
			issues = append(issues, model.Issue{
				Type: "OutOfRange", Severity: model.SeverityWarning, Field: "event_day",
				Description: "event_day is not a valid date",
			})
		} else {
			now := g.now().UTC()
			earliest := now.AddDate(0, 0, -g.opts.MaxPastDays)
			latest := now.AddDate(0, 0, g.opts.MaxFutureDays)
			if day.Before(earliest) || day.After(latest) {
				issues = append(issues, model.Issue{
					Type: "OutOfRange", Severity: model.SeverityWarning, Field: "event_day",
					Description: "event_day outside the configured past/future window",
				})
			}
		}
	}
	if e.VenueID == "" {
		issues = append(issues, model.Issue{
			Type: "MissingData", Severity: model.SeverityInfo, Field: "venue_id",
			Description: "placeholder venue id; venue not yet resolved",
		})
	}
	return issues
}

func (g *Gate) assessVenue(v *model.Venue) []model.Issue {
	if v == nil {
		return []model.Issue{{Type: "MissingData", Severity: model.SeverityCritical, Description: "venue record is nil"}}
	}
	var issues []model.Issue
	if v.Name == "" {
		issues = append(issues, model.Issue{Type: "MissingData", Severity: model.SeverityCritical, Field: "name", Description: "venue name is empty"})
	}
	if g.opts.RequireCoords && isSentinel(v.Latitude, v.Longitude, g.opts.SentinelLat, g.opts.SentinelLng) {
		issues = append(issues, model.Issue{
			Type: "IncompleteGeography", Severity: model.SeverityWarning, Field: "latitude,longitude",
			Description: "coordinates equal the default city-center sentinel",
		})
	}
	if !inRegion(v.Latitude, v.Longitude, g.opts) {
		issues = append(issues, model.Issue{
			Type: "OutOfRange", Severity: model.SeverityError, Field: "latitude,longitude",
			Description: "coordinates fall outside the configured region box",
		})
	}
	if v.Address == "" {
		issues = append(issues, model.Issue{Type: "MissingData", Severity: model.SeverityWarning, Field: "address", Description: "address is empty"})
	}
	return issues
}

func (g *Gate) assessArtist(a *model.Artist) []model.Issue {
	if a == nil {
		return []model.Issue{{Type: "MissingData", Severity: model.SeverityCritical, Description: "artist record is nil"}}
	}
	var issues []model.Issue
	if a.Name == "" {
		issues = append(issues, model.Issue{Type: "MissingData", Severity: model.SeverityCritical, Field: "name", Description: "artist name is empty"})
	} else if len(a.Name) < 2 {
		issues = append(issues, model.Issue{Type: "SuspiciousValue", Severity: model.SeverityWarning, Field: "name", Description: "artist name suspiciously short"})
	}
	return issues
}

func isSentinel(lat, lng, sentinelLat, sentinelLng float64) bool {
	const eps = 1e-6
	return abs(lat-sentinelLat) < eps && abs(lng-sentinelLng) < eps
}

func inRegion(lat, lng float64, o Options) bool {
	return lat >= o.RegionMinLat && lat <= o.RegionMaxLat && lng >= o.RegionMinLng && lng <= o.RegionMaxLng
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
