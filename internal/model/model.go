// Package model holds the domain entities and wire shapes shared across the
// pipeline stages: Envelope/StampedEnvelope at the gateway boundary, the
// Parse/Normalize/QualityGate/Enrich/Conflate record chain, and the
// persisted canonical entities (Venue/Event/Artist) plus their audit trail.
package model

import (
	"encoding/json"
	"time"
)

// EntityType tags which canonical entity a record carries.
type EntityType string

const (
	EntityVenue  EntityType = "venue"
	EntityEvent  EntityType = "event"
	EntityArtist EntityType = "artist"
)

// Venue is a canonical music venue.
type Venue struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name"`
	NameLower    string    `json:"name_lower"`
	Slug         string    `json:"slug"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Address      string    `json:"address,omitempty"`
	PostalCode   string    `json:"postal_code,omitempty"`
	City         string    `json:"city,omitempty"`
	URL          string    `json:"url,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	Description  string    `json:"description,omitempty"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	ShowFlag     bool      `json:"show_flag"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event is a canonical show at a venue.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	EventDay    string    `json:"event_day"` // YYYY-MM-DD
	StartTime   string    `json:"start_time,omitempty"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	VenueID     string    `json:"venue_id"`
	ArtistIDs   []string  `json:"artist_ids,omitempty"`
	ShowFlag    bool      `json:"show_flag"`
	Finalized   bool      `json:"finalized"`
	CreatedAt   time.Time `json:"created_at"`
}

// Artist is a canonical performer.
type Artist struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Bio       string    `json:"bio,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RawData is the unprocessed-row shape backing the Storage Port's
// get_unprocessed_raw_data contract.
type RawData struct {
	ID            string          `json:"id,omitempty"`
	SourceID      string          `json:"source_id"`
	ExternalID    string          `json:"external_id"`
	EventName     string          `json:"event_name"`
	VenueName     string          `json:"venue_name"`
	EventDay      string          `json:"event_day"`
	Payload       json.RawMessage `json:"payload"`
	Processed     bool            `json:"processed"`
	LinkedEventID string          `json:"linked_event_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ProcessRun groups a batch of catalog actions for audit purposes.
type ProcessRun struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ChangeKind enumerates the catalog audit outcomes.
type ChangeKind string

const (
	ChangeCreate   ChangeKind = "CREATE"
	ChangeUpdate   ChangeKind = "UPDATE"
	ChangeNoChange ChangeKind = "NO_CHANGE"
	ChangeSkip     ChangeKind = "SKIP"
	ChangeError    ChangeKind = "ERROR"
)

// ProcessRecord is one audit entry produced by a catalog handler.
type ProcessRecord struct {
	ID            string     `json:"id"`
	ProcessRunID  string     `json:"process_run_id"`
	SourceID      string     `json:"source_id"`
	RawDataID     string     `json:"raw_data_id,omitempty"`
	ChangeKind    ChangeKind `json:"change_kind"`
	ChangeLog     string     `json:"change_log"`
	FieldsChanged string     `json:"fields_changed,omitempty"`
	EventID       string     `json:"event_id,omitempty"`
	VenueID       string     `json:"venue_id,omitempty"`
	ArtistID      string     `json:"artist_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ---- Gateway ingress wire shapes ----

// Checksum carries the payload's content hash.
type Checksum struct {
	SHA256 string `json:"sha256"`
}

// PayloadMeta describes the bytes the gateway is being asked to accept.
type PayloadMeta struct {
	MimeType string   `json:"mime_type"`
	SizeBytes int64    `json:"size_bytes"`
	Checksum Checksum `json:"checksum"`
}

// RequestMeta carries provenance of the HTTP fetch that produced the payload.
type RequestMeta struct {
	URL          string `json:"url"`
	Method       string `json:"method"`
	Status       int    `json:"status,omitempty"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Timing carries fetch/acceptance timestamps.
type Timing struct {
	FetchedAt         time.Time  `json:"fetched_at"`
	GatewayReceivedAt *time.Time `json:"gateway_received_at,omitempty"`
}

// Legal carries licensing provenance for the payload.
type Legal struct {
	LicenseID string `json:"license_id,omitempty"`
}

// Envelope is the wire shape submitted to the gateway.
type Envelope struct {
	EnvelopeVersion int         `json:"envelope_version"`
	SourceID        string      `json:"source_id"`
	IdempotencyKey  string      `json:"idempotency_key"`
	PayloadMeta     PayloadMeta `json:"payload_meta"`
	Request         RequestMeta `json:"request"`
	Timing          Timing      `json:"timing"`
	Legal           Legal       `json:"legal"`
}

// StampedEnvelope is the post-acceptance record appended to the ingest log.
type StampedEnvelope struct {
	EnvelopeVersion int       `json:"envelope_version"`
	EnvelopeID      string    `json:"envelope_id"`
	AcceptedAt      time.Time `json:"accepted_at"`
	PayloadRef      string    `json:"payload_ref,omitempty"`
	DedupeOf        string    `json:"dedupe_of,omitempty"`
	Envelope        Envelope  `json:"envelope"`
}

// ---- Stage chain ----

// ParsedRecord is one record emitted by a Parser.
type ParsedRecord struct {
	SourceID   string          `json:"source_id"`
	EnvelopeID string          `json:"envelope_id"`
	PayloadRef string          `json:"payload_ref"`
	RecordPath string          `json:"record_path"`
	Value      json.RawMessage `json:"value"`
}

// Provenance is copied forward from ParsedRecord through each stage.
type Provenance struct {
	EnvelopeID   string    `json:"envelope_id"`
	SourceID     string    `json:"source_id"`
	PayloadRef   string    `json:"payload_ref"`
	RecordPath   string    `json:"record_path"`
	NormalizedAt time.Time `json:"normalized_at"`
}

// Normalization carries per-record normalizer metadata.
type Normalization struct {
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings,omitempty"`
	Geocoded   bool     `json:"geocoded"`
	StrategyID string   `json:"strategy_id"`
}

// NormalizedRecord tags exactly one of Venue/Event/Artist.
type NormalizedRecord struct {
	EntityType    EntityType    `json:"entity_type"`
	Venue         *Venue        `json:"venue,omitempty"`
	Event         *Event        `json:"event,omitempty"`
	Artist        *Artist       `json:"artist,omitempty"`
	Provenance    Provenance    `json:"provenance"`
	Normalization Normalization `json:"normalization"`
}

// Decision is the Quality Gate's verdict.
type Decision string

const (
	DecisionAccept               Decision = "Accept"
	DecisionAcceptWithWarnings   Decision = "AcceptWithWarnings"
	DecisionQuarantine           Decision = "Quarantine"
)

// IssueSeverity ranks quality issues; higher deducts more and can force quarantine.
type IssueSeverity string

const (
	SeverityInfo     IssueSeverity = "Info"
	SeverityWarning  IssueSeverity = "Warning"
	SeverityError    IssueSeverity = "Error"
	SeverityCritical IssueSeverity = "Critical"
)

// Issue is one quality-rule finding.
type Issue struct {
	Type        string        `json:"type"`
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
	Field       string        `json:"field,omitempty"`
	Suggestion  string        `json:"suggestion,omitempty"`
}

// QualityAssessedRecord is a NormalizedRecord plus the Quality Gate's verdict.
type QualityAssessedRecord struct {
	NormalizedRecord
	Decision    Decision  `json:"decision"`
	QualityScore float64  `json:"quality_score"`
	Issues      []Issue   `json:"issues,omitempty"`
	RuleVersion string    `json:"rule_version"`
	AssessedAt  time.Time `json:"assessed_at"`
}

// GeoProperties carries the enricher's spatial classification.
type GeoProperties struct {
	DistanceToCenterKM  float64 `json:"distance_to_center_km,omitempty"`
	PopulationDensity   string  `json:"population_density,omitempty"`
	TransitAccessibility float64 `json:"transit_accessibility,omitempty"`
	Landmarks           []string `json:"landmarks,omitempty"`
}

// EnrichedRecord is a QualityAssessedRecord plus geographic context.
type EnrichedRecord struct {
	QualityAssessedRecord
	City          string        `json:"city,omitempty"`
	District      string        `json:"district,omitempty"`
	Region        string        `json:"region,omitempty"`
	SpatialBin    string        `json:"spatial_bin,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	Geo           GeoProperties `json:"geo,omitempty"`
	ReferenceVersions map[string]string `json:"reference_versions,omitempty"`
	Strategy      string        `json:"strategy"`
	Confidence    float64       `json:"confidence"`
	Warnings      []string      `json:"warnings,omitempty"`
	EnrichedAt    time.Time     `json:"enriched_at"`
}

// ResolutionDecision is the Conflator's verdict.
type ResolutionDecision string

const (
	ResolutionNewEntity        ResolutionDecision = "NewEntity"
	ResolutionMatchedExisting  ResolutionDecision = "MatchedExisting"
	ResolutionUpdatedExisting  ResolutionDecision = "UpdatedExisting"
	ResolutionDuplicate        ResolutionDecision = "Duplicate"
	ResolutionUncertain        ResolutionDecision = "Uncertain"
)

// Alternative is a candidate the Conflator rejected in favor of the winner.
type Alternative struct {
	ID               string  `json:"id"`
	Score            float64 `json:"score"`
	RejectionReason  string  `json:"rejection_reason"`
}

// Deduplication carries the Conflator's duplicate-detection metadata.
type Deduplication struct {
	IsPotentialDuplicate bool     `json:"is_potential_duplicate"`
	PotentialDuplicates  []string `json:"potential_duplicates,omitempty"`
	Strategy             string   `json:"strategy"`
	KeyAttributes        map[string]string `json:"key_attributes,omitempty"`
	Signature            string   `json:"signature,omitempty"`
}

// Conflation carries the full entity-resolution outcome for one record.
type Conflation struct {
	Decision            ResolutionDecision `json:"decision"`
	Confidence          float64            `json:"confidence"`
	Strategy            string             `json:"strategy"`
	Alternatives        []Alternative      `json:"alternatives,omitempty"`
	PreviousEntityID    string             `json:"previous_entity_id,omitempty"`
	ContributingSources []string           `json:"contributing_sources,omitempty"`
	SimilarityScores    map[string]float64 `json:"similarity_scores,omitempty"`
	Warnings            []string           `json:"warnings,omitempty"`
	Deduplication       Deduplication      `json:"deduplication"`
}

// ConflatedRecord is an EnrichedRecord plus the assigned canonical entity id.
type ConflatedRecord struct {
	EnrichedRecord
	CanonicalEntityID   string     `json:"canonical_entity_id"`
	CanonicalEntityType EntityType `json:"canonical_entity_type"`
	CanonicalVersion    int        `json:"canonical_version"`
	Conflation          Conflation `json:"conflation"`
	ConflatedAt         time.Time  `json:"conflated_at"`
}
