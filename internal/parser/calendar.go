package parser

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

// JSONCalendarParser handles the plain case: a top-level JSON array, or a
// JSON object with an "events" array, of event-shaped objects.
type JSONCalendarParser struct{}

func NewJSONCalendarParser() *JSONCalendarParser { return &JSONCalendarParser{} }

func (p *JSONCalendarParser) ID() string { return "parse_plan:json_calendar_v1" }

func (p *JSONCalendarParser) Parse(sourceID, envelopeID, payloadRef string, data []byte) ([]model.ParsedRecord, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parser: json_calendar_v1: %w", err)
	}

	items, base, err := eventsArray(doc)
	if err != nil {
		return nil, err
	}

	out := make([]model.ParsedRecord, 0, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("parser: json_calendar_v1: encode item %d: %w", i, err)
		}
		out = append(out, model.ParsedRecord{
			SourceID:   sourceID,
			EnvelopeID: envelopeID,
			PayloadRef: payloadRef,
			RecordPath: fmt.Sprintf("%s[%d]", base, i),
			Value:      raw,
		})
	}
	return out, nil
}

// eventsArray finds the array of event objects in doc, returning it alongside
// the record_path prefix it was found at ("events" or "$" for a bare array).
func eventsArray(doc any) ([]any, string, error) {
	if arr, ok := doc.([]any); ok {
		return arr, "$", nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("parser: json_calendar_v1: expected array or object at top level")
	}
	if v, ok := get(m, "events"); ok {
		if arr, ok := v.([]any); ok {
			return arr, "events", nil
		}
	}
	return nil, "", fmt.Errorf("parser: json_calendar_v1: no events array found")
}

// WixCalendarParser handles a Wix-style calendar feed: a top-level
// "eventsByDates" object mapping an ISO date string to an array of event
// objects for that date. Each emitted record gets an "event_day" field
// merged in from the map key.
type WixCalendarParser struct{}

func NewWixCalendarParser() *WixCalendarParser { return &WixCalendarParser{} }

func (p *WixCalendarParser) ID() string { return "parse_plan:wix_calendar_v1" }

func (p *WixCalendarParser) Parse(sourceID, envelopeID, payloadRef string, data []byte) ([]model.ParsedRecord, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parser: wix_calendar_v1: %w", err)
	}
	v, ok := get(doc, "eventsByDates")
	if !ok {
		return nil, fmt.Errorf("parser: wix_calendar_v1: missing eventsByDates")
	}
	byDate, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parser: wix_calendar_v1: eventsByDates is not an object")
	}

	days := make([]string, 0, len(byDate))
	for d := range byDate {
		days = append(days, d)
	}
	sort.Strings(days)

	var out []model.ParsedRecord
	for _, day := range days {
		arr, ok := byDate[day].([]any)
		if !ok {
			continue
		}
		for i, item := range arr {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			merged := make(map[string]any, len(obj)+1)
			for k, v := range obj {
				merged[k] = v
			}
			merged["event_day"] = day

			raw, err := json.Marshal(merged)
			if err != nil {
				return nil, fmt.Errorf("parser: wix_calendar_v1: encode %s[%d]: %w", day, i, err)
			}
			out = append(out, model.ParsedRecord{
				SourceID:   sourceID,
				EnvelopeID: envelopeID,
				PayloadRef: payloadRef,
				RecordPath: fmt.Sprintf("eventsByDates.%s[%d]", day, i),
				Value:      raw,
			})
		}
	}
	return out, nil
}
