package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

// WixWarmupParser locates the embedded JSON payload Wix renders into a
// "wix-warmup-data" script tag server-side, then runs the same
// eventsByDates extraction WixCalendarParser uses against it.
type WixWarmupParser struct {
	scriptID string
}

func NewWixWarmupParser() *WixWarmupParser {
	return &WixWarmupParser{scriptID: "wix-warmup-data"}
}

func (p *WixWarmupParser) ID() string { return "parse_plan:wix_warmup_v1" }

func (p *WixWarmupParser) Parse(sourceID, envelopeID, payloadRef string, data []byte) ([]model.ParsedRecord, error) {
	payload, err := extractScriptJSON(string(data), p.scriptID)
	if err != nil {
		return nil, fmt.Errorf("parser: wix_warmup_v1: %w", err)
	}

	inner := NewWixCalendarParser()
	records, err := inner.Parse(sourceID, envelopeID, payloadRef, payload)
	if err != nil {
		return nil, fmt.Errorf("parser: wix_warmup_v1: %w", err)
	}
	for i := range records {
		records[i].RecordPath = "script#" + p.scriptID + "." + records[i].RecordPath
	}
	return records, nil
}

// extractScriptJSON finds the first <script id="id" ...>...</script> block
// in html and returns its body, which is assumed to be a JSON document.
func extractScriptJSON(html, id string) ([]byte, error) {
	marker := fmt.Sprintf(`id="%s"`, id)
	idx := strings.Index(html, marker)
	if idx < 0 {
		marker = fmt.Sprintf(`id='%s'`, id)
		idx = strings.Index(html, marker)
	}
	if idx < 0 {
		return nil, fmt.Errorf("script tag with id %q not found", id)
	}

	tagOpenEnd := strings.Index(html[idx:], ">")
	if tagOpenEnd < 0 {
		return nil, fmt.Errorf("malformed script tag for id %q", id)
	}
	bodyStart := idx + tagOpenEnd + 1

	closeIdx := strings.Index(html[bodyStart:], "</script>")
	if closeIdx < 0 {
		return nil, fmt.Errorf("no closing script tag for id %q", id)
	}
	body := strings.TrimSpace(html[bodyStart : bodyStart+closeIdx])
	if body == "" {
		return nil, fmt.Errorf("empty script body for id %q", id)
	}

	var probe any
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return nil, fmt.Errorf("script body for id %q is not valid JSON: %w", id, err)
	}
	return []byte(body), nil
}
