// Package audit mirrors every catalog ProcessRecord into a tamper-evident,
// hash-chained ledger keyed by (process_run_id, process_record_id): a
// canonical, field-ordered JSON encoding of each entry folded into a
// running SHA-256 chain starting from a fixed genesis value.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
	"github.com/nspilman/sms-venue-pipeline/pkg/canonical"
)

var (
	ErrInvalidRecord = errors.New("audit: invalid process record")
	ErrChainMismatch = errors.New("audit: chain mismatch")
)

const genesisPrevHash = canonical.Genesis

// Link is one hash-chained entry mirroring a ProcessRecord.
type Link struct {
	ProcessRunID    string `json:"process_run_id"`
	ProcessRecordID string `json:"process_record_id"`
	CreatedAt       string `json:"created_at"`
	PrevHash        string `json:"prev_hash"`
	Hash            string `json:"hash"`
}

// Chain is an ordered sequence of Links plus the resulting head hash.
type Chain struct {
	Head  string `json:"head"`
	Links []Link `json:"links"`
}

// canonicalRecord is a field-ordered, string-normalized projection of a
// ProcessRecord used only for hashing; json.Marshal on a struct with fixed
// field order is deterministic without needing a generic sorted-map walk.
type canonicalRecord struct {
	ProcessRunID  string `json:"process_run_id"`
	ProcessRecordID string `json:"process_record_id"`
	SourceID      string `json:"source_id"`
	RawDataID     string `json:"raw_data_id,omitempty"`
	ChangeKind    string `json:"change_kind"`
	ChangeLog     string `json:"change_log"`
	FieldsChanged string `json:"fields_changed,omitempty"`
	EventID       string `json:"event_id,omitempty"`
	VenueID       string `json:"venue_id,omitempty"`
	ArtistID      string `json:"artist_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func canonicalBytes(rec model.ProcessRecord) ([]byte, error) {
	cr := canonicalRecord{
		ProcessRunID:    norm(rec.ProcessRunID),
		ProcessRecordID: norm(rec.ID),
		SourceID:        norm(rec.SourceID),
		RawDataID:       norm(rec.RawDataID),
		ChangeKind:      norm(string(rec.ChangeKind)),
		ChangeLog:       norm(rec.ChangeLog),
		FieldsChanged:   norm(rec.FieldsChanged),
		EventID:         norm(rec.EventID),
		VenueID:         norm(rec.VenueID),
		ArtistID:        norm(rec.ArtistID),
		CreatedAt:       rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if cr.ProcessRunID == "" || cr.ProcessRecordID == "" || cr.ChangeKind == "" {
		return nil, fmt.Errorf("%w: process_run_id/process_record_id/change_kind required", ErrInvalidRecord)
	}
	b, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal canonical record: %w", err)
	}
	return b, nil
}

func hashStep(prev string, canonicalJSON []byte) string {
	return canonical.ChainStep(prev, canonicalJSON)
}

// BuildChain deterministically orders records by (created_at, id) and folds
// them into a hash chain starting from GENESIS.
func BuildChain(records []model.ProcessRecord) (Chain, error) {
	if len(records) == 0 {
		return Chain{Head: genesisPrevHash}, nil
	}
	ordered := make([]model.ProcessRecord, len(records))
	copy(ordered, records)
	sort.Slice(ordered, func(i, j int) bool {
		ti, tj := ordered[i].CreatedAt, ordered[j].CreatedAt
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ordered[i].ID < ordered[j].ID
	})

	links := make([]Link, 0, len(ordered))
	prev := genesisPrevHash
	for _, rec := range ordered {
		b, err := canonicalBytes(rec)
		if err != nil {
			return Chain{}, err
		}
		h := hashStep(prev, b)
		links = append(links, Link{
			ProcessRunID:    rec.ProcessRunID,
			ProcessRecordID: rec.ID,
			CreatedAt:       rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			PrevHash:        prev,
			Hash:            h,
		})
		prev = h
	}
	return Chain{Head: prev, Links: links}, nil
}

// VerifyChain recomputes the chain from records and checks it matches chain.
func VerifyChain(chain Chain, records []model.ProcessRecord) error {
	built, err := BuildChain(records)
	if err != nil {
		return err
	}
	if built.Head != chain.Head {
		return fmt.Errorf("%w: head mismatch", ErrChainMismatch)
	}
	if len(built.Links) != len(chain.Links) {
		return fmt.Errorf("%w: link count mismatch", ErrChainMismatch)
	}
	for i := range built.Links {
		if built.Links[i] != chain.Links[i] {
			return fmt.Errorf("%w: link mismatch at index %d", ErrChainMismatch, i)
		}
	}
	return nil
}

func norm(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// Ledger is an in-process, append-only mirror of catalog ProcessRecords,
// re-deriving its hash chain on every append. Recent exposes its tail for
// in-process inspection; no admin route serves it.
type Ledger struct {
	mu      sync.Mutex
	records []model.ProcessRecord
	chain   Chain
}

func NewLedger() *Ledger {
	return &Ledger{chain: Chain{Head: genesisPrevHash}}
}

// Append adds rec to the ledger and recomputes the chain head.
func (l *Ledger) Append(rec model.ProcessRecord) (Link, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	chain, err := BuildChain(l.records)
	if err != nil {
		l.records = l.records[:len(l.records)-1]
		return Link{}, err
	}
	l.chain = chain
	return chain.Links[len(chain.Links)-1], nil
}

// Head returns the current chain head hash.
func (l *Ledger) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain.Head
}

// Recent returns up to limit ProcessRecords (most recently appended first).
func (l *Ledger) Recent(limit int) []model.ProcessRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.ProcessRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = l.records[n-1-i]
	}
	return out
}

// Verify recomputes and checks the ledger's own chain against its records.
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return VerifyChain(l.chain, l.records)
}
