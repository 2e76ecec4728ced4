package orchestrator

import (
	"sync"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

// QuarantineRing is a bounded, per-source ring buffer of recently quarantined
// records: newest-first retention capped at a fixed size so an operator can
// inspect recent rejections without scanning the quarantined side-output
// files.
type QuarantineRing struct {
	mu       sync.Mutex
	capacity int
	bySource map[string][]model.QualityAssessedRecord
}

// NewQuarantineRing returns a ring retaining up to capacity records per
// source id.
func NewQuarantineRing(capacity int) *QuarantineRing {
	if capacity <= 0 {
		capacity = 50
	}
	return &QuarantineRing{capacity: capacity, bySource: make(map[string][]model.QualityAssessedRecord)}
}

// Add records rec as the newest quarantine for its source, evicting the
// oldest once the source's ring is at capacity.
func (q *QuarantineRing) Add(sourceID string, rec model.QualityAssessedRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.bySource[sourceID]
	list = append([]model.QualityAssessedRecord{rec}, list...)
	if len(list) > q.capacity {
		list = list[:q.capacity]
	}
	q.bySource[sourceID] = list
}

// Recent returns up to n of the most recently quarantined records for
// sourceID, newest first.
func (q *QuarantineRing) Recent(sourceID string, n int) []model.QualityAssessedRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.bySource[sourceID]
	if n <= 0 || n > len(list) {
		n = len(list)
	}
	out := make([]model.QualityAssessedRecord, n)
	copy(out, list[:n])
	return out
}
