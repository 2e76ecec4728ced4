package audit

import (
	"testing"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/model"
)

func rec(id, runID string, at time.Time) model.ProcessRecord {
	return model.ProcessRecord{
		ID:           id,
		ProcessRunID: runID,
		SourceID:     "src-1",
		ChangeKind:   model.ChangeCreate,
		ChangeLog:    "new venue created",
		CreatedAt:    at,
	}
}

func TestBuildChain_DeterministicAcrossInputOrder(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	a := rec("rec-a", "run-1", base)
	b := rec("rec-b", "run-1", base.Add(time.Minute))

	chain1, err := BuildChain([]model.ProcessRecord{a, b})
	if err != nil {
		t.Fatalf("BuildChain: %v", err)
	}
	chain2, err := BuildChain([]model.ProcessRecord{b, a})
	if err != nil {
		t.Fatalf("BuildChain reordered: %v", err)
	}
	if chain1.Head != chain2.Head {
		t.Fatalf("heads differ: %s vs %s", chain1.Head, chain2.Head)
	}
}

func TestBuildChain_TamperChangesHead(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	a := rec("rec-a", "run-1", base)
	original, err := BuildChain([]model.ProcessRecord{a})
	if err != nil {
		t.Fatalf("BuildChain: %v", err)
	}

	tampered := a
	tampered.ChangeLog = "tampered"
	mutated, err := BuildChain([]model.ProcessRecord{tampered})
	if err != nil {
		t.Fatalf("BuildChain tampered: %v", err)
	}
	if original.Head == mutated.Head {
		t.Fatalf("expected tampering the change log to change the head hash")
	}
}

func TestVerifyChain_DetectsMismatch(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	a := rec("rec-a", "run-1", base)
	chain, err := BuildChain([]model.ProcessRecord{a})
	if err != nil {
		t.Fatalf("BuildChain: %v", err)
	}

	tampered := a
	tampered.ChangeLog = "tampered"
	if err := VerifyChain(chain, []model.ProcessRecord{tampered}); err == nil {
		t.Fatalf("expected VerifyChain to detect the tampered record")
	}
}

func TestLedger_AppendAndVerify(t *testing.T) {
	l := NewLedger()
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	if _, err := l.Append(rec("rec-a", "run-1", base)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := l.Append(rec("rec-b", "run-1", base.Add(time.Minute))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if l.Head() == genesisPrevHash {
		t.Fatalf("expected head to advance past genesis")
	}
}

func TestLedger_RecentMostRecentFirst(t *testing.T) {
	l := NewLedger()
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"rec-a", "rec-b", "rec-c"} {
		if _, err := l.Append(rec(id, "run-1", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	out := l.Recent(2)
	if len(out) != 2 || out[0].ID != "rec-c" || out[1].ID != "rec-b" {
		t.Fatalf("Recent(2) = %+v, want [rec-c, rec-b]", out)
	}
}
