package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SideOutputWriter appends JSON records as NDJSON lines under
// <root>/<stage>/year=YYYY/month=MM/day=DD/<stage>-YYYYMMDD.ndjson, per the
// stage side-output naming convention every downstream pipeline stage
// follows.
type SideOutputWriter struct {
	mu   sync.Mutex
	root string
	now  func() time.Time
}

// NewSideOutputWriter returns a writer rooted at root. A nil now defaults to
// time.Now.
func NewSideOutputWriter(root string, now func() time.Time) *SideOutputWriter {
	if now == nil {
		now = time.Now
	}
	return &SideOutputWriter{root: root, now: now}
}

// Write appends record as one NDJSON line under stage (e.g. "quality/accepted",
// "enriched", "conflated-venue").
func (w *SideOutputWriter) Write(stage string, record any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal side-output record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	t := w.now().UTC()
	dir := filepath.Join(w.root, stage,
		fmt.Sprintf("year=%04d", t.Year()),
		fmt.Sprintf("month=%02d", t.Month()),
		fmt.Sprintf("day=%02d", t.Day()),
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("orchestrator: mkdir side-output dir: %w", err)
	}

	base := filepath.Base(stage)
	name := fmt.Sprintf("%s-%s.ndjson", base, t.Format("20060102"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("orchestrator: open side-output file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("orchestrator: write side-output line: %w", err)
	}
	return nil
}
