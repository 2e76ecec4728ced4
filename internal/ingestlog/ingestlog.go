// Package ingestlog implements the daily-rotated, append-only NDJSON log
// that every accepted envelope is written to, plus a per-consumer
// reader that tracks byte offsets so stage consumers can resume after a
// crash without reprocessing everything already acked. Ordering and
// at-least-once semantics follow directly from the append-only discipline:
// readers only ever return complete, newline-terminated lines and never
// advance a saved offset except through an explicit ack.
package ingestlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nspilman/sms-venue-pipeline/internal/ingestmeta"
)

var (
	ErrInvalidInput = errors.New("ingestlog: invalid input")
	ErrNoCurrentLog = errors.New("ingestlog: no current log file")
)

const currentPointerName = "ingest.ndjson"

// Writer appends accepted envelope lines to a daily-rotated file and keeps
// currentPointerName pointing at today's file, replacing it atomically
// whenever the day rolls over. A single mutex serializes appends so that
// log order matches accept-completion order across concurrent writers.
type Writer struct {
	mu      sync.Mutex
	dir     string
	now     func() time.Time
	current string // basename of the file currentPointerName currently targets
}

// NewWriter returns a Writer rooted at dir, creating dir if needed.
func NewWriter(dir string) (*Writer, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: dir required", ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ingestlog: mkdir: %w", err)
	}
	return &Writer{dir: filepath.Clean(dir), now: time.Now}, nil
}

func dailyName(t time.Time) string {
	return "ingest_" + t.UTC().Format("2006-01-02") + ".ndjson"
}

// Append writes one JSON-encodable record as a single newline-terminated
// line to today's log file, rotating the current pointer first if the UTC
// date has changed since the last append.
func (w *Writer) Append(ctx context.Context, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ingestlog: marshal: %w", err)
	}
	if bytes.ContainsRune(b, '\n') {
		return fmt.Errorf("%w: record encodes embedded newline", ErrInvalidInput)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	name := dailyName(w.now())
	if err := w.ensurePointer(name); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ingestlog: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("ingestlog: write: %w", err)
	}
	return nil
}

// ensurePointer makes currentPointerName resolve to name, replacing it
// atomically via rename-into-place if it does not already.
func (w *Writer) ensurePointer(name string) error {
	if w.current == name {
		return nil
	}
	pointerPath := filepath.Join(w.dir, currentPointerName)
	target := filepath.Join(w.dir, name)

	// Ensure the target file exists so a reader never sees a dangling pointer.
	if _, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
		return fmt.Errorf("ingestlog: create daily file: %w", err)
	}

	if err := os.Symlink(name, pointerPath+".tmp"); err != nil {
		// Symlinks unavailable (e.g. some filesystems): fall back to a copy
		// of the current filename into a plain marker file.
		if err2 := os.WriteFile(pointerPath+".tmp", []byte(name), 0o644); err2 != nil {
			return fmt.Errorf("ingestlog: write pointer marker: %w", err2)
		}
	}
	if err := os.Rename(pointerPath+".tmp", pointerPath); err != nil {
		return fmt.Errorf("ingestlog: rotate pointer: %w", err)
	}
	w.current = name
	return nil
}

// CurrentFile resolves currentPointerName to the absolute path of today's
// log file, whether the pointer is a real symlink or a plain marker file.
func (w *Writer) CurrentFile() (string, error) {
	return resolveCurrentFile(w.dir)
}

func resolveCurrentFile(dir string) (string, error) {
	pointerPath := filepath.Join(dir, currentPointerName)
	target, err := os.Readlink(pointerPath)
	if err != nil {
		b, rerr := os.ReadFile(pointerPath)
		if rerr != nil {
			return "", fmt.Errorf("%w: %v", ErrNoCurrentLog, err)
		}
		target = strings.TrimSpace(string(b))
	}
	if target == "" {
		return "", ErrNoCurrentLog
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	return target, nil
}

// line is the minimal shape read back to extract envelope_id for acking and
// scanning; full line bytes are still returned to callers untouched.
type line struct {
	EnvelopeID string `json:"envelope_id"`
}

// Status reports offset is consumer's saved byte offset, fileEnd is the
// current log file's length, and lagBytes is fileEnd-offset. A saved offset
// past fileEnd is treated as 0, so lagBytes is then fileEnd.
type Status struct {
	Offset   int64
	FileEnd  int64
	LagBytes int64
}

// Reader tracks per-consumer offsets into the current ingest log via an
// ingestmeta.Store, returning complete lines only and never advancing the
// saved offset except through AckThrough.
type Reader struct {
	dir   string
	meta  ingestmeta.Store
	clock func() time.Time
}

// NewReader returns a Reader over dir's rotated log files, persisting
// consumer offsets in meta.
func NewReader(dir string, meta ingestmeta.Store) *Reader {
	return &Reader{dir: filepath.Clean(dir), meta: meta, clock: time.Now}
}

func (r *Reader) consumerKey(consumer string) string {
	return "ingestlog:" + consumer
}

func (r *Reader) Status(ctx context.Context, consumer string) (Status, error) {
	path, err := resolveCurrentFile(r.dir)
	if err != nil {
		return Status{}, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return Status{}, fmt.Errorf("ingestlog: stat current: %w", err)
	}
	off, _, err := r.meta.Offset(ctx, r.consumerKey(consumer))
	if err != nil {
		return Status{}, fmt.Errorf("ingestlog: load offset: %w", err)
	}
	if off > fi.Size() {
		off = 0
	}
	return Status{Offset: off, FileEnd: fi.Size(), LagBytes: fi.Size() - off}, nil
}

// ReadNext returns up to maxLines complete lines starting at consumer's
// saved offset, without advancing it. If the saved offset exceeds the
// current file's length (e.g. after a date rollover), it is treated as 0.
func (r *Reader) ReadNext(ctx context.Context, consumer string, maxLines int) (lines [][]byte, lastEnvelopeID string, err error) {
	if maxLines <= 0 {
		return nil, "", fmt.Errorf("%w: maxLines must be positive", ErrInvalidInput)
	}
	path, err := resolveCurrentFile(r.dir)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("ingestlog: open current: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("ingestlog: stat current: %w", err)
	}

	off, _, err := r.meta.Offset(ctx, r.consumerKey(consumer))
	if err != nil {
		return nil, "", fmt.Errorf("ingestlog: load offset: %w", err)
	}
	if off > fi.Size() {
		off = 0
	}
	if _, err := f.Seek(off, 0); err != nil {
		return nil, "", fmt.Errorf("ingestlog: seek: %w", err)
	}

	reader := bufio.NewReader(f)
	out := make([][]byte, 0, maxLines)
	for len(out) < maxLines {
		raw, rerr := reader.ReadBytes('\n')
		if errors.Is(rerr, io.EOF) {
			break // an unterminated tail is left for a later read
		}
		if rerr != nil {
			return nil, "", fmt.Errorf("ingestlog: read: %w", rerr)
		}
		cp := bytes.TrimRight(raw, "\n")
		out = append(out, cp)

		var ln line
		if jsonErr := json.Unmarshal(cp, &ln); jsonErr == nil && ln.EnvelopeID != "" {
			lastEnvelopeID = ln.EnvelopeID
		}
	}
	return out, lastEnvelopeID, nil
}

// AckThrough scans forward from consumer's saved offset until it finds a
// line whose envelope_id equals envelopeID, then persists the cumulative
// byte offset through (and including) that line.
func (r *Reader) AckThrough(ctx context.Context, consumer, envelopeID string) error {
	if envelopeID == "" {
		return fmt.Errorf("%w: envelopeID required", ErrInvalidInput)
	}
	path, err := resolveCurrentFile(r.dir)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ingestlog: open current: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("ingestlog: stat current: %w", err)
	}

	off, _, err := r.meta.Offset(ctx, r.consumerKey(consumer))
	if err != nil {
		return fmt.Errorf("ingestlog: load offset: %w", err)
	}
	if off > fi.Size() {
		off = 0
	}
	if _, err := f.Seek(off, 0); err != nil {
		return fmt.Errorf("ingestlog: seek: %w", err)
	}

	reader := bufio.NewReader(f)
	cursor := off
	for {
		raw, rerr := reader.ReadBytes('\n')
		if len(raw) > 0 {
			cursor += int64(len(raw))
			trimmed := bytes.TrimRight(raw, "\n")
			var ln line
			if jsonErr := json.Unmarshal(trimmed, &ln); jsonErr == nil && ln.EnvelopeID == envelopeID {
				return r.meta.CommitOffset(ctx, r.consumerKey(consumer), cursor)
			}
		}
		if rerr != nil {
			break
		}
	}
	return fmt.Errorf("ingestlog: envelope %s not found ahead of saved offset", envelopeID)
}

// FindEnvelopeByID linearly scans the current log file for a line whose
// envelope_id matches, returning the raw line bytes.
func (r *Reader) FindEnvelopeByID(ctx context.Context, envelopeID string) ([]byte, bool, error) {
	path, err := resolveCurrentFile(r.dir)
	if err != nil {
		return nil, false, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("ingestlog: open current: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		var ln line
		if err := json.Unmarshal(raw, &ln); err == nil && ln.EnvelopeID == envelopeID {
			cp := make([]byte, len(raw))
			copy(cp, raw)
			return cp, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("ingestlog: scan: %w", err)
	}
	return nil, false, nil
}

// ResolvePayloadPath is a filesystem-CAS-only helper: it maps a
// "cas:sha256:<hex>" ref to the on-disk path FSStore would have written,
// without depending on the cas package (avoiding an import cycle, since
// callers already hold the CAS root).
func ResolvePayloadPath(casRoot, payloadRef string) (string, bool) {
	const prefix = "cas:sha256:"
	if !strings.HasPrefix(payloadRef, prefix) {
		return "", false
	}
	digest := strings.TrimPrefix(payloadRef, prefix)
	if len(digest) != 64 {
		return "", false
	}
	return filepath.Join(casRoot, digest[:2], digest[2:4], digest), true
}
