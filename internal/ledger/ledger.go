// Package ledger is the append-only attendance history file.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode"

	"github.com/attendbot/attend/internal/models"
)

// Ledger stores attendance records as a pretty-printed JSON array. Existing
// records are carried as raw JSON, so fields this version does not know
// about survive an append.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// New returns a ledger backed by path.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Path() string { return l.path }

// Append adds rec after every existing record. The file's existing bytes are
// kept as they are and the new record is spliced in before the closing
// bracket.
func (l *Ledger) Append(rec models.AttendanceRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readRaw()
	if err != nil {
		return err
	}

	entry, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	var data []byte
	if len(records) == 0 {
		data = append([]byte("[\n  "), entry...)
	} else {
		existing, err := os.ReadFile(l.path)
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		head := bytes.TrimRightFunc(existing, unicode.IsSpace)
		head = bytes.TrimRightFunc(head[:len(head)-1], unicode.IsSpace)
		data = append(head, ",\n  "...)
		data = append(data, entry...)
	}
	data = append(data, "\n]"...)

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	return nil
}

// encodeRecord renders rec as an array element two spaces deep, without
// HTML escaping.
func encodeRecord(rec models.AttendanceRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("  ", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("marshaling attendance record: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Records decodes every record in file order.
func (l *Ledger) Records() ([]models.AttendanceRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raws, err := l.readRaw()
	if err != nil {
		return nil, err
	}
	out := make([]models.AttendanceRecord, 0, len(raws))
	for i, r := range raws {
		var rec models.AttendanceRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("ledger record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of records without decoding them.
func (l *Ledger) Len() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raws, err := l.readRaw()
	return len(raws), err
}

func (l *Ledger) readRaw() ([]json.RawMessage, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("ledger %s is not a JSON array: %w", l.path, err)
	}
	return raws, nil
}
