package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const runLogSuffix = "-run.jsonl"

// RunLogPath names the log of a run started at at. Names sort by start time.
func RunLogPath(dir string, at time.Time) string {
	return filepath.Join(dir, at.UTC().Format("20060102T150405Z")+runLogSuffix)
}

// ErrClosed is returned by Log after Close.
var ErrClosed = errors.New("event log closed")

// Logger is where runs and downloads report what they did.
type Logger interface {
	Log(event Event) error
	io.Closer
}

// Discard drops every event. Used when no log directory is configured or
// the file cannot be opened.
var Discard Logger = discard{}

type discard struct{}

func (discard) Log(Event) error { return nil }
func (discard) Close() error    { return nil }

// File appends events to an NDJSON file. Each event is marshaled first and
// written with a single call, so a failed marshal never leaves half a line.
type File struct {
	path string

	mu     sync.Mutex
	f      *os.File
	count  int
	closed bool
}

// Open opens path for appending and creates missing parent directories.
func Open(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &File{path: path, f: f}, nil
}

func (l *File) Log(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.Type, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if _, err := l.f.Write(line); err != nil {
		return err
	}
	l.count++
	return nil
}

// Count is the number of events written through l.
func (l *File) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *File) Path() string { return l.path }

// Close is safe to call more than once.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}
