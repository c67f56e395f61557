// Package cache keeps the last timetable and meeting list seen on the
// dashboard so offline commands can show them without logging in.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/attendbot/attend/internal/models"
)

// Snapshot is the dashboard state captured by a run.
type Snapshot struct {
	Username string                 `json:"username"`
	TakenAt  time.Time              `json:"takenAt"`
	Entries  []models.ScheduleEntry `json:"entries"`
	Meetings []models.MeetingLink   `json:"meetings"`
}

// Cache stores snapshots as one JSON file per account.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New creates a cache rooted at dir. An empty dir disables caching.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Key identifies an account on a portal.
func Key(baseURL, username string) string {
	h := sha256.New()
	_ = writeString(h, baseURL)  //nolint:errcheck
	_ = writeString(h, username) //nolint:errcheck
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Get returns the stored snapshot for key.
func (c *Cache) Get(key string) (*Snapshot, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		// Invalid entry, treat as miss
		return nil, false
	}
	return &s, true
}

// Put replaces the snapshot for key.
func (c *Cache) Put(key string, s *Snapshot) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// Clear removes the cache directory. It refuses to touch a directory holding
// anything other than snapshot files.
func (c *Cache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			return fmt.Errorf("cache directory contains subdirectories - refusing to delete for safety")
		}
		if filepath.Ext(e.Name()) != ".json" {
			return fmt.Errorf("cache directory contains non-cache files - refusing to delete for safety")
		}
	}
	return os.RemoveAll(c.dir)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// writeString writes s with a null delimiter so adjacent fields cannot collide.
func writeString(w io.Writer, s string) error {
	_, err := w.Write([]byte(s + "\x00"))
	return err
}
