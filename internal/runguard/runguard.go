// Package runguard ensures at most one attendance run is in flight.
package runguard

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrLocked is returned by the lock primitives when another process holds
// the lock file.
var ErrLocked = errors.New("run lock held by another process")

// Guard is a non-blocking single-slot gate. Callers that find it taken are
// expected to drop their work rather than wait.
//
// The zero value guards one process. A guard from NewFileGuard also takes an
// exclusive lock on a file, so separate processes sharing the file exclude
// each other.
type Guard struct {
	busy atomic.Bool
	path string

	mu   sync.Mutex
	file *os.File
}

// NewFileGuard returns a guard that also locks path while it is held.
func NewFileGuard(path string) *Guard {
	return &Guard{path: path}
}

// Path is the lock file, empty for an in-process guard.
func (g *Guard) Path() string { return g.path }

// TryEnter claims the slot. It reports false if a run already holds it, here
// or in another process. A lock file that cannot be opened at all is logged
// and the guard falls back to excluding runs in this process only.
func (g *Guard) TryEnter() bool {
	if !g.busy.CompareAndSwap(false, true) {
		return false
	}
	if g.path == "" {
		return true
	}

	f, err := openLocked(g.path)
	switch {
	case errors.Is(err, ErrLocked):
		g.busy.Store(false)
		return false
	case err != nil:
		slog.Warn("Run lock unavailable, guarding this process only", "path", g.path, "error", err)
		return true
	}
	g.mu.Lock()
	g.file = f
	g.mu.Unlock()
	return true
}

// Exit releases the slot. Releasing a free slot is a no-op.
func (g *Guard) Exit() {
	g.mu.Lock()
	if g.file != nil {
		if err := unlock(g.file); err != nil {
			slog.Debug("Releasing run lock", "path", g.path, "error", err)
		}
		g.file = nil
	}
	g.mu.Unlock()
	g.busy.Store(false)
}

// Running reports whether the slot is held, here or by another process.
func (g *Guard) Running() bool {
	if g.busy.Load() {
		return true
	}
	if g.path == "" {
		return false
	}
	f, err := openLocked(g.path)
	if err != nil {
		return errors.Is(err, ErrLocked)
	}
	_ = unlock(f) //nolint:errcheck
	return false
}

// Do runs fn if the slot is free and releases it afterwards, even if fn
// panics. ran is false when fn was skipped.
func (g *Guard) Do(fn func() error) (ran bool, err error) {
	if !g.TryEnter() {
		return false, nil
	}
	defer g.Exit()
	return true, fn()
}

// openLocked opens path and takes the lock without blocking. The holder's
// pid is written into the file for whoever finds it locked.
func openLocked(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := lock(f); err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0) //nolint:errcheck
	}
	return f, nil
}
