// Package download harvests the materials of a meeting page into the
// downloads tree. Reaching the page and saving something from it is what
// marks the meeting as attended.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/attendbot/attend/internal/browser"
	"github.com/attendbot/attend/internal/eventlog"
	"github.com/attendbot/attend/internal/models"
)

const (
	NavigationTimeout = 30 * time.Second
	ItemTimeout       = 15 * time.Second
	SettleDelay       = 3 * time.Second
	ItemPause         = 1500 * time.Millisecond

	fallbackCount = 2
)

// ItemError is one artifact that could not be saved. It never fails a fetch.
type ItemError struct {
	Strategy string
	Label    string
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s item %q: %v", e.Strategy, e.Label, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Fetcher downloads meeting materials.
type Fetcher struct {
	root        string
	portal      models.Portal
	loc         *time.Location
	discoveries []discovery

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLocation sets the zone summary timestamps are written in.
func WithLocation(loc *time.Location) Option {
	return func(f *Fetcher) { f.loc = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithSleep replaces the pause used between items.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = fn }
}

// New returns a Fetcher writing below root.
func New(root string, portal models.Portal, opts ...Option) *Fetcher {
	f := &Fetcher{
		root:        root,
		portal:      portal,
		loc:         time.Local,
		discoveries: defaultDiscoveries(),
		now:         time.Now,
		sleep:       sleep,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Folder returns the directory materials for class and meeting are saved in.
func (f *Fetcher) Folder(class, meeting string) string {
	return filepath.Join(f.root, FolderName(class), FolderName(meeting))
}

// Fetch opens the meeting on the context's primary page and saves what it
// finds. Every discovery strategy runs and results accumulate. When nothing
// is saved, a screenshot and the page markup are stored instead, so a
// successful fetch always yields at least one artifact.
func (f *Fetcher) Fetch(ctx context.Context, bctx browser.Context, class string, meeting models.MeetingLink) (models.DownloadResult, error) {
	page := bctx.Page()
	log := slog.With("class", class, "meeting", meeting.DisplayName)

	log.Info("Opening meeting", "url", meeting.URL)
	if err := page.Goto(ctx, meeting.URL, NavigationTimeout); err != nil {
		return models.DownloadResult{}, fmt.Errorf("opening meeting %q: %w", meeting.DisplayName, err)
	}
	if err := f.sleep(ctx, SettleDelay); err != nil {
		return models.DownloadResult{}, err
	}

	folder := f.Folder(class, meeting.DisplayName)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return models.DownloadResult{}, fmt.Errorf("creating meeting folder: %w", err)
	}

	itemLog := eventlog.Discard
	if jl, err := eventlog.Open(filepath.Join(folder, ItemLogFile)); err != nil {
		log.Warn("Item log unavailable", "error", err)
	} else {
		itemLog = jl
		defer jl.Close() //nolint:errcheck
	}

	t := &target{
		bctx:    bctx,
		page:    page,
		force:   f.portal.ForceDownloadURL,
		timeout: ItemTimeout,
	}
	if u, err := url.Parse(page.URL()); err == nil && u.IsAbs() {
		t.pageURL = u
	} else if u, err := url.Parse(meeting.URL); err == nil {
		t.pageURL = u
	}

	res := models.DownloadResult{Folder: folder}
	seen := map[string]bool{}
	taken := map[string]bool{}

	for _, d := range f.discoveries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		found, err := d.find(ctx, t)
		if err != nil {
			log.Warn("Discovery failed", "strategy", d.name, "error", err)
			logItem(itemLog, d.name, "", "", "discovery_failed")
			continue
		}
		log.Debug("Discovery finished", "strategy", d.name, "candidates", len(found))

		saved := 0
		for _, c := range found {
			if seen[c.key] {
				logItem(itemLog, d.name, c.label, "", "duplicate")
				continue
			}
			path, err := f.capture(ctx, folder, c, taken)
			if err != nil {
				ie := &ItemError{Strategy: d.name, Label: c.label, Err: err}
				log.Warn("Item not saved", "error", ie)
				logItem(itemLog, d.name, c.label, "", "failed")
			} else {
				seen[c.key] = true
				saved++
				res.ArtifactPaths = append(res.ArtifactPaths, path)
				log.Info("Saved item", "strategy", d.name, "file", filepath.Base(path))
				logItem(itemLog, d.name, c.label, filepath.Base(path), "saved")
			}
			if err := f.sleep(ctx, ItemPause); err != nil {
				return res, err
			}
		}
		if saved > 0 {
			res.ItemCount += saved
			res.StrategyUsed = append(res.StrategyUsed, d.name)
		}
	}

	var fetchErr error
	if res.ItemCount == 0 {
		log.Info("No downloadable materials, capturing the page instead")
		paths, err := f.captureFallback(ctx, page, folder, FolderName(meeting.DisplayName))
		if err != nil {
			fetchErr = fmt.Errorf("capturing meeting page: %w", err)
			logItem(itemLog, StrategyFallback, meeting.DisplayName, "", "failed")
		} else {
			res.ItemCount = fallbackCount
			res.StrategyUsed = append(res.StrategyUsed, StrategyFallback)
			res.ArtifactPaths = append(res.ArtifactPaths, paths...)
			for _, p := range paths {
				logItem(itemLog, StrategyFallback, meeting.DisplayName, filepath.Base(p), "saved")
			}
		}
	}

	res.Status = models.DownloadNoFiles
	if res.ItemCount > 0 {
		res.Status = models.DownloadSuccess
	}

	summary := newSummary(class, meeting.DisplayName, f.now().In(f.loc), res)
	if err := writeSummary(folder, summary); err != nil {
		log.Warn("Summary not written", "error", err)
	}

	if fetchErr != nil {
		return res, fetchErr
	}
	log.Info("Materials saved", "items", res.ItemCount, "strategies", res.StrategyUsed)
	return res, nil
}

// capture saves c under a file name not yet used by this fetch. Files left
// by earlier fetches of the same meeting are overwritten.
func (f *Fetcher) capture(ctx context.Context, folder string, c candidate, taken map[string]bool) (string, error) {
	dl, err := c.retrieve(ctx)
	if err != nil {
		return "", err
	}
	if dl == nil {
		return "", errors.New("no download")
	}

	name := filepath.Base(dl.SuggestedFilename())
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = c.fallbackName
	}
	if c.prefixed {
		name = FileLabel(c.label) + "_" + name
	}
	name = freeName(name, taken)
	path := filepath.Join(folder, name)
	if err := dl.SaveAs(path); err != nil {
		return "", fmt.Errorf("saving %s: %w", name, err)
	}
	taken[name] = true
	return path, nil
}

// freeName returns name, or name with a _2, _3, ... suffix before the
// extension when taken already holds it.
func freeName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		if candidate := fmt.Sprintf("%s_%d%s", stem, i, ext); !taken[candidate] {
			return candidate
		}
	}
}

func (f *Fetcher) captureFallback(ctx context.Context, page browser.Page, folder, base string) ([]string, error) {
	shot := filepath.Join(folder, base+"_screenshot.png")
	if err := page.Screenshot(ctx, shot); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	markup, err := page.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page markup: %w", err)
	}
	htmlPath := filepath.Join(folder, base+"_content.html")
	if err := os.WriteFile(htmlPath, []byte(markup), 0o644); err != nil {
		return nil, fmt.Errorf("writing page markup: %w", err)
	}
	return []string{shot, htmlPath}, nil
}

func logItem(l eventlog.Logger, strategy, label, file, status string) {
	if err := l.Log(eventlog.NewEvent(eventlog.EventDownloadItem, eventlog.DownloadItemData(strategy, label, file, status))); err != nil {
		slog.Debug("Item log write failed", "error", err)
	}
}
