package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/attendbot/attend/internal/browser"
)

// Strategy names, in the order they run.
const (
	StrategyDirect   = "direct"
	StrategyForce    = "force-download"
	StrategyEmbedded = "embedded"
	StrategyContent  = "content"
	StrategyFallback = "fallback"
)

const (
	directSelector = `a[href*="download"], a[href*=".pdf"], a[href*=".ppt"], a[href*=".pptx"], ` +
		`a[href*=".doc"], a[href*=".docx"], a[href*=".zip"], a[href*=".rar"], a[href*=".xlsx"], a[href*=".xls"]`
	forceSelector    = `a[onclick*="force_download"]`
	embeddedSelector = `iframe[src*=".pdf"], embed[src*=".pdf"], object[data*=".pdf"]`
	contentSelector  = `.content a, .materi a, .material a, .download a`
)

var forceCall = regexp.MustCompile(`force_download\(['"]([^'"]+)['"]\)`)

// candidate is one artifact a discovery step wants to capture.
type candidate struct {
	label string
	// key identifies the target across strategies.
	key string
	// prefixed candidates are stored as "<label>_<suggested name>".
	prefixed bool
	// fallbackName is used when the download suggests no filename.
	fallbackName string
	retrieve     func(ctx context.Context) (browser.Download, error)
}

// discovery finds candidates on the meeting page.
type discovery struct {
	name string
	find func(ctx context.Context, t *target) ([]candidate, error)
}

// target is the meeting page being harvested.
type target struct {
	bctx    browser.Context
	page    browser.Page
	pageURL *url.URL
	force   func(file string) string
	timeout time.Duration
}

func (t *target) resolve(ref string) string {
	if t.pageURL == nil {
		return ref
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return t.pageURL.ResolveReference(u).String()
}

// clickDownload captures the download started by clicking el.
func (t *target) clickDownload(el browser.Element) func(ctx context.Context) (browser.Download, error) {
	return func(ctx context.Context) (browser.Download, error) {
		return t.page.ExpectDownload(ctx, t.timeout, func() error { return el.Click(ctx) })
	}
}

// openDownload captures the download started by opening href in a new page.
// Navigations that turn into downloads abort, so the navigation error itself
// is not fatal.
func (t *target) openDownload(href string) func(ctx context.Context) (browser.Download, error) {
	return func(ctx context.Context) (browser.Download, error) {
		p, err := t.bctx.NewPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("opening page: %w", err)
		}
		defer p.Close() //nolint:errcheck

		return p.ExpectDownload(ctx, t.timeout, func() error {
			if err := p.Goto(ctx, href, t.timeout); err != nil {
				slog.Debug("Download navigation ended", "url", href, "error", err)
			}
			return nil
		})
	}
}

func defaultDiscoveries() []discovery {
	return []discovery{
		{name: StrategyDirect, find: linkDiscovery(directSelector, "file", false)},
		{name: StrategyForce, find: findForceDownloads},
		{name: StrategyEmbedded, find: findEmbedded},
		{name: StrategyContent, find: linkDiscovery(contentSelector, "content_file", true)},
	}
}

// linkDiscovery clicks every downloadable anchor matching selector.
func linkDiscovery(selector, defaultLabel string, skipScript bool) func(context.Context, *target) ([]candidate, error) {
	return func(ctx context.Context, t *target) ([]candidate, error) {
		els, err := t.page.QueryAll(ctx, selector)
		if err != nil {
			return nil, err
		}
		var out []candidate
		for _, el := range els {
			href, err := el.Attribute(ctx, "href")
			if err != nil || href == "" || !IsDownloadable(href) {
				continue
			}
			if skipScript && strings.Contains(href, "javascript:") {
				continue
			}
			out = append(out, candidate{
				label:        textOr(ctx, el, defaultLabel),
				key:          t.resolve(href),
				prefixed:     true,
				fallbackName: "unknown_file",
				retrieve:     t.clickDownload(el),
			})
		}
		return out, nil
	}
}

func findForceDownloads(ctx context.Context, t *target) ([]candidate, error) {
	els, err := t.page.QueryAll(ctx, forceSelector)
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, el := range els {
		onclick, err := el.Attribute(ctx, "onclick")
		if err != nil {
			continue
		}
		m := forceCall.FindStringSubmatch(onclick)
		if m == nil {
			continue
		}
		file := m[1]
		href := t.force(file)
		out = append(out, candidate{
			label:        textOr(ctx, el, file),
			key:          href,
			prefixed:     true,
			fallbackName: file,
			retrieve:     t.openDownload(href),
		})
	}
	return out, nil
}

func findEmbedded(ctx context.Context, t *target) ([]candidate, error) {
	els, err := t.page.QueryAll(ctx, embeddedSelector)
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, el := range els {
		src, _ := el.Attribute(ctx, "src") //nolint:errcheck
		if src == "" {
			src, _ = el.Attribute(ctx, "data") //nolint:errcheck
		}
		if !strings.Contains(src, ".pdf") {
			continue
		}
		href := t.resolve(src)
		out = append(out, candidate{
			label:        "embedded",
			key:          href,
			fallbackName: fmt.Sprintf("embedded_%d.pdf", time.Now().UnixMilli()),
			retrieve:     t.openDownload(href),
		})
	}
	return out, nil
}

func textOr(ctx context.Context, el browser.Element, def string) string {
	text, err := el.Text(ctx)
	if err != nil {
		return def
	}
	if text = strings.TrimSpace(text); text == "" {
		return def
	}
	return text
}
