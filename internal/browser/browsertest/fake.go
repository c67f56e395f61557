// Package browsertest provides scripted in-memory implementations of the
// browser interfaces for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/attendbot/attend/internal/browser"
	"github.com/attendbot/attend/internal/models"
)

// Download is a fake download that writes Body on SaveAs.
type Download struct {
	Name    string
	Body    []byte
	SaveErr error
}

func (d *Download) SuggestedFilename() string { return d.Name }

func (d *Download) SaveAs(path string) error {
	if d.SaveErr != nil {
		return d.SaveErr
	}
	return os.WriteFile(path, d.Body, 0o644)
}

// Element is a scripted element.
type Element struct {
	Attrs     map[string]string
	TextValue string
	IsVisible bool
	IsChecked bool

	// Download is started when the element is clicked.
	Download *Download
	ClickErr error
	OnClick  func()

	page   *Page
	Filled string
	Clicks int
}

func (e *Element) WaitVisible(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.IsVisible {
		return fmt.Errorf("%w: element not visible", browser.ErrTimeout)
	}
	return nil
}

func (e *Element) Visible(ctx context.Context, timeout time.Duration) (bool, error) {
	return e.IsVisible, ctx.Err()
}

func (e *Element) Checked(ctx context.Context) (bool, error) {
	return e.IsChecked, ctx.Err()
}

func (e *Element) Fill(ctx context.Context, value string) error {
	e.Filled = value
	return ctx.Err()
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Clicks++
	if e.ClickErr != nil {
		return e.ClickErr
	}
	if e.OnClick != nil {
		e.OnClick()
	}
	if e.Download != nil && e.page != nil {
		e.page.startDownload(e.Download)
	}
	return nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	return e.Attrs[name], ctx.Err()
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return e.TextValue, ctx.Err()
}

// Page is a scripted page. Selectors are matched by exact string.
type Page struct {
	mu sync.Mutex

	CurrentURL string
	HTML       string

	// Redirects maps a requested URL to the URL the page lands on.
	Redirects map[string]string
	GotoErr   map[string]error

	// Elements maps a selector to the elements it matches.
	Elements map[string][]*Element

	// Frames maps "frameSelector|selector" to an element inside a frame.
	Frames map[string]*Element

	// Downloads maps a URL to the download started by navigating to it.
	Downloads map[string]*Download

	// ScreenshotErr fails Screenshot when set.
	ScreenshotErr error

	Visits      []string
	Screenshots []string
	Moves       int
	Closed      bool

	pending *Download
}

var _ browser.Page = (*Page)(nil)

// Add registers elements under selector and returns the page for chaining.
func (p *Page) Add(selector string, els ...*Element) *Page {
	if p.Elements == nil {
		p.Elements = map[string][]*Element{}
	}
	for _, e := range els {
		e.page = p
	}
	p.Elements[selector] = append(p.Elements[selector], els...)
	return p
}

// AddFrame registers an element inside a frame.
func (p *Page) AddFrame(frameSelector, selector string, e *Element) *Page {
	if p.Frames == nil {
		p.Frames = map[string]*Element{}
	}
	e.page = p
	p.Frames[frameSelector+"|"+selector] = e
	return p
}

func (p *Page) startDownload(d *Download) {
	p.mu.Lock()
	p.pending = d
	p.mu.Unlock()
}

func (p *Page) Goto(ctx context.Context, url string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Visits = append(p.Visits, url)
	err := p.GotoErr[url]
	landing := url
	if to, ok := p.Redirects[url]; ok {
		landing = to
	}
	d := p.Downloads[url]
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.CurrentURL = landing
	if d != nil {
		p.startDownload(d)
	}
	return nil
}

func (p *Page) WaitForURL(ctx context.Context, _ string, _ time.Duration) error {
	return ctx.Err()
}

func (p *Page) URL() string { return p.CurrentURL }

func (p *Page) Content(ctx context.Context) (string, error) {
	return p.HTML, ctx.Err()
}

func (p *Page) Locate(selector string) browser.Element {
	if els := p.Elements[selector]; len(els) > 0 {
		return els[0]
	}
	return &Element{page: p}
}

func (p *Page) LocateInFrame(frameSelector, selector string) browser.Element {
	if e, ok := p.Frames[frameSelector+"|"+selector]; ok {
		return e
	}
	return &Element{page: p}
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	els := p.Elements[selector]
	out := make([]browser.Element, len(els))
	for i, e := range els {
		out[i] = e
	}
	return out, nil
}

func (p *Page) MoveMouse(ctx context.Context, _, _ float64) error {
	p.Moves++
	return ctx.Err()
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ScreenshotErr != nil {
		return p.ScreenshotErr
	}
	p.Screenshots = append(p.Screenshots, path)
	return os.WriteFile(path, []byte("\x89PNG fake"), 0o644)
}

func (p *Page) ExpectDownload(ctx context.Context, _ time.Duration, trigger func() error) (browser.Download, error) {
	p.startDownload(nil)
	if err := trigger(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	d := p.pending
	p.pending = nil
	p.mu.Unlock()
	if d == nil {
		return nil, fmt.Errorf("%w: no download started", browser.ErrTimeout)
	}
	return d, ctx.Err()
}

func (p *Page) Close() error {
	p.Closed = true
	return nil
}

// Context is a scripted browsing context around a primary Page.
type Context struct {
	Primary  *Page
	Jar      []models.Cookie
	JarErr   error
	Opened   []*Page
	Closed   bool
	CloseErr error
}

var _ browser.Context = (*Context)(nil)

func (c *Context) Page() browser.Page { return c.Primary }

// NewPage returns a page that shares the primary page's download table.
func (c *Context) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &Page{Downloads: c.Primary.Downloads}
	c.Opened = append(c.Opened, p)
	return p, nil
}

func (c *Context) Cookies(ctx context.Context) ([]models.Cookie, error) {
	if c.JarErr != nil {
		return nil, c.JarErr
	}
	return c.Jar, ctx.Err()
}

func (c *Context) Close() error {
	c.Closed = true
	return c.CloseErr
}

// ErrUnscripted is returned by Driver when no context is queued.
var ErrUnscripted = errors.New("browsertest: no context scripted")

// Driver hands out queued contexts in order and records the options used.
type Driver struct {
	Queue   []*Context
	Options []browser.ContextOptions
	Closed  bool
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) Open(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.Options = append(d.Options, opts)
	if len(d.Queue) == 0 {
		return nil, ErrUnscripted
	}
	c := d.Queue[0]
	d.Queue = d.Queue[1:]
	return c, nil
}

func (d *Driver) Close() error {
	d.Closed = true
	return nil
}
