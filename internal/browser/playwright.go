package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/attendbot/attend/internal/models"
	"github.com/playwright-community/playwright-go"
)

// DefaultUserAgent is sent when ContextOptions.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var baseLaunchArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-web-security",
	"--disable-features=VizDisplayCompositor",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-renderer-backgrounding",
	"--disable-features=TranslateUI",
	"--disable-ipc-flooding-protection",
	"--no-first-run",
	"--no-zygote",
	"--disable-gpu",
}

var headlessLaunchArgs = []string{
	"--disable-extensions-http-throttling",
	"--disable-component-extensions-with-background-pages",
	"--disable-default-apps",
	"--mute-audio",
	"--no-default-browser-check",
	"--autoplay-policy=user-gesture-required",
	"--disable-background-mode",
}

// stealthScript hides the usual automation fingerprints before any page
// script runs.
const stealthScript = `
Object.defineProperty(navigator, "webdriver", { get: () => undefined });
window.chrome = { runtime: {}, loadTimes: function () {}, csi: function () {}, app: {} };
Object.defineProperty(navigator, "plugins", { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, "languages", { get: () => ["id-ID", "id"] });
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) =>
  parameters.name === "notifications"
    ? Promise.resolve({ state: Notification.permission })
    : originalQuery(parameters);
`

// PlaywrightDriver launches Chromium through playwright-go. The playwright
// server is started on the first Open.
type PlaywrightDriver struct {
	mu   sync.Mutex
	pw   *playwright.Playwright
	open []*playwrightContext

	// Install downloads the browser binaries on first use when set.
	Install bool
}

// NewPlaywrightDriver creates a driver. Nothing is started until Open.
func NewPlaywrightDriver() *PlaywrightDriver {
	return &PlaywrightDriver{}
}

func (d *PlaywrightDriver) runtime() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw != nil {
		return d.pw, nil
	}
	if d.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("installing playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	d.pw = pw
	return pw, nil
}

func (d *PlaywrightDriver) Open(ctx context.Context, opts ContextOptions) (Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := d.runtime()
	if err != nil {
		return nil, err
	}

	args := slices.Clone(baseLaunchArgs)
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	args = append(args, "--user-agent="+userAgent)
	if opts.Headless {
		args = append(args, headlessLaunchArgs...)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
	})
	if err != nil {
		return nil, fmt.Errorf("launching chromium: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		UserAgent:        playwright.String(userAgent),
		Viewport:         &playwright.Size{Width: 1920, Height: 1080},
		Permissions:      []string{"notifications"},
		AcceptDownloads:  playwright.Bool(true),
		ExtraHttpHeaders: opts.ExtraHeaders,
	}
	if opts.Locale != "" {
		ctxOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		ctxOpts.TimezoneId = playwright.String(opts.TimezoneID)
	}

	bctx, err := b.NewContext(ctxOpts)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		slog.Debug("Adding stealth init script failed", "error", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("opening page: %w", err)
	}
	if err := page.Mouse().Move(rand.Float64()*100, rand.Float64()*100); err != nil {
		slog.Debug("Initial mouse move failed", "error", err)
	}

	c := &playwrightContext{browser: b, ctx: bctx, page: &playwrightPage{page: page}}

	d.mu.Lock()
	d.open = append(d.open, c)
	d.mu.Unlock()

	return c, nil
}

func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, c := range d.open {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.open = nil

	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping playwright: %w", err))
		}
		d.pw = nil
	}
	return errors.Join(errs...)
}

type playwrightContext struct {
	once    sync.Once
	browser playwright.Browser
	ctx     playwright.BrowserContext
	page    *playwrightPage
}

func (c *playwrightContext) Page() Page { return c.page }

func (c *playwrightContext) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	return &playwrightPage{page: p}, nil
}

func (c *playwrightContext) Cookies(ctx context.Context) ([]models.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.ctx.Cookies()
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	cookies := make([]models.Cookie, 0, len(raw))
	for _, rc := range raw {
		ck := models.Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   rc.Domain,
			Path:     rc.Path,
			Expires:  rc.Expires,
			HTTPOnly: rc.HttpOnly,
			Secure:   rc.Secure,
		}
		if rc.SameSite != nil {
			ck.SameSite = string(*rc.SameSite)
		}
		cookies = append(cookies, ck)
	}
	return cookies, nil
}

func (c *playwrightContext) Close() error {
	var err error
	c.once.Do(func() {
		err = c.browser.Close()
	})
	return err
}

type playwrightPage struct {
	page playwright.Page
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func wrapTimeout(err error) error {
	if err != nil && errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (p *playwrightPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(timeout),
	}); err != nil {
		return wrapTimeout(err)
	}
	return wrapTimeout(p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: millis(timeout),
	}))
}

func (p *playwrightPage) WaitForURL(ctx context.Context, pattern string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapTimeout(p.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{Timeout: millis(timeout)}))
}

func (p *playwrightPage) URL() string { return p.page.URL() }

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *playwrightPage) Locate(selector string) Element {
	return &playwrightElement{loc: p.page.Locator(selector).First()}
}

func (p *playwrightPage) LocateInFrame(frameSelector, selector string) Element {
	return &playwrightElement{loc: p.page.FrameLocator(frameSelector).Locator(selector).First()}
}

func (p *playwrightPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locs, err := p.page.Locator(selector).All()
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(locs))
	for i, l := range locs {
		out[i] = &playwrightElement{loc: l}
	}
	return out, nil
}

func (p *playwrightPage) MoveMouse(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse().Move(x, y)
}

func (p *playwrightPage) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (p *playwrightPage) ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (Download, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dl, err := p.page.ExpectDownload(trigger, playwright.PageExpectDownloadOptions{Timeout: millis(timeout)})
	if err != nil {
		return nil, wrapTimeout(err)
	}
	return dl, nil
}

func (p *playwrightPage) Close() error { return p.page.Close() }

type playwrightElement struct {
	loc playwright.Locator
}

func (e *playwrightElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapTimeout(e.loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: millis(timeout),
	}))
}

func (e *playwrightElement) Visible(ctx context.Context, timeout time.Duration) (bool, error) {
	err := e.WaitVisible(ctx, timeout)
	if errors.Is(err, ErrTimeout) {
		return false, nil
	}
	return err == nil, err
}

func (e *playwrightElement) Checked(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.loc.IsChecked()
}

func (e *playwrightElement) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.loc.Fill(value)
}

func (e *playwrightElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.loc.Click()
}

func (e *playwrightElement) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.loc.GetAttribute(name)
}

func (e *playwrightElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.loc.TextContent()
}
