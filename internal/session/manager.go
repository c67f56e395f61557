package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/attendbot/attend/internal/browser"
	"github.com/attendbot/attend/internal/models"
)

// Strategy names one way of reaching the authenticated member area.
type Strategy string

const (
	// StrategyBypass reuses persisted (or synthesized) cookies as a request
	// header and skips the login form.
	StrategyBypass Strategy = "bypass"
	// StrategyNormal submits the login form in a headless browser.
	StrategyNormal Strategy = "normal"
	// StrategyInteractive submits the login form in a visible browser and
	// gives a human time to solve a visual challenge.
	StrategyInteractive Strategy = "interactive"
)

const (
	DefaultMaxAttempts   = 3
	DefaultRetryDelay    = 3 * time.Second
	DefaultChallengeWait = 60 * time.Second

	bypassTimeout   = 15 * time.Second
	loginTimeout    = 30 * time.Second
	submitTimeout   = 15 * time.Second
	settleDelay     = 2 * time.Second
	fieldDelay      = time.Second
	memberURLGlob   = "**/member*"
	usernameField   = `input[name="username"]`
	passwordField   = `input[name="pswd"]`
	submitButton    = `button[type="submit"], input[type="submit"]`
	loginErrorBlock = ".alert-danger, .error, .login-error"
)

// ErrNotAuthenticated means a strategy finished but the browser is not in the
// member area.
var ErrNotAuthenticated = errors.New("not authenticated")

// SessionError is returned when every eligible strategy failed.
type SessionError struct {
	Causes []error
}

func (e *SessionError) Error() string {
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("all %d login attempts failed: %s", len(e.Causes), strings.Join(msgs, "; "))
}

func (e *SessionError) Unwrap() []error { return e.Causes }

// Attempts is the number of strategies that were tried.
func (e *SessionError) Attempts() int { return len(e.Causes) }

// Options select which strategies are eligible and how browsers are launched.
type Options struct {
	// ManualCaptcha skips the headless form strategy so form logins always
	// happen where a human can see them.
	ManualCaptcha bool
	// NoHeadless launches every strategy with a visible browser.
	NoHeadless bool
	// NoCookieHeaders disables StrategyBypass.
	NoCookieHeaders bool
}

// Eligible returns the strategies allowed by opts, in their fixed order.
func Eligible(opts Options) []Strategy {
	var out []Strategy
	if !opts.NoCookieHeaders {
		out = append(out, StrategyBypass)
	}
	if !opts.ManualCaptcha {
		out = append(out, StrategyNormal)
	}
	return append(out, StrategyInteractive)
}

// Session is an authenticated browsing context. Close releases it.
type Session struct {
	Context  browser.Context
	Page     browser.Page
	Strategy Strategy
}

// Close tears the browsing context down.
func (s *Session) Close() error {
	if s == nil || s.Context == nil {
		return nil
	}
	return s.Context.Close()
}

// Manager drives the login state machine.
type Manager struct {
	driver     browser.Driver
	store      *Store
	portal     models.Portal
	strategies []Strategy
	headless   bool

	userAgent string
	locale    string
	timezone  string

	retryDelay    time.Duration
	challengeWait time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	jitter        func() float64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStrategies replaces the default strategy order.
func WithStrategies(s ...Strategy) ManagerOption {
	return func(m *Manager) { m.strategies = s }
}

// WithHeadless controls whether non-interactive strategies run headless.
func WithHeadless(headless bool) ManagerOption {
	return func(m *Manager) { m.headless = headless }
}

// WithBrowserProfile sets the identity presented by launched contexts.
func WithBrowserProfile(userAgent, locale, timezone string) ManagerOption {
	return func(m *Manager) {
		m.userAgent = userAgent
		m.locale = locale
		m.timezone = timezone
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.retryDelay = d }
}

// WithChallengeWait bounds how long a human gets to solve a visual challenge.
func WithChallengeWait(d time.Duration) ManagerOption {
	return func(m *Manager) { m.challengeWait = d }
}

// WithSleep replaces the context-aware sleep used for every pause.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) { m.sleep = fn }
}

// WithJitter replaces the [0,1) source used for human-like delays.
func WithJitter(fn func() float64) ManagerOption {
	return func(m *Manager) { m.jitter = fn }
}

// NewManager creates a Manager. Without options every strategy is eligible
// and non-interactive strategies run headless.
func NewManager(driver browser.Driver, store *Store, portal models.Portal, opts ...ManagerOption) *Manager {
	m := &Manager{
		driver:        driver,
		store:         store,
		portal:        portal,
		strategies:    Eligible(Options{}),
		headless:      true,
		retryDelay:    DefaultRetryDelay,
		challengeWait: DefaultChallengeWait,
		sleep:         Sleep,
		jitter:        rand.Float64,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Establish runs the eligible strategies in order and returns the first
// authenticated session. At most maxAttempts strategies are tried. On success
// the context's cookies overwrite the store.
func (m *Manager) Establish(ctx context.Context, creds models.Credentials, maxAttempts int) (*Session, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	plan := m.strategies
	if len(plan) > maxAttempts {
		plan = plan[:maxAttempts]
	}

	var causes []error
	for i, strategy := range plan {
		attempt := i + 1
		slog.Info("Login attempt", "attempt", attempt, "of", len(plan), "strategy", strategy)

		sess, err := m.attempt(ctx, strategy, creds)
		if err == nil {
			slog.Info("Login succeeded", "strategy", strategy, "url", sess.Page.URL())
			m.persist(ctx, sess)
			return sess, nil
		}

		slog.Warn("Login attempt failed", "attempt", attempt, "strategy", strategy, "error", err)
		causes = append(causes, fmt.Errorf("attempt %d (%s): %w", attempt, strategy, err))

		if attempt < len(plan) {
			if err := m.sleep(ctx, m.retryDelay); err != nil {
				causes = append(causes, err)
				break
			}
		}
	}

	if len(causes) == 0 {
		causes = append(causes, errors.New("no login strategies are eligible"))
	}
	return nil, &SessionError{Causes: causes}
}

func (m *Manager) attempt(ctx context.Context, strategy Strategy, creds models.Credentials) (*Session, error) {
	opts := browser.ContextOptions{
		Headless:     m.headless && strategy != StrategyInteractive,
		UserAgent:    m.userAgent,
		Locale:       m.locale,
		TimezoneID:   m.timezone,
		ExtraHeaders: m.baseHeaders(),
	}
	if strategy == StrategyBypass {
		opts.ExtraHeaders["Cookie"] = m.bypassCookieHeader(creds)
	}

	bctx, err := m.driver.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opening browser: %w", err)
	}
	page := bctx.Page()

	switch strategy {
	case StrategyBypass:
		err = m.bypass(ctx, page)
	case StrategyNormal:
		err = m.submitLogin(ctx, page, creds, false)
	case StrategyInteractive:
		err = m.submitLogin(ctx, page, creds, true)
	default:
		err = fmt.Errorf("unknown login strategy %q", strategy)
	}

	if err != nil {
		if cerr := bctx.Close(); cerr != nil {
			slog.Debug("Closing failed browsing context", "error", cerr)
		}
		return nil, err
	}
	return &Session{Context: bctx, Page: page, Strategy: strategy}, nil
}

func (m *Manager) baseHeaders() map[string]string {
	return map[string]string{
		"Accept-Language":           "id-ID,id;q=0.9",
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
		"Cache-Control":             "max-age=0",
		"Upgrade-Insecure-Requests": "1",
		"Referer":                   strings.TrimRight(m.portal.BaseURL, "/") + "/",
	}
}

// bypassCookieHeader builds the Cookie header for StrategyBypass from the
// persisted artifacts, or synthesizes remember-me cookies from creds when
// nothing usable is stored.
func (m *Manager) bypassCookieHeader(creds models.Credentials) string {
	stored, err := m.store.Load()
	if err != nil {
		slog.Warn("Ignoring unusable session artifacts", "path", m.store.Path(), "error", err)
		stored = nil
	}
	if len(stored) == 0 {
		slog.Debug("No session artifacts, using synthesized cookies")
		prefix := m.portal.CookiePrefix
		return fmt.Sprintf("%s_username=%s; %s_pswd=%s; %s_remember=true",
			prefix, creds.Username, prefix, creds.Password, prefix)
	}

	chosen := essentialCookies(stored, m.portal.Host(), m.portal.CookiePrefix)
	if len(chosen) == 0 {
		chosen = stored
	}
	slog.Debug("Using persisted cookies", "count", len(chosen))

	pairs := make([]string, len(chosen))
	for i, c := range chosen {
		pairs[i] = c.Name + "=" + c.Value
	}
	return strings.Join(pairs, "; ")
}

func essentialCookies(cookies []models.Cookie, host, prefix string) []models.Cookie {
	markers := []string{"session", "login", "auth", "token"}
	if p := strings.SplitN(prefix, "_", 2)[0]; p != "" {
		markers = append(markers, p)
	}

	var out []models.Cookie
	for _, c := range cookies {
		if host != "" && strings.Contains(c.Domain, host) {
			out = append(out, c)
			continue
		}
		for _, mk := range markers {
			if strings.Contains(c.Name, mk) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (m *Manager) bypass(ctx context.Context, page browser.Page) error {
	if err := page.Goto(ctx, m.portal.MemberURL(), bypassTimeout); err != nil {
		return fmt.Errorf("opening member area: %w", err)
	}
	if err := m.sleep(ctx, settleDelay); err != nil {
		return err
	}
	if u := page.URL(); !m.portal.IsMemberURL(u) {
		return fmt.Errorf("%w: landed on %s", ErrNotAuthenticated, u)
	}
	return nil
}

func (m *Manager) submitLogin(ctx context.Context, page browser.Page, creds models.Credentials, interactive bool) error {
	if err := page.Goto(ctx, m.portal.LoginURL(), loginTimeout); err != nil {
		return fmt.Errorf("opening login page: %w", err)
	}
	if err := m.sleep(ctx, settleDelay); err != nil {
		return err
	}

	if err := page.Locate(usernameField).Fill(ctx, creds.Username); err != nil {
		return fmt.Errorf("filling username: %w", err)
	}
	if err := m.sleep(ctx, fieldDelay); err != nil {
		return err
	}
	if err := page.Locate(passwordField).Fill(ctx, creds.Password); err != nil {
		return fmt.Errorf("filling password: %w", err)
	}
	if err := m.sleep(ctx, fieldDelay); err != nil {
		return err
	}

	if err := m.handleChallenge(ctx, page, interactive); err != nil {
		return err
	}

	slog.Debug("Submitting login form")
	if err := page.Locate(submitButton).Click(ctx); err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}
	if err := page.WaitForURL(ctx, memberURLGlob, submitTimeout); err != nil {
		slog.Debug("No member redirect after submit", "error", err)
	}

	u := page.URL()
	if m.portal.IsLoginURL(u) {
		if msg, err := page.Locate(loginErrorBlock).Text(ctx); err == nil && strings.TrimSpace(msg) != "" {
			return fmt.Errorf("%w: portal says %q", ErrNotAuthenticated, strings.TrimSpace(msg))
		}
		return fmt.Errorf("%w: still on %s", ErrNotAuthenticated, u)
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, sess *Session) {
	cookies, err := sess.Context.Cookies(ctx)
	if err != nil {
		slog.Warn("Reading session cookies failed", "error", err)
		return
	}
	if err := m.store.Save(cookies); err != nil {
		slog.Warn("Saving session artifacts failed", "path", m.store.Path(), "error", err)
		return
	}
	slog.Debug("Saved session artifacts", "path", m.store.Path(), "count", len(cookies))
}
