package main

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"time"

	"github.com/attendbot/attend/internal/browser"
	"github.com/attendbot/attend/internal/cache"
	"github.com/attendbot/attend/internal/download"
	"github.com/attendbot/attend/internal/extract"
	"github.com/attendbot/attend/internal/ledger"
	"github.com/attendbot/attend/internal/meetings"
	"github.com/attendbot/attend/internal/models"
	"github.com/attendbot/attend/internal/orchestration"
	"github.com/attendbot/attend/internal/projectconfig"
	"github.com/attendbot/attend/internal/runguard"
	"github.com/attendbot/attend/internal/schedule"
	"github.com/attendbot/attend/internal/session"
)

// app wires the engine for one validated configuration.
type app struct {
	cfg    *projectconfig.Config
	loc    *time.Location
	driver browser.Driver
	store  *session.Store
	ledger *ledger.Ledger
	cache  *cache.Cache
	runner *orchestration.Runner
}

func loadConfig(opts *rootOptions) (*projectconfig.Config, error) {
	if opts.configPath != "" {
		return projectconfig.LoadFile(opts.configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	return projectconfig.Load(wd)
}

// newApp loads and validates the configuration and builds the runner on top
// of driver. Nothing is launched until a run starts.
func newApp(opts *rootOptions, driver browser.Driver) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	scheduleRule, meetingRule, err := buildRules(cfg)
	if err != nil {
		return nil, err
	}

	portal := cfg.PortalModel()
	a := &app{
		cfg:    cfg,
		loc:    loc,
		driver: driver,
		store:  session.NewStore(cfg.Resolve(cfg.Paths.Cookies)),
		ledger: ledger.New(cfg.Resolve(cfg.Paths.Ledger)),
		cache:  cache.New(cfg.Resolve(cfg.Paths.Cache)),
	}

	strategies := session.Eligible(session.Options{
		ManualCaptcha:   opts.manualCaptcha,
		NoHeadless:      opts.noHeadless,
		NoCookieHeaders: opts.noCookieHeaders,
	})
	mgr := session.NewManager(driver, a.store, portal,
		session.WithStrategies(strategies...),
		session.WithHeadless(cfg.Headless() && !opts.noHeadless),
		session.WithBrowserProfile(cfg.Browser.UserAgent, cfg.Browser.Locale, cfg.Timezone),
	)
	fetcher := download.New(cfg.Resolve(cfg.Paths.Downloads), portal, download.WithLocation(loc))

	a.runner = orchestration.NewRunner(mgr, fetcher, a.ledger, cfg.Creds(), portal,
		orchestration.WithGuard(runguard.NewFileGuard(cfg.Resolve(cfg.Paths.Lock))),
		orchestration.WithLocation(loc),
		orchestration.WithMaxAttempts(cfg.Browser.MaxAttempts),
		orchestration.WithRules(scheduleRule, meetingRule),
		orchestration.WithCache(a.cache),
		orchestration.WithRunLogs(cfg.Resolve(cfg.Paths.Logs)),
		orchestration.WithHooks(cfg.Hooks, opts.debug),
	)
	slog.Debug("Configuration loaded", "source", cfg.Source(), "username", cfg.Credentials.Username, "strategies", strategies)
	return a, nil
}

func (a *app) Close() {
	if err := a.driver.Close(); err != nil {
		slog.Warn("Closing browser driver", "error", err)
	}
}

// buildRules turns the extraction section into rules. The meeting rule
// resolves relative links against the portal unless told otherwise.
func buildRules(cfg *projectconfig.Config) (extract.Rule[models.ScheduleEntry], extract.Rule[models.MeetingLink], error) {
	var scheduleRule extract.Rule[models.ScheduleEntry]
	if kind := cfg.Extraction.Schedule.Kind; kind != "" {
		r, err := schedule.NewRule(schedule.RuleKind(kind), cfg.Extraction.Schedule.Params)
		if err != nil {
			return nil, nil, ruleError(cfg, "extraction.schedule", err)
		}
		scheduleRule = r
	}

	kind := cfg.Extraction.Meetings.Kind
	if kind == "" {
		kind = string(meetings.RuleIconAnchor)
	}
	params := maps.Clone(cfg.Extraction.Meetings.Params)
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params["base_url"]; !ok {
		params["base_url"] = cfg.Portal.BaseURL
	}
	meetingRule, err := meetings.NewRule(meetings.RuleKind(kind), params)
	if err != nil {
		return nil, nil, ruleError(cfg, "extraction.meetings", err)
	}
	return scheduleRule, meetingRule, nil
}

func ruleError(cfg *projectconfig.Config, key string, err error) error {
	return &projectconfig.ConfigurationError{
		Source:   cfg.Source(),
		Problems: []string{fmt.Sprintf("%s: %v", key, err)},
	}
}
