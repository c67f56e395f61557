package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/attendbot/attend/internal/browser"
	"github.com/attendbot/attend/internal/cache"
	"github.com/attendbot/attend/internal/eventlog"
	"github.com/attendbot/attend/internal/extract"
	"github.com/attendbot/attend/internal/hooks"
	"github.com/attendbot/attend/internal/ledger"
	"github.com/attendbot/attend/internal/meetings"
	"github.com/attendbot/attend/internal/models"
	"github.com/attendbot/attend/internal/runguard"
	"github.com/attendbot/attend/internal/schedule"
	"github.com/attendbot/attend/internal/session"
	"github.com/google/uuid"
)

const (
	DashboardTimeout = 30 * time.Second
	dashboardSettle  = 2 * time.Second
	ClassPause       = 2 * time.Second

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// ErrRunInProgress is returned when a run is requested while another one
// holds the guard.
var ErrRunInProgress = errors.New("an attendance run is already in progress")

// ScheduleLoadError means the dashboard could not be read into a timetable.
type ScheduleLoadError struct {
	Reason string
	Err    error
}

func (e *ScheduleLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("loading schedule: %s: %v", e.Reason, e.Err)
	}
	return "loading schedule: " + e.Reason
}

func (e *ScheduleLoadError) Unwrap() error { return e.Err }

// Authenticator yields a logged-in browsing context.
type Authenticator interface {
	Establish(ctx context.Context, creds models.Credentials, maxAttempts int) (*session.Session, error)
}

// MaterialFetcher retrieves the materials of one meeting.
type MaterialFetcher interface {
	Fetch(ctx context.Context, bctx browser.Context, class string, meeting models.MeetingLink) (models.DownloadResult, error)
}

// Runner performs attendance runs: log in, read the dashboard, and fetch
// the materials of every class that is currently in session.
type Runner struct {
	auth    Authenticator
	fetcher MaterialFetcher
	ledger  *ledger.Ledger
	guard   *runguard.Guard
	creds   models.Credentials
	portal  models.Portal

	catalogRule extract.Rule[models.ScheduleEntry]
	meetingRule extract.Rule[models.MeetingLink]

	maxAttempts int
	loc         *time.Location
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	// Dashboard snapshots for offline status
	cache *cache.Cache

	// Run logs
	logDir string

	// Lifecycle hooks
	hooks      hooks.HooksConfig
	hookRunner *hooks.Runner

	// Progress tracking
	progressMu sync.Mutex
	listeners  []ProgressListener
}

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

const (
	EventRunStart      EventType = "run_start"
	EventLoggedIn      EventType = "logged_in"
	EventNoClasses     EventType = "no_classes"
	EventClassStart    EventType = "class_start"
	EventClassComplete EventType = "class_complete"
	EventClassSkipped  EventType = "class_skipped"
	EventRunComplete   EventType = "run_complete"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType    EventType
	RunID        string
	Class        string
	ClassNum     int
	TotalClasses int
	Meeting      string
	Status       string
	DurationMs   int64
	Err          error
	Details      map[string]any
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithGuard(g *runguard.Guard) RunnerOption {
	return func(r *Runner) { r.guard = g }
}

// WithRules swaps the extraction rules used to read the dashboard. A nil
// rule keeps the default.
func WithRules(catalog extract.Rule[models.ScheduleEntry], meeting extract.Rule[models.MeetingLink]) RunnerOption {
	return func(r *Runner) {
		r.catalogRule = catalog
		r.meetingRule = meeting
	}
}

func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) { r.maxAttempts = n }
}

// WithLocation sets the portal time zone used to match the timetable.
func WithLocation(loc *time.Location) RunnerOption {
	return func(r *Runner) { r.loc = loc }
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = fn }
}

// WithCache stores a dashboard snapshot after every successful load.
func WithCache(c *cache.Cache) RunnerOption {
	return func(r *Runner) { r.cache = c }
}

// WithRunLogs writes one NDJSON event log per run into dir.
func WithRunLogs(dir string) RunnerOption {
	return func(r *Runner) { r.logDir = dir }
}

func WithHooks(h hooks.HooksConfig, verbose bool) RunnerOption {
	return func(r *Runner) {
		r.hooks = h
		r.hookRunner = &hooks.Runner{Verbose: verbose}
	}
}

// NewRunner creates a runner for one account.
func NewRunner(auth Authenticator, fetcher MaterialFetcher, l *ledger.Ledger, creds models.Credentials, portal models.Portal, opts ...RunnerOption) *Runner {
	r := &Runner{
		auth:        auth,
		fetcher:     fetcher,
		ledger:      l,
		creds:       creds,
		portal:      portal,
		maxAttempts: session.DefaultMaxAttempts,
		loc:         time.Local,
		now:         time.Now,
		sleep:       session.Sleep,
		hookRunner:  &hooks.Runner{},
		listeners:   []ProgressListener{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.guard == nil {
		r.guard = &runguard.Guard{}
	}
	return r
}

// Guard returns the run guard shared by every trigger of this runner.
func (r *Runner) Guard() *runguard.Guard { return r.guard }

// OnProgress registers a progress listener
func (r *Runner) OnProgress(listener ProgressListener) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Runner) notifyProgress(event ProgressEvent) {
	r.progressMu.Lock()
	listeners := make([]ProgressListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// ClassResult is the outcome for one active class.
type ClassResult struct {
	Entry    models.ScheduleEntry
	Meeting  *models.ResolvedMeeting
	Download models.DownloadResult
	Err      error
}

// Attended reports whether the class was recorded in the ledger.
func (c ClassResult) Attended() bool {
	return c.Err == nil && c.Meeting != nil
}

// Report summarizes one run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Strategy  session.Strategy
	Active    []models.ScheduleEntry
	Results   []ClassResult
	Succeeded int
}

// Dashboard is the parsed member area.
type Dashboard struct {
	Entries  []models.ScheduleEntry
	Meetings []models.MeetingLink
	Active   []models.ScheduleEntry

	index *meetings.Index
}

// Run performs one attendance run. It returns ErrRunInProgress without doing
// anything when another run holds the guard.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	var report *Report
	ran, err := r.guard.Do(func() error {
		var runErr error
		report, runErr = r.run(ctx)
		return runErr
	})
	if !ran {
		return nil, ErrRunInProgress
	}
	return report, err
}

func (r *Runner) run(ctx context.Context) (*Report, error) {
	start := r.now()
	report := &Report{RunID: uuid.NewString(), StartedAt: start}
	log := slog.With("run_id", report.RunID)

	events := r.openRunLog(start)
	defer events.Close() //nolint:errcheck

	runEnv := map[string]string{"run_id": report.RunID}
	if err := r.hookRunner.Execute(ctx, hooks.BeforeRun, r.hooks.BeforeRun, runEnv); err != nil {
		return report, fmt.Errorf("before_run hook: %w", err)
	}
	defer func() {
		env := map[string]string{
			"run_id":    report.RunID,
			"active":    strconv.Itoa(len(report.Active)),
			"succeeded": strconv.Itoa(report.Succeeded),
		}
		// a canceled run still gets its after_run hooks
		hookCtx := context.WithoutCancel(ctx)
		if err := r.hookRunner.Execute(hookCtx, hooks.AfterRun, r.hooks.AfterRun, env); err != nil {
			log.Warn("after_run hook failed", "error", err)
		}
	}()

	log.Info("Starting attendance run")
	sess, err := r.auth.Establish(ctx, r.creds, r.maxAttempts)
	if err != nil {
		logEvent(events, eventlog.EventError, eventlog.ErrorData(err.Error(), map[string]any{"stage": "login"}))
		return report, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("Closing browser context", "error", err)
		}
	}()
	report.Strategy = sess.Strategy
	logEvent(events, eventlog.EventLogin, eventlog.LoginData(string(sess.Strategy)))
	r.notifyProgress(ProgressEvent{EventType: EventLoggedIn, RunID: report.RunID, Details: map[string]any{"strategy": sess.Strategy}})

	dash, err := r.loadDashboard(ctx, sess.Page)
	if err != nil {
		logEvent(events, eventlog.EventError, eventlog.ErrorData(err.Error(), map[string]any{"stage": "dashboard"}))
		return report, err
	}
	report.Active = dash.Active

	logEvent(events, eventlog.EventRunStart, eventlog.RunStartData(report.RunID, len(dash.Active)))
	r.notifyProgress(ProgressEvent{EventType: EventRunStart, RunID: report.RunID, TotalClasses: len(dash.Active)})

	if len(dash.Active) == 0 {
		log.Info("No class in session", "entries", len(dash.Entries))
		r.notifyProgress(ProgressEvent{EventType: EventNoClasses, RunID: report.RunID, Details: map[string]any{"entries": len(dash.Entries)}})
	}

	for i, entry := range dash.Active {
		if i > 0 {
			if err := r.sleep(ctx, ClassPause); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		res := r.attendClass(ctx, sess, report.RunID, entry, dash.index, i+1, len(dash.Active), events)
		if res.Attended() {
			report.Succeeded++
		}
		report.Results = append(report.Results, res)
	}

	report.Duration = r.now().Sub(start)
	logEvent(events, eventlog.EventRunComplete, eventlog.RunCompleteData(len(report.Active), report.Succeeded, report.Duration.Milliseconds()))
	r.notifyProgress(ProgressEvent{
		EventType:    EventRunComplete,
		RunID:        report.RunID,
		TotalClasses: len(report.Active),
		DurationMs:   report.Duration.Milliseconds(),
		Details:      map[string]any{"succeeded": report.Succeeded},
	})
	log.Info("Attendance run finished", "active", len(report.Active), "succeeded", report.Succeeded, "duration", report.Duration)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// Inspect logs in and reads the dashboard without fetching anything. It
// shares the run guard with Run.
func (r *Runner) Inspect(ctx context.Context) (*Dashboard, error) {
	var dash *Dashboard
	ran, err := r.guard.Do(func() error {
		sess, err := r.auth.Establish(ctx, r.creds, r.maxAttempts)
		if err != nil {
			return err
		}
		defer sess.Close() //nolint:errcheck
		dash, err = r.loadDashboard(ctx, sess.Page)
		return err
	})
	if !ran {
		return nil, ErrRunInProgress
	}
	return dash, err
}

func (r *Runner) loadDashboard(ctx context.Context, page browser.Page) (*Dashboard, error) {
	if err := page.Goto(ctx, r.portal.MemberURL(), DashboardTimeout); err != nil {
		return nil, &ScheduleLoadError{Reason: "opening the dashboard", Err: err}
	}
	if err := r.sleep(ctx, dashboardSettle); err != nil {
		return nil, err
	}
	if r.portal.IsLoginURL(page.URL()) {
		return nil, &ScheduleLoadError{Reason: "session expired before the dashboard loaded"}
	}

	markup, err := page.Content(ctx)
	if err != nil {
		return nil, &ScheduleLoadError{Reason: "reading the dashboard", Err: err}
	}
	doc, err := extract.ParseString(markup)
	if err != nil {
		return nil, &ScheduleLoadError{Reason: "parsing the dashboard", Err: err}
	}

	catalog := schedule.NewCatalog(r.catalogRule)
	index := meetings.NewIndex(r.meetingRule)
	dash := &Dashboard{
		Entries:  catalog.Refresh(doc),
		Meetings: index.Refresh(doc),
		index:    index,
	}
	if len(dash.Entries) == 0 {
		return nil, &ScheduleLoadError{Reason: "no timetable entries on the dashboard"}
	}
	dash.Active = catalog.ActiveAt(r.now().In(r.loc))
	slog.Debug("Dashboard loaded", "entries", len(dash.Entries), "meetings", len(dash.Meetings), "active", len(dash.Active))

	if r.cache != nil {
		snap := &cache.Snapshot{
			Username: r.creds.Username,
			TakenAt:  r.now().UTC(),
			Entries:  dash.Entries,
			Meetings: dash.Meetings,
		}
		if err := r.cache.Put(cache.Key(r.portal.BaseURL, r.creds.Username), snap); err != nil {
			slog.Warn("Dashboard snapshot not cached", "error", err)
		}
	}
	return dash, nil
}

func (r *Runner) attendClass(ctx context.Context, sess *session.Session, runID string, entry models.ScheduleEntry, index *meetings.Index, num, total int, events eventlog.Logger) ClassResult {
	log := slog.With("run_id", runID, "class", entry.Subject)
	res := ClassResult{Entry: entry}
	started := r.now()

	logEvent(events, eventlog.EventClassStart, eventlog.ClassStartData(entry.Subject, entry.TimeWindow(), num, total))
	r.notifyProgress(ProgressEvent{EventType: EventClassStart, RunID: runID, Class: entry.Subject, ClassNum: num, TotalClasses: total})

	resolved, err := index.Resolve(entry)
	if err != nil {
		log.Warn("Class skipped", "error", err)
		res.Err = err
		logEvent(events, eventlog.EventError, eventlog.ErrorData(err.Error(), map[string]any{"class": entry.Subject}))
		r.notifyProgress(ProgressEvent{EventType: EventClassSkipped, RunID: runID, Class: entry.Subject, ClassNum: num, TotalClasses: total, Err: err})
		return res
	}
	res.Meeting = &resolved
	log.Info("Meeting resolved", "meeting", resolved.Link.DisplayName, "strategy", resolved.Strategy, "score", resolved.Score)

	res.Download, err = r.fetcher.Fetch(ctx, sess.Context, entry.Subject, resolved.Link)
	if err != nil {
		log.Error("Fetching materials failed", "meeting", resolved.Link.DisplayName, "error", err)
		res.Err = err
	} else if err := r.record(runID, entry, resolved.Link); err != nil {
		log.Error("Recording attendance failed", "error", err)
		res.Err = err
	}

	status := string(res.Download.Status)
	if res.Err != nil {
		status = "FAILED"
	}
	elapsed := r.now().Sub(started).Milliseconds()
	logEvent(events, eventlog.EventClassComplete, eventlog.ClassCompleteData(entry.Subject, resolved.Link.DisplayName, status, res.Download.ItemCount, elapsed))
	r.notifyProgress(ProgressEvent{
		EventType:    EventClassComplete,
		RunID:        runID,
		Class:        entry.Subject,
		ClassNum:     num,
		TotalClasses: total,
		Meeting:      resolved.Link.DisplayName,
		Status:       status,
		DurationMs:   elapsed,
		Err:          res.Err,
		Details: map[string]any{
			"items":      res.Download.ItemCount,
			"strategies": res.Download.StrategyUsed,
			"folder":     res.Download.Folder,
		},
	})

	if res.Err == nil {
		env := map[string]string{
			"run_id":         runID,
			"class":          entry.Subject,
			"meeting":        resolved.Link.DisplayName,
			"meeting_number": strconv.Itoa(resolved.Link.SequenceNumber),
			"folder":         res.Download.Folder,
			"items":          strconv.Itoa(res.Download.ItemCount),
		}
		if err := r.hookRunner.Execute(ctx, hooks.AfterAttendance, r.hooks.AfterAttendance, env); err != nil {
			log.Warn("after_attendance hook failed", "error", err)
		}
	}
	return res
}

func (r *Runner) record(runID string, entry models.ScheduleEntry, link models.MeetingLink) error {
	at := r.now()
	return r.ledger.Append(models.AttendanceRecord{
		Timestamp:     at.In(r.loc).Format(time.RFC3339),
		TimestampISO:  at.UTC().Format(isoMillis),
		Class:         entry.Subject,
		Day:           entry.WeekdayLocalLabel,
		Time:          entry.TimeWindow(),
		Meeting:       link.DisplayName,
		MeetingNumber: link.SequenceNumber,
		Status:        models.AttendanceSuccess,
		RunID:         runID,
	})
}

func (r *Runner) openRunLog(at time.Time) eventlog.Logger {
	if r.logDir == "" {
		return eventlog.Discard
	}
	l, err := eventlog.Open(eventlog.RunLogPath(r.logDir, at))
	if err != nil {
		slog.Warn("Run log unavailable", "error", err)
		return eventlog.Discard
	}
	return l
}

func logEvent(l eventlog.Logger, t eventlog.EventType, data map[string]any) {
	if err := l.Log(eventlog.NewEvent(t, data)); err != nil {
		slog.Debug("Run log write failed", "error", err)
	}
}
