// Package trigger fires attendance runs on a cron schedule.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attendbot/attend/internal/runguard"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const (
	StatusInterval = time.Hour
	StopGrace      = 10 * time.Second
)

// RunFunc performs one attendance check.
type RunFunc func(ctx context.Context) error

// Status describes the scheduler for status output.
type Status struct {
	Running     bool
	Processing  bool
	Schedule    string
	Description string
	Username    string
	Next        time.Time
	LastRun     time.Time
	LastErr     string
}

// Scheduler invokes a RunFunc on a cron schedule. Ticks that arrive while a
// run holds the guard are dropped.
type Scheduler struct {
	spec        string
	schedule    cron.Schedule
	description string
	username    string
	loc         *time.Location
	run         RunFunc
	guard       *runguard.Guard

	immediate      bool
	statusInterval time.Duration
	grace          time.Duration
	now            func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	started bool
	lastRun time.Time
	lastErr error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

func WithDescription(d string) Option {
	return func(s *Scheduler) { s.description = d }
}

func WithUsername(u string) Option {
	return func(s *Scheduler) { s.username = u }
}

// WithImmediate controls the check performed right after start. On by
// default.
func WithImmediate(on bool) Option {
	return func(s *Scheduler) { s.immediate = on }
}

func WithStatusInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.statusInterval = d }
}

// WithGrace bounds how long Start waits for an in-flight run after shutdown.
func WithGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.grace = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New validates spec and returns a stopped scheduler.
func New(spec string, run RunFunc, guard *runguard.Guard, opts ...Option) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		spec:           spec,
		schedule:       sched,
		run:            run,
		guard:          guard,
		loc:            time.Local,
		immediate:      true,
		statusInterval: StatusInterval,
		grace:          StopGrace,
		now:            time.Now,
	}
	if spec == DefaultSpec {
		s.description = DefaultDescription
	}
	for _, o := range opts {
		o(s)
	}
	if s.description == "" {
		s.description = spec
	}
	if s.guard == nil {
		s.guard = &runguard.Guard{}
	}
	return s, nil
}

// Start runs the scheduler until ctx is canceled. Runs still in flight at
// that point see a canceled context; Start waits up to the grace period for
// them before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithParser(parser),
		cron.WithLogger(cronLogger{}),
	)
	id, err := c.AddFunc(s.spec, func() { s.fire(ctx, "schedule") })
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("registering schedule: %w", err)
	}
	s.cron, s.entry, s.started = c, id, true
	s.mu.Unlock()

	c.Start()
	slog.Info("Scheduler started", "schedule", s.spec, "description", s.description, "timezone", s.loc.String())

	var g errgroup.Group
	if s.immediate {
		g.Go(func() error {
			s.fire(ctx, "startup")
			return nil
		})
	}
	if s.statusInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(s.statusInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.logStatus()
				}
			}
		})
	}

	<-ctx.Done()
	slog.Info("Stopping scheduler")
	stopped := c.Stop()
	drained := make(chan struct{})
	go func() {
		<-stopped.Done()
		_ = g.Wait() //nolint:errcheck // goroutines only return nil
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(s.grace):
		slog.Warn("In-flight run did not finish before shutdown", "grace", s.grace)
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) fire(ctx context.Context, source string) {
	if ctx.Err() != nil {
		return
	}
	if s.guard.Running() {
		slog.Info("Previous run still in progress, skipping", "source", source)
		return
	}
	slog.Debug("Attendance check triggered", "source", source)

	err := s.run(ctx)
	s.mu.Lock()
	s.lastRun = s.now()
	s.lastErr = err
	s.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Attendance run failed", "source", source, "error", err)
	}
}

// Status reports the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:     s.started,
		Processing:  s.guard.Running(),
		Schedule:    s.spec,
		Description: s.description,
		Username:    s.username,
		LastRun:     s.lastRun,
	}
	if s.lastErr != nil {
		st.LastErr = s.lastErr.Error()
	}
	if s.started {
		st.Next = s.cron.Entry(s.entry).Next
	}
	if st.Next.IsZero() {
		st.Next = s.schedule.Next(s.now().In(s.loc))
	}
	return st
}

func (s *Scheduler) logStatus() {
	st := s.Status()
	slog.Info("Scheduler status",
		"running", st.Running,
		"processing", st.Processing,
		"schedule", st.Description,
		"username", st.Username,
		"next", st.Next.Format(time.RFC3339),
	)
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
