package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/attendbot/attend/internal/cache"
	"github.com/attendbot/attend/internal/ledger"
	"github.com/attendbot/attend/internal/models"
	"github.com/attendbot/attend/internal/projectconfig"
	"github.com/attendbot/attend/internal/runguard"
	"github.com/attendbot/attend/internal/schedule"
	"github.com/attendbot/attend/internal/session"
	"github.com/attendbot/attend/internal/trigger"
	"github.com/spf13/cobra"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, session and schedule state",
		Long: `Show the configured account, the next scheduled check, whether a stored
session exists, and how many attendances have been recorded.

Status never opens a browser. The timetable shown comes from the snapshot
saved by the last run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			st := gatherStatus(cfg, time.Now())
			writeStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

type statusInfo struct {
	Source      string
	Username    string
	Portal      string
	Timezone    string
	Schedule    string
	Next        []time.Time
	Session     bool
	RunActive   bool
	SessionPath string
	Attended    int
	LedgerErr   error
	Snapshot    *cache.Snapshot
	ActiveNow   []models.ScheduleEntry
	Problems    []string
}

// gatherStatus reads local state only. Configuration problems are reported
// rather than returned.
func gatherStatus(cfg *projectconfig.Config, now time.Time) statusInfo {
	st := statusInfo{
		Source:      cfg.Source(),
		Username:    cfg.Credentials.Username,
		Portal:      cfg.Portal.BaseURL,
		Timezone:    cfg.Timezone,
		Schedule:    cfg.Schedule.Description,
		SessionPath: cfg.Resolve(cfg.Paths.Cookies),
	}
	if st.Schedule == "" {
		st.Schedule = cfg.Schedule.Cron
	}

	if err := cfg.Validate(); err != nil {
		var ce *projectconfig.ConfigurationError
		if errors.As(err, &ce) {
			st.Problems = ce.Problems
		} else {
			st.Problems = []string{err.Error()}
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		loc = time.Local
	}
	now = now.In(loc)
	if next, err := trigger.NextRuns(cfg.Schedule.Cron, now, 3); err == nil {
		st.Next = next
	}

	st.Session = session.NewStore(st.SessionPath).Exists()
	st.RunActive = runguard.NewFileGuard(cfg.Resolve(cfg.Paths.Lock)).Running()
	st.Attended, st.LedgerErr = ledger.New(cfg.Resolve(cfg.Paths.Ledger)).Len()

	snapshots := cache.New(cfg.Resolve(cfg.Paths.Cache))
	if snap, ok := snapshots.Get(cache.Key(cfg.Portal.BaseURL, cfg.Credentials.Username)); ok {
		st.Snapshot = snap
		cat := schedule.NewCatalog(nil)
		cat.Load(snap.Entries)
		st.ActiveNow = cat.ActiveAt(now)
	}
	return st
}

//nolint:errcheck // display-only writes
func writeStatus(w io.Writer, st statusInfo) {
	source := st.Source
	if source == "" {
		source = "(none, defaults)"
	}
	username := st.Username
	if username == "" {
		username = "(not set)"
	}

	fmt.Fprintf(w, "Config:     %s\n", source)
	fmt.Fprintf(w, "Account:    %s\n", username)
	fmt.Fprintf(w, "Portal:     %s\n", st.Portal)
	fmt.Fprintf(w, "Time zone:  %s\n", st.Timezone)
	fmt.Fprintf(w, "Schedule:   %s\n", st.Schedule)
	if len(st.Next) > 0 {
		fmt.Fprintf(w, "Next check: %s\n", st.Next[0].Format("Mon 02 Jan 15:04"))
	}
	if st.Session {
		fmt.Fprintf(w, "Session:    stored (%s)\n", st.SessionPath)
	} else {
		fmt.Fprintln(w, "Session:    none, the next run logs in with the form")
	}
	if st.RunActive {
		fmt.Fprintln(w, "Run:        in progress")
	}
	if st.LedgerErr != nil {
		fmt.Fprintf(w, "Attended:   unreadable ledger: %v\n", st.LedgerErr)
	} else {
		fmt.Fprintf(w, "Attended:   %d recorded\n", st.Attended)
	}

	if st.Snapshot == nil {
		fmt.Fprintln(w, "Timetable:  not seen yet")
	} else {
		fmt.Fprintf(w, "Timetable:  %d slots, %d meetings (as of %s)\n",
			len(st.Snapshot.Entries), len(st.Snapshot.Meetings), st.Snapshot.TakenAt.Format("02 Jan 15:04"))
		if len(st.ActiveNow) == 0 {
			fmt.Fprintln(w, "In session: none")
		}
		for _, e := range st.ActiveNow {
			fmt.Fprintf(w, "In session: %s\n", e)
		}
	}

	if len(st.Problems) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Configuration problems:")
		for _, p := range st.Problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
}
