package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/attendbot/attend/internal/browser"
	"github.com/attendbot/attend/internal/cache"
	"github.com/attendbot/attend/internal/models"
	"github.com/attendbot/attend/internal/orchestration"
	"github.com/attendbot/attend/internal/schedule"
	"github.com/attendbot/attend/internal/spinner"
	"github.com/spf13/cobra"
)

func newScheduleCommand(opts *rootOptions) *cobra.Command {
	var cached bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the weekly timetable and meeting links",
		Long: `Log in and print the timetable and meeting links found on the dashboard,
marking the classes in session now. Nothing is downloaded and nothing is
recorded.

With --cached the snapshot from the last run is shown instead and no
browser is opened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cached {
				return showCachedSchedule(cmd, opts)
			}
			a, err := newApp(opts, browser.NewPlaywrightDriver())
			if err != nil {
				return err
			}
			defer a.Close()

			stop := spinner.Start(cmd.OutOrStdout(), "Reading the dashboard...")
			dash, err := a.runner.Inspect(cmd.Context())
			stop()
			if errors.Is(err, orchestration.ErrRunInProgress) {
				return errors.New("an attendance run is in progress, try again shortly")
			}
			if err != nil {
				return err
			}
			writeTimetable(cmd.OutOrStdout(), dash.Entries, dash.Active, dash.Meetings)
			return nil
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "Show the snapshot saved by the last run instead of logging in")
	return cmd
}

func showCachedSchedule(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	snap, ok := cache.New(cfg.Resolve(cfg.Paths.Cache)).Get(cache.Key(cfg.Portal.BaseURL, cfg.Credentials.Username))
	if !ok {
		return errors.New("no timetable snapshot yet, run \"attend schedule\" or \"attend run\" first")
	}

	cat := schedule.NewCatalog(nil)
	cat.Load(snap.Entries)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Snapshot taken %s\n\n", snap.TakenAt.In(loc).Format("Mon 02 Jan 15:04")) //nolint:errcheck
	writeTimetable(out, snap.Entries, cat.ActiveAt(time.Now().In(loc)), snap.Meetings)
	return nil
}

//nolint:errcheck // display-only writes
func writeTimetable(w io.Writer, entries, active []models.ScheduleEntry, links []models.MeetingLink) {
	now := make(map[models.ScheduleEntry]bool, len(active))
	for _, e := range active {
		now[e] = true
	}

	dayWidth, timeWidth := 0, 0
	for _, e := range entries {
		dayWidth = max(dayWidth, displayWidth(e.WeekdayLocalLabel))
		timeWidth = max(timeWidth, len(e.TimeWindow()))
	}

	fmt.Fprintf(w, "Timetable (%d slots)\n", len(entries))
	for _, e := range entries {
		marker := " "
		if now[e] {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  %s  %s\n", marker, padRight(e.WeekdayLocalLabel, dayWidth), padRight(e.TimeWindow(), timeWidth), e.Subject)
	}
	if len(active) > 0 {
		fmt.Fprintln(w, "* in session now")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Meetings (%d links)\n", len(links))
	for _, l := range links {
		fmt.Fprintf(w, "  #%-3d %s\n", l.SequenceNumber, truncateName(l.DisplayName, 60))
	}
}
