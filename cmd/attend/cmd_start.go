package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/attendbot/attend/internal/browser"
	"github.com/attendbot/attend/internal/orchestration"
	"github.com/attendbot/attend/internal/trigger"
	"github.com/spf13/cobra"
)

func newStartCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attendance scheduler",
		Long: `Start the scheduler. An attendance check runs immediately and then on the
configured cron schedule (default: every 30 minutes from 07:00 to 18:59,
Monday to Friday, in the portal's time zone). Stop it with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, opts)
		},
	}
}

func runStart(cmd *cobra.Command, opts *rootOptions) error {
	a, err := newApp(opts, browser.NewPlaywrightDriver())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	a.runner.OnProgress(progressPrinter(out))

	sched, err := trigger.New(a.cfg.Schedule.Cron, func(ctx context.Context) error {
		report, err := a.runner.Run(ctx)
		if report != nil {
			printReport(out, report)
		}
		if errors.Is(err, orchestration.ErrRunInProgress) {
			return nil
		}
		return err
	}, a.runner.Guard(),
		trigger.WithLocation(a.loc),
		trigger.WithDescription(a.cfg.Schedule.Description),
		trigger.WithUsername(a.cfg.Credentials.Username),
	)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	st := sched.Status()
	fmt.Fprintf(out, "Attendance scheduler for %s\n", st.Username)              //nolint:errcheck
	fmt.Fprintf(out, "Schedule: %s (%s)\n", st.Description, a.loc.String())     //nolint:errcheck
	fmt.Fprintf(out, "Next check: %s\n", st.Next.Format("Mon 02 Jan 15:04 MST")) //nolint:errcheck
	fmt.Fprintln(out, "Press Ctrl+C to stop.")                                  //nolint:errcheck
	fmt.Fprintln(out)                                                           //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sched.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Scheduler stopped.") //nolint:errcheck
	return nil
}
