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
	"github.com/spf13/cobra"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one attendance check now",
		Long: `Log in, read the timetable, and attend every class that is in session now.

The check shares its single-flight guard with the scheduler, so it never
overlaps a scheduled run in the same process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, browser.NewPlaywrightDriver())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runOnce(ctx, cmd, a)
		},
	}
}

func runOnce(ctx context.Context, cmd *cobra.Command, a *app) error {
	out := cmd.OutOrStdout()
	a.runner.OnProgress(progressPrinter(out))

	report, err := a.runner.Run(ctx)
	if errors.Is(err, orchestration.ErrRunInProgress) {
		return fmt.Errorf("another attendance run holds %s, try again once it finishes", a.runner.Guard().Path())
	}
	if report != nil {
		fmt.Fprintln(out) //nolint:errcheck
		printReport(out, report)
	}
	if err != nil {
		return fmt.Errorf("attendance run failed: %w", err)
	}
	if failed := len(report.Results) - report.Succeeded; failed > 0 {
		return fmt.Errorf("%d of %d classes were not attended", failed, len(report.Active))
	}
	return nil
}
