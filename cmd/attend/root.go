package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

// rootOptions are the persistent flags shared by every sub-command.
type rootOptions struct {
	configPath      string
	manualCaptcha   bool
	noHeadless      bool
	noCookieHeaders bool
	debug           bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "attend",
		Short: "attend - automated LMS attendance",
		Long: `attend logs in to the campus LMS, works out which class is in session from
the weekly timetable, downloads the materials of that class's latest meeting
to register attendance, and records each attendance in a local ledger.

Run without a sub-command it starts the scheduler (same as "attend start").`,
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (default: .attend.yaml in the working directory or a parent)")
	pf.BoolVarP(&opts.manualCaptcha, "manual-captcha", "m", false, "Skip the headless form login and solve the CAPTCHA yourself in a visible browser")
	pf.BoolVar(&opts.noHeadless, "no-headless", false, "Show the browser window for every login attempt")
	pf.BoolVar(&opts.noCookieHeaders, "no-cookie-headers", false, "Do not try to resume the stored session")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if opts.debug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newStartCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newScheduleCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newLogsCommand(opts))
	cmd.AddCommand(newInitCommand(opts))

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
