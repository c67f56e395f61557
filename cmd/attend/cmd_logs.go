package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/attendbot/attend/internal/eventlog"
	"github.com/spf13/cobra"
)

func newLogsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logs [run|latest]",
		Short: "List run logs or show one run's timeline",
		Long: `Without arguments, list the run logs written by past attendance runs,
newest first. With a log name (or "latest"), print that run's timeline.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			runs, err := eventlog.ListRuns(cfg.Resolve(cfg.Paths.Logs))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				writeRunList(out, runs)
				return nil
			}

			run, err := findRun(runs, args[0])
			if err != nil {
				return err
			}
			events, err := eventlog.ReadEvents(run.Path)
			if err != nil {
				return err
			}
			eventlog.RenderTimeline(out, events)
			return nil
		},
	}
}

// findRun matches name against run log names, with or without the
// extension. "latest" picks the newest run.
func findRun(runs []eventlog.RunFile, name string) (eventlog.RunFile, error) {
	if len(runs) == 0 {
		return eventlog.RunFile{}, fmt.Errorf("no run logs found")
	}
	if name == "latest" {
		return runs[0], nil
	}
	for _, r := range runs {
		if r.Name == name || strings.TrimSuffix(r.Name, ".jsonl") == name {
			return r, nil
		}
	}
	return eventlog.RunFile{}, fmt.Errorf("run log %q not found", name)
}

//nolint:errcheck // display-only writes
func writeRunList(w io.Writer, runs []eventlog.RunFile) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No run logs yet.")
		return
	}
	width := 0
	for _, r := range runs {
		width = max(width, displayWidth(r.Name))
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %3d events\n", padRight(r.Name, width), r.ModTime.Format("2006-01-02 15:04"), r.NumEvents)
	}
}
