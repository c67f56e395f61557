package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/attendbot/attend/internal/orchestration"
	"github.com/mattn/go-runewidth"
)

// formatDuration formats a duration in a consistent, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

// progressPrinter writes one line per progress event.
//
//nolint:errcheck // display-only writes
func progressPrinter(w io.Writer) orchestration.ProgressListener {
	return func(event orchestration.ProgressEvent) {
		switch event.EventType {
		case orchestration.EventLoggedIn:
			fmt.Fprintf(w, "Logged in (%v)\n", event.Details["strategy"])
		case orchestration.EventRunStart:
			fmt.Fprintf(w, "Classes in session: %d\n", event.TotalClasses)
		case orchestration.EventNoClasses:
			fmt.Fprintln(w, "No class is in session right now.")
		case orchestration.EventClassStart:
			fmt.Fprintf(w, "[%d/%d] %s\n", event.ClassNum, event.TotalClasses, event.Class)
		case orchestration.EventClassSkipped:
			fmt.Fprintf(w, "✗ [%d/%d] %s skipped: %v\n", event.ClassNum, event.TotalClasses, event.Class, event.Err)
		case orchestration.EventClassComplete:
			icon := "✓"
			if event.Err != nil {
				icon = "✗"
			}
			fmt.Fprintf(w, "%s [%d/%d] %s: %s [%s] %v items (%s)\n", icon, event.ClassNum, event.TotalClasses,
				event.Class, event.Meeting, event.Status, event.Details["items"],
				formatDuration(time.Duration(event.DurationMs)*time.Millisecond))
			if event.Err != nil {
				fmt.Fprintf(w, "    %v\n", event.Err)
			}
		case orchestration.EventRunComplete:
			fmt.Fprintf(w, "Run finished in %s\n", formatDuration(time.Duration(event.DurationMs)*time.Millisecond))
		}
	}
}

//nolint:errcheck // display-only writes
func printReport(w io.Writer, r *orchestration.Report) {
	fmt.Fprintln(w, strings.Repeat("=", 51))
	fmt.Fprintln(w, " ATTENDANCE RUN")
	fmt.Fprintln(w, strings.Repeat("=", 51))
	fmt.Fprintf(w, "Run ID:     %s\n", r.RunID)
	if r.Strategy != "" {
		fmt.Fprintf(w, "Login:      %s\n", r.Strategy)
	}
	fmt.Fprintf(w, "Active:     %d\n", len(r.Active))
	fmt.Fprintf(w, "Attended:   %d\n", r.Succeeded)
	fmt.Fprintf(w, "Duration:   %s\n", formatDuration(r.Duration))

	if len(r.Results) == 0 {
		return
	}
	fmt.Fprintln(w)
	width := 0
	for _, res := range r.Results {
		width = max(width, displayWidth(res.Entry.Subject))
	}
	for _, res := range r.Results {
		icon, detail := "✓", ""
		switch {
		case res.Err != nil:
			icon, detail = "✗", res.Err.Error()
		case res.Meeting != nil:
			detail = fmt.Sprintf("%s (%d items -> %s)", res.Meeting.Link.DisplayName, res.Download.ItemCount, res.Download.Folder)
		}
		fmt.Fprintf(w, "%s %s  %s  %s\n", icon, padRight(res.Entry.Subject, width), res.Entry.TimeWindow(), detail)
	}
}

func displayWidth(s string) int { return runewidth.StringWidth(s) }

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

// truncateName shortens name to at most maxLen display cells.
func truncateName(name string, maxLen int) string {
	if runewidth.StringWidth(name) <= maxLen {
		return name
	}
	return runewidth.Truncate(name, maxLen, "…")
}
