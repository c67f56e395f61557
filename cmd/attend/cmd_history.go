package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/attendbot/attend/internal/ledger"
	"github.com/attendbot/attend/internal/models"
	"github.com/spf13/cobra"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit int
		class string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded attendances",
		Long: `Print the attendance ledger, newest last.

Use --class to keep only records whose class contains the given text
(case-insensitive) and --limit to show only the most recent records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			records, err := ledger.New(cfg.Resolve(cfg.Paths.Ledger)).Records()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				loc = time.Local
			}
			writeHistory(cmd.OutOrStdout(), filterHistory(records, class, limit), loc)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the N most recent records (0 shows all)")
	cmd.Flags().StringVar(&class, "class", "", "Show only records whose class contains this text")
	return cmd
}

func filterHistory(records []models.AttendanceRecord, class string, limit int) []models.AttendanceRecord {
	class = strings.ToLower(strings.TrimSpace(class))
	out := records[:0:0]
	for _, r := range records {
		if class == "" || strings.Contains(strings.ToLower(r.Class), class) {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

//nolint:errcheck // display-only writes
func writeHistory(w io.Writer, records []models.AttendanceRecord, loc *time.Location) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No attendance recorded yet.")
		return
	}

	header := []string{"Date", "Day", "Time", "Class", "Meeting", "#"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		date := r.Timestamp
		if t, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			date = t.In(loc).Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			date, r.Day, r.Time, truncateName(r.Class, 40), truncateName(r.Meeting, 40), strconv.Itoa(r.MeetingNumber),
		})
	}

	widths := make([]int, len(header))
	for _, row := range append([][]string{header}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], displayWidth(cell))
		}
	}

	printRow := func(row []string) {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = padRight(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
	printRow(header)
	sep := make([]string, len(widths))
	for i, wd := range widths {
		sep[i] = strings.Repeat("-", wd)
	}
	fmt.Fprintln(w, strings.Join(sep, "  "))
	for _, row := range rows {
		printRow(row)
	}
	fmt.Fprintf(w, "\n%d attendance(s)\n", len(records))
}
